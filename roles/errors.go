package roles

import "errors"

// Failures reported to the command surface. Each leaves the ledger in
// its pre-operation state.
var (
	// ErrAlreadyOwns: the owner already has a live custom role.
	ErrAlreadyOwns = errors.New("you already own a custom role")

	// ErrNoRoleOwned: the operation needs a live custom role and the
	// owner has none.
	ErrNoRoleOwned = errors.New("you don't own a custom role")

	// ErrInvalidName: the role name is empty.
	ErrInvalidName = errors.New("role name must not be empty")

	// ErrInvalidColor: the color is not a 6-digit hex value.
	ErrInvalidColor = errors.New("color must be a 6-digit hex value like #ff7700")

	// ErrInvalidIcon: the icon is neither a URL nor an emoji.
	ErrInvalidIcon = errors.New("icon must be an image URL or an emoji")

	// ErrSelfGift: owners can't gift their role to themselves.
	ErrSelfGift = errors.New("you can't gift your role to yourself")

	// ErrAlreadyGifted: the recipient already holds the role.
	ErrAlreadyGifted = errors.New("that member already holds your role")

	// ErrNotGifted: the recipient doesn't hold the role.
	ErrNotGifted = errors.New("that member doesn't hold your role")

	// ErrQuotaExceeded: the gift list is full for the owner's tier.
	ErrQuotaExceeded = errors.New("your boost tier's gift quota is used up")
)

var userErrors = []error{
	ErrAlreadyOwns,
	ErrNoRoleOwned,
	ErrInvalidName,
	ErrInvalidColor,
	ErrInvalidIcon,
	ErrSelfGift,
	ErrAlreadyGifted,
	ErrNotGifted,
	ErrQuotaExceeded,
}

// IsUserError reports whether err is something the requester did wrong,
// as opposed to a transient platform failure worth retrying.
func IsUserError(err error) bool {
	for _, userErr := range userErrors {
		if errors.Is(err, userErr) {
			return true
		}
	}
	return false
}
