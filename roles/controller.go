package roles

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"flowboost/ledger"
	"flowboost/tier"

	"go.uber.org/zap"
)

// DefaultColor is applied when a role is created without one.
const DefaultColor = 0xf47fff

const defaultCallTimeout = 10 * time.Second

var colorPattern = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

// Registry is the platform side of role management. Every call is
// fallible and may be rate limited; implementations own retry and
// backoff discipline.
type Registry interface {
	CreateRole(ctx context.Context, ownerID, name string, color int) (roleID string, err error)
	RenameRole(ctx context.Context, roleID, name string) error
	RecolorRole(ctx context.Context, roleID string, color int) error
	SetRoleIcon(ctx context.Context, roleID, icon string) error
	DeleteRole(ctx context.Context, roleID string) error
	GrantRole(ctx context.Context, roleID, userID string) error
	RevokeRole(ctx context.Context, roleID, userID string) error
}

// Controller drives the lifecycle of custom roles: create, mutate,
// gift, revoke, delete, and reclaim on boost loss. Ledger mutations
// commit only after the matching platform call succeeds, and all
// operations for one owner are serialized through the ledger's
// per-owner lock.
type Controller struct {
	ledger   *ledger.Service
	registry Registry
	policy   tier.Policy
	log      *zap.Logger
	timeout  time.Duration
}

// New builds a controller over the given ledger and platform registry.
func New(
	ledgerService *ledger.Service,
	registry Registry,
	policy tier.Policy,
	log *zap.Logger,
) *Controller {
	return &Controller{
		ledger:   ledgerService,
		registry: registry,
		policy:   policy,
		log:      log,
		timeout:  defaultCallTimeout,
	}
}

// Info describes an owner's current standing for read-only lookups.
type Info struct {
	Record    ledger.Record
	Tier      tier.Tier
	Quota     int
	Remaining int
}

// Lookup returns the owner's record, tier and remaining gift quota.
func (c *Controller) Lookup(ownerID string) (Info, bool) {
	record, ok := c.ledger.Read(ownerID)
	if !ok {
		return Info{}, false
	}

	ownerTier := c.policy.Resolve(record.Boosts)
	quota := c.policy.Quota(ownerTier)
	remaining := quota - len(record.GiftedTo)
	if remaining < 0 {
		remaining = 0
	}

	return Info{
		Record:    record,
		Tier:      ownerTier,
		Quota:     quota,
		Remaining: remaining,
	}, true
}

// Create makes a new custom role for the owner. boosts is the owner's
// current boost count, cached on the record for quota lookups.
func (c *Controller) Create(
	ctx context.Context,
	ownerID string,
	name string,
	colorHex string,
	boosts int,
) (err error) {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}

	color := DefaultColor
	if colorHex != "" {
		color, err = parseColor(colorHex)
		if err != nil {
			return err
		}
	}

	c.ledger.Locked(ownerID, func() {
		if record, ok := c.ledger.Read(ownerID); ok && record.RoleID != "" {
			err = ErrAlreadyOwns
			return
		}

		callCtx, cancel := c.callContext(ctx)
		defer cancel()

		var roleID string
		roleID, err = c.registry.CreateRole(callCtx, ownerID, name, color)
		if err != nil {
			err = fmt.Errorf("create role: %w", err)
			return
		}

		c.ledger.Write(ledger.Record{
			OwnerID: ownerID,
			RoleID:  roleID,
			Boosts:  boosts,
		})
		c.log.Info(
			"Created custom role.",
			zap.String("owner", ownerID),
			zap.String("role", roleID),
		)
	})

	return err
}

// Rename changes the owner's role name.
func (c *Controller) Rename(ctx context.Context, ownerID, name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}

	return c.withOwnedRole(ctx, ownerID, func(callCtx context.Context, record ledger.Record) error {
		if err := c.registry.RenameRole(callCtx, record.RoleID, name); err != nil {
			return fmt.Errorf("rename role: %w", err)
		}
		return nil
	})
}

// Recolor changes the owner's role color.
func (c *Controller) Recolor(ctx context.Context, ownerID, colorHex string) error {
	color, err := parseColor(colorHex)
	if err != nil {
		return err
	}

	return c.withOwnedRole(ctx, ownerID, func(callCtx context.Context, record ledger.Record) error {
		if err := c.registry.RecolorRole(callCtx, record.RoleID, color); err != nil {
			return fmt.Errorf("recolor role: %w", err)
		}
		return nil
	})
}

// SetIcon changes the owner's role icon. The icon is either an image
// URL or an emoji reference.
func (c *Controller) SetIcon(ctx context.Context, ownerID, icon string) error {
	if err := validateIcon(icon); err != nil {
		return err
	}

	return c.withOwnedRole(ctx, ownerID, func(callCtx context.Context, record ledger.Record) error {
		if err := c.registry.SetRoleIcon(callCtx, record.RoleID, icon); err != nil {
			return fmt.Errorf("set role icon: %w", err)
		}
		return nil
	})
}

// Gift grants a copy of the owner's role to the recipient, bounded by
// the owner's tier quota.
func (c *Controller) Gift(ctx context.Context, ownerID, recipientID string) (err error) {
	if recipientID == ownerID {
		return ErrSelfGift
	}

	c.ledger.Locked(ownerID, func() {
		record, ok := c.ledger.Read(ownerID)
		if !ok || record.RoleID == "" {
			err = ErrNoRoleOwned
			return
		}

		for _, existing := range record.GiftedTo {
			if existing == recipientID {
				err = ErrAlreadyGifted
				return
			}
		}

		quota := c.policy.Quota(c.policy.Resolve(record.Boosts))
		if len(record.GiftedTo) >= quota {
			err = ErrQuotaExceeded
			return
		}

		callCtx, cancel := c.callContext(ctx)
		defer cancel()

		if err = c.registry.GrantRole(callCtx, record.RoleID, recipientID); err != nil {
			err = fmt.Errorf("grant role: %w", err)
			return
		}

		record.GiftedTo = append(record.GiftedTo, recipientID)
		c.ledger.Write(record)
		c.log.Info(
			"Gifted custom role.",
			zap.String("owner", ownerID),
			zap.String("recipient", recipientID),
			zap.Int("gifts", len(record.GiftedTo)),
		)
	})

	return err
}

// Revoke takes the owner's role back from the recipient.
func (c *Controller) Revoke(ctx context.Context, ownerID, recipientID string) (err error) {
	c.ledger.Locked(ownerID, func() {
		record, ok := c.ledger.Read(ownerID)
		if !ok || record.RoleID == "" {
			err = ErrNoRoleOwned
			return
		}

		index := -1
		for i, existing := range record.GiftedTo {
			if existing == recipientID {
				index = i
				break
			}
		}
		if index < 0 {
			err = ErrNotGifted
			return
		}

		callCtx, cancel := c.callContext(ctx)
		defer cancel()

		if err = c.registry.RevokeRole(callCtx, record.RoleID, recipientID); err != nil {
			err = fmt.Errorf("revoke role: %w", err)
			return
		}

		record.GiftedTo = append(record.GiftedTo[:index], record.GiftedTo[index+1:]...)
		c.ledger.Write(record)
		c.log.Info(
			"Revoked gifted role.",
			zap.String("owner", ownerID),
			zap.String("recipient", recipientID),
		)
	})

	return err
}

// Delete removes the owner's role from the platform and erases the
// ledger record. Platform deletion implicitly strips the role from
// every current recipient.
func (c *Controller) Delete(ctx context.Context, ownerID string) (err error) {
	c.ledger.Locked(ownerID, func() {
		record, ok := c.ledger.Read(ownerID)
		if !ok || record.RoleID == "" {
			err = ErrNoRoleOwned
			return
		}

		callCtx, cancel := c.callContext(ctx)
		defer cancel()

		if err = c.registry.DeleteRole(callCtx, record.RoleID); err != nil {
			err = fmt.Errorf("delete role: %w", err)
			return
		}

		c.ledger.Erase(ownerID)
		c.log.Info(
			"Deleted custom role.",
			zap.String("owner", ownerID),
			zap.String("role", record.RoleID),
		)
	})

	return err
}

// OnTierChange reacts to the owner's boost count changing. Losing all
// boosts reclaims the role outright; a downgrade trims the gift list
// to the new quota, dropping the most recently gifted members first.
func (c *Controller) OnTierChange(ctx context.Context, ownerID string, boosts int) (err error) {
	c.ledger.Locked(ownerID, func() {
		record, ok := c.ledger.Read(ownerID)
		if !ok {
			return
		}

		newTier := c.policy.Resolve(boosts)
		if newTier == tier.None {
			callCtx, cancel := c.callContext(ctx)
			defer cancel()

			if record.RoleID != "" {
				if err = c.registry.DeleteRole(callCtx, record.RoleID); err != nil {
					err = fmt.Errorf("reclaim role: %w", err)
					return
				}
			}

			c.ledger.Erase(ownerID)
			c.log.Info(
				"Reclaimed custom role after boost loss.",
				zap.String("owner", ownerID),
			)
			return
		}

		quota := c.policy.Quota(newTier)
		for len(record.GiftedTo) > quota {
			last := len(record.GiftedTo) - 1
			dropped := record.GiftedTo[last]

			callCtx, cancel := c.callContext(ctx)
			revokeErr := c.registry.RevokeRole(callCtx, record.RoleID, dropped)
			cancel()

			if revokeErr != nil {
				// Commit the trims that stuck; the old boost count stays
				// so a retry re-runs the downgrade.
				c.ledger.Write(record)
				err = fmt.Errorf("trim gifted role from %v: %w", dropped, revokeErr)
				return
			}

			record.GiftedTo = record.GiftedTo[:last]
			c.log.Info(
				"Trimmed gifted role after tier downgrade.",
				zap.String("owner", ownerID),
				zap.String("recipient", dropped),
			)
		}

		record.Boosts = boosts
		c.ledger.Write(record)
	})

	return err
}

func (c *Controller) withOwnedRole(
	ctx context.Context,
	ownerID string,
	fn func(ctx context.Context, record ledger.Record) error,
) (err error) {
	c.ledger.Locked(ownerID, func() {
		record, ok := c.ledger.Read(ownerID)
		if !ok || record.RoleID == "" {
			err = ErrNoRoleOwned
			return
		}

		callCtx, cancel := c.callContext(ctx)
		defer cancel()

		err = fn(callCtx, record)
	})

	return err
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func parseColor(colorHex string) (int, error) {
	if !colorPattern.MatchString(colorHex) {
		return 0, ErrInvalidColor
	}

	color, err := strconv.ParseInt(strings.TrimPrefix(colorHex, "#"), 16, 32)
	if err != nil {
		return 0, ErrInvalidColor
	}
	return int(color), nil
}

func validateIcon(icon string) error {
	icon = strings.TrimSpace(icon)
	if icon == "" {
		return ErrInvalidIcon
	}

	if strings.Contains(icon, "://") {
		parsed, err := url.Parse(icon)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return ErrInvalidIcon
		}
	}

	return nil
}
