package tier

// Tier is a member's entitlement level, derived from their boost count.
type Tier int

const (
	None Tier = iota
	Basic
	Premium
)

func (t Tier) String() string {
	switch t {
	case Basic:
		return "Basic"
	case Premium:
		return "Premium"
	default:
		return "None"
	}
}

// Policy maps boost counts to tiers and tiers to gift quotas.
type Policy struct {
	BasicBoosts   int
	PremiumBoosts int
	BasicQuota    int
	PremiumQuota  int
}

// DefaultPolicy returns the stock mapping: one boost for Basic (3
// gifts), two or more for Premium (10 gifts).
func DefaultPolicy() Policy {
	return Policy{
		BasicBoosts:   1,
		PremiumBoosts: 2,
		BasicQuota:    3,
		PremiumQuota:  10,
	}
}

// Resolve derives the tier for the given boost count.
func (p Policy) Resolve(boostCount int) Tier {
	switch {
	case boostCount >= p.PremiumBoosts:
		return Premium
	case boostCount >= p.BasicBoosts:
		return Basic
	default:
		return None
	}
}

// Quota returns how many members a role owner at the given tier may
// gift their role to.
func (p Policy) Quota(t Tier) int {
	switch t {
	case Basic:
		return p.BasicQuota
	case Premium:
		return p.PremiumQuota
	default:
		return 0
	}
}
