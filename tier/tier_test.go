package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		boosts int
		want   Tier
	}{
		{0, None},
		{1, Basic},
		{2, Premium},
		{3, Premium},
		{100, Premium},
		{-1, None},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Resolve(tt.boosts), "boosts=%v", tt.boosts)
	}
}

func TestQuota(t *testing.T) {
	policy := DefaultPolicy()

	assert.Equal(t, 0, policy.Quota(None))
	assert.Equal(t, 3, policy.Quota(Basic))
	assert.Equal(t, 10, policy.Quota(Premium))
}

func TestCustomPolicy(t *testing.T) {
	policy := Policy{
		BasicBoosts:   2,
		PremiumBoosts: 5,
		BasicQuota:    1,
		PremiumQuota:  4,
	}

	assert.Equal(t, None, policy.Resolve(1))
	assert.Equal(t, Basic, policy.Resolve(2))
	assert.Equal(t, Premium, policy.Resolve(5))
	assert.Equal(t, 1, policy.Quota(Basic))
	assert.Equal(t, 4, policy.Quota(Premium))
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "None", None.String())
	assert.Equal(t, "Basic", Basic.String())
	assert.Equal(t, "Premium", Premium.String())
}
