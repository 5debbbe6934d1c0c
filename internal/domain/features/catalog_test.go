package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasFeature(t *testing.T) {
	cases := []struct {
		tier    SubscriptionTier
		feature string
		want    bool
	}{
		{TierFreeTrial, "ai_chat", true},
		{TierFreeTrial, "unlimited_ai", false},
		{TierPersonal, "unlimited_ai", true},
		{TierSmallBusiness, "team_members_5", true},
		{TierStartup, "team_members_5", false},
		{TierStartup, "medical_billing", true},
		{TierSmallBusiness, "medical_billing", false},
		{TierEnterprise, "white_label", true},
		{TierEnterprise, "does_not_exist", false},
		{TierNone, "ai_chat", false},
	}
	for _, tc := range cases {
		t.Run(string(tc.tier)+"/"+tc.feature, func(t *testing.T) {
			assert.Equal(t, tc.want, HasFeature(tc.tier, tc.feature))
		})
	}
}

func TestMinimumTierForFeature(t *testing.T) {
	assert.Equal(t, TierFreeTrial, MinimumTierForFeature("ai_chat"))
	assert.Equal(t, TierPersonal, MinimumTierForFeature("credit_repair"))
	assert.Equal(t, TierSmallBusiness, MinimumTierForFeature("team_members_5"))
	assert.Equal(t, TierStartup, MinimumTierForFeature("medical_billing"))
	assert.Equal(t, TierEnterprise, MinimumTierForFeature("sla_guarantee"))
	assert.Equal(t, TierEnterprise, MinimumTierForFeature("unknown"))
}

func TestFeaturesForTierKeepsDeclarationOrder(t *testing.T) {
	trial := FeaturesForTier(TierFreeTrial)
	require.Len(t, trial, 4)
	assert.Equal(t, "ai_chat", trial[0].Name)
	assert.Equal(t, "community_access", trial[3].Name)

	assert.Empty(t, FeaturesForTier(TierNone))

	personal := FeaturesForTier(TierPersonal)
	assert.Len(t, personal, 7)
}

func TestCatalogIntegrity(t *testing.T) {
	seen := map[string]bool{}
	for _, f := range All() {
		assert.False(t, seen[f.Name], "duplicate feature %s", f.Name)
		seen[f.Name] = true
		assert.NotEmpty(t, f.DisplayName)
		assert.NotEmpty(t, f.Tiers)
		for _, tier := range f.Tiers {
			assert.True(t, tier.Valid(), "feature %s has invalid tier %q", f.Name, tier)
		}
	}
}

func TestParseTier(t *testing.T) {
	tier, ok := ParseTier(" Small_Business ")
	require.True(t, ok)
	assert.Equal(t, TierSmallBusiness, tier)

	_, ok = ParseTier("gold")
	assert.False(t, ok)

	assert.Less(t, TierPersonal.Rank(), TierStartup.Rank())
	assert.Equal(t, -1, TierNone.Rank())
}
