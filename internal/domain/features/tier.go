package features

import "strings"

// SubscriptionTier is a subscription level. Tiers are totally ordered.
type SubscriptionTier string

const (
	TierNone          SubscriptionTier = ""
	TierFreeTrial     SubscriptionTier = "free_trial"
	TierPersonal      SubscriptionTier = "personal"
	TierSmallBusiness SubscriptionTier = "small_business"
	TierStartup       SubscriptionTier = "startup"
	TierEnterprise    SubscriptionTier = "enterprise"
)

// Tiers lists every tier from lowest to highest.
var Tiers = []SubscriptionTier{
	TierFreeTrial,
	TierPersonal,
	TierSmallBusiness,
	TierStartup,
	TierEnterprise,
}

// ParseTier accepts the canonical slug, case-insensitively.
func ParseTier(s string) (SubscriptionTier, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range Tiers {
		if string(t) == s {
			return t, true
		}
	}
	return TierNone, false
}

// Rank is the position of t in Tiers, or -1 for TierNone/unknown.
func (t SubscriptionTier) Rank() int {
	for i, candidate := range Tiers {
		if candidate == t {
			return i
		}
	}
	return -1
}

func (t SubscriptionTier) Valid() bool { return t.Rank() >= 0 }
