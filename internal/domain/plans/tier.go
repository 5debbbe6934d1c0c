package plans

import (
	"kaiden-app/internal/domain/features"
)

// PlanTier returns the subscription tier a plan grants.
// Priority:
// 1. Explicit Tier stored in DB
// 2. Fallback inference by monthly price
func PlanTier(p *Plan) features.SubscriptionTier {
	if p == nil {
		return features.TierNone
	}

	if tier, ok := features.ParseTier(p.Tier); ok && tier != features.TierFreeTrial {
		return tier
	}

	return inferTierFromPrice(p.PriceCents, p.Interval)
}

// inferTierFromPrice covers plans synced before tier metadata was set on the Stripe price.
func inferTierFromPrice(priceCents int64, interval string) features.SubscriptionTier {
	monthly := priceCents
	if interval == "year" {
		monthly = priceCents / 12
	}
	switch {
	case monthly >= 49900:
		return features.TierEnterprise
	case monthly >= 19900:
		return features.TierStartup
	case monthly >= 9900:
		return features.TierSmallBusiness
	default:
		return features.TierPersonal
	}
}
