package access

import (
	"time"

	"kaiden-app/internal/domain/features"
)

type Policy struct {
	State    AccessState
	Tier     features.SubscriptionTier
	Features []string
}

func ComputePolicy(now time.Time, s Subject) Policy {
	return Policy{
		State:    ComputeEffectiveAccessState(now, s.User),
		Tier:     EffectiveTier(now, s.User),
		Features: AccessibleFeatures(now, s),
	}
}
