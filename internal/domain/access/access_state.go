package access

import (
	"time"

	"kaiden-app/internal/domain/features"
	"kaiden-app/internal/domain/plans"
	"kaiden-app/internal/domain/users"
	"kaiden-app/internal/infra/stripe"
)

// ComputeEffectiveAccessState interprets the trial window and Stripe status: trial|active|grace|locked.
func ComputeEffectiveAccessState(now time.Time, u users.User) AccessState {
	if u.TrialEndAt != nil && now.Before(*u.TrialEndAt) {
		return AccessTrial
	}

	if u.SubscriptionID == nil || *u.SubscriptionID == "" {
		return AccessLocked
	}

	switch stripe.NormalizeStripeStatus(u.StripeSubscriptionStatus) {
	case stripe.StatusActive, stripe.StatusTrialing:
		return AccessActive

	case stripe.StatusPastDue:
		return AccessGrace

	case stripe.StatusCanceled:
		// paid-through period is honoured
		if u.CurrentPeriodEnd != nil && now.Before(*u.CurrentPeriodEnd) {
			return AccessGrace
		}
		return AccessLocked

	default:
		return AccessLocked
	}
}

// EffectiveTier is the tier whose features the user currently enjoys.
func EffectiveTier(now time.Time, u users.User) features.SubscriptionTier {
	switch ComputeEffectiveAccessState(now, u) {
	case AccessTrial:
		// a paid plan bought during the trial outranks it
		if tier := plans.PlanTier(u.Plan); tier.Valid() && hasLiveSubscription(u) {
			return tier
		}
		return features.TierFreeTrial
	case AccessActive, AccessGrace:
		return plans.PlanTier(u.Plan)
	default:
		return features.TierNone
	}
}

func hasLiveSubscription(u users.User) bool {
	if u.SubscriptionID == nil || *u.SubscriptionID == "" {
		return false
	}
	switch stripe.NormalizeStripeStatus(u.StripeSubscriptionStatus) {
	case stripe.StatusActive, stripe.StatusTrialing:
		return true
	}
	return false
}
