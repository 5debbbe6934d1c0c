package users

import (
	"math"
	"time"

	"kaiden-app/internal/domain/access"
	"kaiden-app/internal/domain/plans"
	"kaiden-app/internal/domain/pricing"
	"kaiden-app/internal/domain/users"
	"kaiden-app/internal/infra/stripe"
)

func BuildPlanDTO(p *plans.Plan) *PlanDTO {
	if p == nil {
		return nil
	}
	return &PlanDTO{
		ID:             p.ID,
		Name:           p.Name,
		Tier:           p.Tier,
		Interval:       p.Interval,
		PriceCents:     p.PriceCents,
		FormattedPrice: pricing.FormatPrice(p.PriceCents, p.Currency),
		StripePriceID:  p.StripePriceID,
	}
}

func BuildSubscriptionDTO(u users.User) *SubscriptionDTO {
	if u.SubscriptionID == nil || *u.SubscriptionID == "" {
		return nil
	}
	return &SubscriptionDTO{
		Status:               stripe.NormalizeStripeStatus(u.StripeSubscriptionStatus),
		StartsAt:             u.SubscriptionStart,
		CurrentPeriodEnd:     u.CurrentPeriodEnd,
		StripeSubscriptionID: u.SubscriptionID,
		StripeScheduleID:     u.StripeScheduleID,
	}
}

// BuildTrialDTO rounds partial days up so the last day reads as 1.
func BuildTrialDTO(now time.Time, start, end *time.Time) *TrialDTO {
	if start == nil || end == nil {
		return nil
	}
	days := 0
	if now.Before(*end) {
		days = int(math.Ceil(end.Sub(now).Hours() / 24))
	}
	return &TrialDTO{StartsAt: start, EndsAt: end, DaysLeft: days}
}

func BuildPendingChangeDTO(u users.User) *PendingChangeDTO {
	if u.PendingPlanID == nil || u.PendingPlan == nil {
		return nil
	}
	return &PendingChangeDTO{
		EffectiveAt: u.PendingPlanStartDate,
		Plan:        BuildPlanDTO(u.PendingPlan),
	}
}

func BuildAccessDTO(now time.Time, s access.Subject, policy access.Policy) AccessDTO {
	out := AccessDTO{
		State:     string(policy.State),
		Tier:      string(policy.Tier),
		Features:  policy.Features,
		Purchases: []PurchaseDTO{},
		Grants:    []GrantDTO{},
	}
	if out.Features == nil {
		out.Features = []string{}
	}
	for _, p := range s.Purchases {
		if p.ActiveAt(now) {
			out.Purchases = append(out.Purchases, PurchaseDTO{Feature: p.FeatureName, ExpiresAt: p.ExpiresAt})
		}
	}
	for _, g := range s.Grants {
		if g.ActiveAt(now) {
			out.Grants = append(out.Grants, GrantDTO{Feature: g.Feature, GrantedBy: g.GrantedBy, ExpiresAt: g.ExpiresAt})
		}
	}
	return out
}

func stringPtrIfNotEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
