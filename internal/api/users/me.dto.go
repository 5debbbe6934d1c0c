package users

import "time"

type MeResponse struct {
	User    UserDTO    `json:"user"`
	Billing BillingDTO `json:"billing"`
	Access  AccessDTO  `json:"access"`
}

/* ---------- USER ---------- */

type UserDTO struct {
	ID           uint    `json:"id"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	Company      *string `json:"company"`
	Phone        *string `json:"phone"`
	Role         string  `json:"role"`
	AuthProvider string  `json:"auth_provider"`
	IsVerified   bool    `json:"is_verified"`
}

/* ---------- BILLING ---------- */

type BillingDTO struct {
	Plan          *PlanDTO          `json:"plan"`
	Subscription  *SubscriptionDTO  `json:"subscription"`
	Trial         *TrialDTO         `json:"trial"`
	PendingChange *PendingChangeDTO `json:"pending_change"`
}

type PlanDTO struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	Tier           string `json:"tier"`
	Interval       string `json:"interval"`
	PriceCents     int64  `json:"price_cents"`
	FormattedPrice string `json:"formatted_price"`
	StripePriceID  string `json:"stripe_price_id"`
}

type SubscriptionDTO struct {
	Status               string     `json:"status"`
	StartsAt             *time.Time `json:"starts_at"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id"`
	StripeScheduleID     *string    `json:"stripe_schedule_id"`
}

type TrialDTO struct {
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
	DaysLeft int        `json:"days_left"`
}

type PendingChangeDTO struct {
	EffectiveAt *time.Time `json:"effective_at"`
	Plan        *PlanDTO   `json:"plan"`
}

/* ---------- ACCESS ---------- */

type AccessDTO struct {
	State     string        `json:"state"` // trial|active|grace|locked
	Tier      string        `json:"tier"`
	Features  []string      `json:"features"`
	Purchases []PurchaseDTO `json:"purchases"`
	Grants    []GrantDTO    `json:"grants"`
}

type PurchaseDTO struct {
	Feature   string     `json:"feature"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type GrantDTO struct {
	Feature   string     `json:"feature"`
	GrantedBy string     `json:"granted_by"`
	ExpiresAt *time.Time `json:"expires_at"`
}
