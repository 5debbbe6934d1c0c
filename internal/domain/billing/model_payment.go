package billing

import (
	"kaiden-app/internal/domain/plans"
	"kaiden-app/internal/domain/users"
	"time"
)

const (
	ProductSubscription = "subscription"
	ProductFeature      = "feature"

	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

type Payment struct {
	ID                    uint        `gorm:"primaryKey" json:"id"`
	UserID                uint        `gorm:"index" json:"user_id"`
	User                  users.User  `json:"-"`
	PlanID                *uint       `json:"plan_id"`
	Plan                  *plans.Plan `json:"plan,omitempty"`
	ProductType           string      `gorm:"type:varchar(20);not null;default:'subscription'" json:"product_type"`
	Feature               *string     `json:"feature,omitempty"`
	StripeSessionID       *string     `gorm:"uniqueIndex" json:"stripe_session_id,omitempty"`
	StripeSubscriptionID  *string     `json:"stripe_subscription_id,omitempty"`
	StripePaymentIntentID *string     `gorm:"index" json:"stripe_payment_intent_id,omitempty"`
	AmountCents           int64       `json:"amount_cents"`
	Currency              string      `gorm:"type:varchar(3)" json:"currency"`
	Status                string      `json:"status"`
	InvoiceID             *string     `gorm:"uniqueIndex" json:"invoice_id,omitempty"`
	ReceiptURL            *string     `json:"receipt_url,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
}
