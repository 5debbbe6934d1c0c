package purchases

import "time"

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
	StatusExpired   = "expired"
)

// FeaturePurchase is a single-use purchase of one feature slug through hosted checkout.
type FeaturePurchase struct {
	ID                      uint       `gorm:"primaryKey" json:"id"`
	UserID                  uint       `gorm:"not null;index" json:"user_id"`
	FeatureName             string     `gorm:"not null;size:64;index" json:"feature_name"`
	Amount                  int64      `gorm:"not null" json:"amount"`
	Currency                string     `gorm:"type:varchar(3);not null" json:"currency"`
	Status                  string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	IsActive                bool       `gorm:"not null;default:false" json:"is_active"`
	StripeCheckoutSessionID string     `gorm:"column:stripe_checkout_session_id;not null;uniqueIndex" json:"stripe_checkout_session_id"`
	StripePaymentIntentID   *string    `gorm:"column:stripe_payment_intent_id;index" json:"stripe_payment_intent_id"`
	PurchasedAt             *time.Time `json:"purchased_at"`
	ExpiresAt               *time.Time `gorm:"index" json:"expires_at"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the purchase confers access at now.
func (p FeaturePurchase) ActiveAt(now time.Time) bool {
	if p.Status != StatusCompleted || !p.IsActive {
		return false
	}
	return p.ExpiresAt == nil || now.Before(*p.ExpiresAt)
}
