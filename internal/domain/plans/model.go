package plans

type Plan struct {
	ID              uint `gorm:"primaryKey"`
	Name            string
	PriceCents      int64
	Currency        string `gorm:"type:varchar(3);not null;default:'usd'"`
	StripePriceID   string `gorm:"column:stripe_price_id;not null;uniqueIndex:idx_plans_stripe_price_id"`
	StripeProductID string `gorm:"column:stripe_product_id;index"`
	Interval        string
	Tier            string `gorm:"column:tier"` // features.SubscriptionTier slug
}
