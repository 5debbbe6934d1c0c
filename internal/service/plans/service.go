package plans

import (
	"context"
	"errors"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kaiden-app/internal/domain/features"
	plandomain "kaiden-app/internal/domain/plans"
	"kaiden-app/internal/infra/stripe"
)

type SyncResult struct {
	Synced  int `json:"synced"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

type Service struct {
	db        *gorm.DB
	gateway   stripe.Gateway
	productID string
	log       *zap.Logger
}

// NewService scopes plans to productID when it is non-empty.
func NewService(db *gorm.DB, gateway stripe.Gateway, productID string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, gateway: gateway, productID: productID, log: log}
}

// Sync mirrors active recurring Stripe prices into the plans table.
func (s *Service) Sync(ctx context.Context) (SyncResult, error) {
	prices, err := s.gateway.ListRecurringPrices()
	if err != nil {
		return SyncResult{}, fmt.Errorf("list stripe prices: %w", err)
	}

	var res SyncResult
	for _, p := range prices {
		if !s.eligible(p) {
			res.Skipped++
			continue
		}

		name := p.Product.Name
		if v := p.Metadata["plan"]; v != "" {
			name = v
		}
		tier := ""
		if t, ok := features.ParseTier(p.Metadata["tier"]); ok {
			tier = string(t)
		}

		var existing plandomain.Plan
		err := s.db.WithContext(ctx).Where("stripe_price_id = ?", p.ID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			plan := plandomain.Plan{
				Name:            name,
				PriceCents:      p.UnitAmount,
				Currency:        string(p.Currency),
				StripePriceID:   p.ID,
				StripeProductID: p.Product.ID,
				Interval:        string(p.Recurring.Interval),
				Tier:            tier,
			}
			if err := s.db.WithContext(ctx).Create(&plan).Error; err != nil {
				return res, fmt.Errorf("create plan %s: %w", p.ID, err)
			}
			res.Created++
		case err != nil:
			return res, err
		default:
			existing.Name = name
			existing.PriceCents = p.UnitAmount
			existing.Currency = string(p.Currency)
			existing.StripeProductID = p.Product.ID
			existing.Interval = string(p.Recurring.Interval)
			if tier != "" {
				existing.Tier = tier
			}
			if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
				return res, fmt.Errorf("update plan %s: %w", p.ID, err)
			}
			res.Updated++
		}
		res.Synced++
	}

	s.log.Info("plans synced",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (s *Service) eligible(p *stripeapi.Price) bool {
	if p == nil || !p.Active || p.Recurring == nil || p.Product == nil || !p.Product.Active {
		return false
	}
	if s.productID != "" && p.Product.ID != s.productID {
		return false
	}
	return p.Metadata["visible"] != "false"
}

// List returns the synced plans, cheapest first.
func (s *Service) List(ctx context.Context) ([]plandomain.Plan, error) {
	out := []plandomain.Plan{}
	q := s.db.WithContext(ctx).Model(&plandomain.Plan{})
	if s.productID != "" {
		q = q.Where("stripe_product_id = ?", s.productID)
	}
	err := q.Order("price_cents ASC").Order("id ASC").Find(&out).Error
	return out, err
}
