package plans

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kaiden-app/internal/domain/features"
	"kaiden-app/internal/domain/pricing"
	"kaiden-app/internal/infra/stripe"
	plansvc "kaiden-app/internal/service/plans"
)

type Handler struct {
	plans *plansvc.Service
	log   *zap.Logger
}

func NewHandler(plans *plansvc.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{plans: plans, log: log}
}

type PlanDTO struct {
	ID             uint     `json:"id"`
	Name           string   `json:"name"`
	PriceID        string   `json:"price_id"`
	PriceCents     int64    `json:"price_cents"`
	FormattedPrice string   `json:"formatted_price"`
	Currency       string   `json:"currency"`
	Interval       string   `json:"interval"`
	Tier           string   `json:"tier,omitempty"`
	Features       []string `json:"features"`
}

// ListPlans GET /plans
func (h *Handler) ListPlans(c *gin.Context) {
	list, err := h.plans.List(c.Request.Context())
	if err != nil {
		h.log.Error("list plans failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load plans"})
		return
	}

	out := make([]PlanDTO, 0, len(list))
	for _, p := range list {
		dto := PlanDTO{
			ID:             p.ID,
			Name:           p.Name,
			PriceID:        p.StripePriceID,
			PriceCents:     p.PriceCents,
			FormattedPrice: pricing.FormatPrice(p.PriceCents, p.Currency),
			Currency:       p.Currency,
			Interval:       p.Interval,
			Tier:           p.Tier,
			Features:       []string{},
		}
		if tier, ok := features.ParseTier(p.Tier); ok {
			for _, f := range features.FeaturesForTier(tier) {
				dto.Features = append(dto.Features, f.Name)
			}
		}
		out = append(out, dto)
	}
	c.JSON(http.StatusOK, out)
}

// SyncPlansFromStripe POST /admin/sync-plans
func (h *Handler) SyncPlansFromStripe(c *gin.Context) {
	res, err := h.plans.Sync(c.Request.Context())
	if errors.Is(err, stripe.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Stripe key not configured"})
		return
	}
	if err != nil {
		h.log.Error("plan sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sync plans", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Plans synced",
		"synced":  res.Synced,
		"created": res.Created,
		"updated": res.Updated,
		"skipped": res.Skipped,
	})
}
