package features

import (
	"net/http"

	"github.com/gin-gonic/gin"

	featuredomain "kaiden-app/internal/domain/features"
	"kaiden-app/internal/domain/pricing"
)

type FeatureDTO struct {
	featuredomain.FeatureConfig
	MinimumTier featuredomain.SubscriptionTier `json:"minimum_tier"`
	Purchasable bool                           `json:"purchasable"`
}

type OfferDTO struct {
	pricing.FeaturePricing
	FormattedPrice string `json:"formatted_price"`
}

// Handler serves the read-only feature and price catalogs.
type Handler struct {
	catalog *pricing.Catalog
}

func NewHandler(catalog *pricing.Catalog) *Handler {
	if catalog == nil {
		catalog = pricing.Default()
	}
	return &Handler{catalog: catalog}
}

// ListFeatures GET /features
func (h *Handler) ListFeatures(c *gin.Context) {
	all := featuredomain.All()
	out := make([]FeatureDTO, 0, len(all))
	for _, f := range all {
		_, purchasable := h.catalog.GetFeaturePricing(f.Name)
		out = append(out, FeatureDTO{
			FeatureConfig: f,
			MinimumTier:   featuredomain.MinimumTierForFeature(f.Name),
			Purchasable:   purchasable,
		})
	}
	c.JSON(http.StatusOK, out)
}

// ListPricing GET /features/pricing
func (h *Handler) ListPricing(c *gin.Context) {
	all := h.catalog.All()
	out := make([]OfferDTO, 0, len(all))
	for _, p := range all {
		out = append(out, offer(p))
	}
	c.JSON(http.StatusOK, out)
}

// GetPricing GET /features/pricing/:feature
func (h *Handler) GetPricing(c *gin.Context) {
	p, ok := h.catalog.GetFeaturePricing(c.Param("feature"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feature is not sold individually"})
		return
	}
	c.JSON(http.StatusOK, offer(p))
}

func offer(p pricing.FeaturePricing) OfferDTO {
	return OfferDTO{FeaturePricing: p, FormattedPrice: pricing.FormatPrice(p.Price, p.Currency)}
}
