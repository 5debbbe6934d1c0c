package billing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kaiden-app/internal/infra/stripe"
	billingsvc "kaiden-app/internal/service/billing"
)

type Handler struct {
	billing *billingsvc.Service
	log     *zap.Logger
}

func NewHandler(billing *billingsvc.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{billing: billing, log: log}
}

// fail maps service errors onto the JSON error envelope.
func (h *Handler) fail(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, billingsvc.ErrUserNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
	case errors.Is(err, billingsvc.ErrUnknownPlan):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown plan/price_id"})
	case errors.Is(err, billingsvc.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "Please verify your email first"})
	case errors.Is(err, billingsvc.ErrNoCustomer):
		c.JSON(http.StatusConflict, gin.H{"error": "No Stripe customer yet (subscribe first)"})
	case errors.Is(err, billingsvc.ErrNoSubscription):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No active subscription to change. Use checkout first."})
	case errors.Is(err, stripe.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Stripe key not configured"})
	default:
		h.log.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg, "details": err.Error()})
	}
}

func currentUser(c *gin.Context) (uint, bool) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not identified"})
		return 0, false
	}
	return userID, true
}

type priceBody struct {
	PriceID string `json:"price_id"`
}

func bindPrice(c *gin.Context) (string, bool) {
	var body priceBody
	if err := c.ShouldBindJSON(&body); err != nil || body.PriceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid price_id"})
		return "", false
	}
	return body.PriceID, true
}
