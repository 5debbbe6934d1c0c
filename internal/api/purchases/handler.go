package purchases

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kaiden-app/internal/infra/stripe"
	purchasesvc "kaiden-app/internal/service/purchases"
)

type Handler struct {
	svc *purchasesvc.Service
	log *zap.Logger
}

func NewHandler(svc *purchasesvc.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, purchasesvc.ErrUnknownFeature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Feature is not available for purchase"})
	case errors.Is(err, purchasesvc.ErrUserNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
	case errors.Is(err, purchasesvc.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "Please verify your email first"})
	case errors.Is(err, purchasesvc.ErrAlreadyOwned):
		c.JSON(http.StatusConflict, gin.H{"error": "You already own this feature"})
	case errors.Is(err, purchasesvc.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Checkout session not found"})
	case errors.Is(err, purchasesvc.ErrForeignSession):
		c.JSON(http.StatusForbidden, gin.H{"error": "Checkout session belongs to another user"})
	case errors.Is(err, purchasesvc.ErrNotPaid):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Payment not completed"})
	case errors.Is(err, purchasesvc.ErrNotFeatureSession):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Not a feature purchase session"})
	case errors.Is(err, stripe.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Stripe key not configured"})
	default:
		h.log.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg, "details": err.Error()})
	}
}

// Checkout POST /purchases/checkout
func (h *Handler) Checkout(c *gin.Context) {
	var body struct {
		Feature string `json:"feature"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Feature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid feature"})
		return
	}

	res, err := h.svc.CreateCheckout(c.Request.Context(), c.GetUint("user_id"), body.Feature)
	if err != nil {
		h.fail(c, "Failed to create checkout session", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Verify POST /purchases/verify
func (h *Handler) Verify(c *gin.Context) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid session_id"})
		return
	}

	p, err := h.svc.Verify(c.Request.Context(), c.GetUint("user_id"), body.SessionID)
	if err != nil {
		h.fail(c, "Failed to verify purchase", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"feature":    p.FeatureName,
		"status":     p.Status,
		"expires_at": p.ExpiresAt,
	})
}

// History GET /purchases
func (h *Handler) History(c *gin.Context) {
	list, err := h.svc.History(c.Request.Context(), c.GetUint("user_id"))
	if err != nil {
		h.fail(c, "Failed to load purchases", err)
		return
	}
	c.JSON(http.StatusOK, list)
}
