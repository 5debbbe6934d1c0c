package billing

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateCheckoutSession starts a subscription checkout. POST /create-checkout-session
func (h *Handler) CreateCheckoutSession(c *gin.Context) {
	priceID, ok := bindPrice(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	url, err := h.billing.Checkout(c.Request.Context(), userID, priceID)
	if err != nil {
		h.fail(c, "Failed to create checkout session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// CreateBillingPortal POST /billing-portal
func (h *Handler) CreateBillingPortal(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	url, err := h.billing.Portal(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "Could not create billing portal session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) GetPaymentHistory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	payments, err := h.billing.Payments(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "Failed to load payments", err)
		return
	}
	c.JSON(http.StatusOK, payments)
}
