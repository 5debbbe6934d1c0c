package billing

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ChangePlan upgrades now or schedules a downgrade. POST /change-plan
func (h *Handler) ChangePlan(c *gin.Context) {
	priceID, ok := bindPrice(c)
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	res, err := h.billing.ChangePlan(c.Request.Context(), userID, priceID)
	if err != nil {
		h.fail(c, "Failed to change plan", err)
		return
	}
	if res.Unchanged {
		c.JSON(http.StatusOK, gin.H{"message": res.Message})
		return
	}
	c.JSON(http.StatusOK, res)
}

// CancelDowngrade POST /cancel-downgrade
func (h *Handler) CancelDowngrade(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	scheduleID, released, err := h.billing.CancelDowngrade(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "Failed to cancel downgrade", err)
		return
	}
	if !released {
		c.JSON(http.StatusOK, gin.H{"message": "No pending downgrade to cancel"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Pending downgrade cancelled",
		"schedule_id": scheduleID,
	})
}
