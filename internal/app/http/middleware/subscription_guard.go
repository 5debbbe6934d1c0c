package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"kaiden-app/internal/domain/users"
	"kaiden-app/internal/infra/stripe"
)

// RequireActiveSubscription admits users with a paid subscription, including
// past_due and a canceled one still inside its paid period. Trials do not count.
func RequireActiveSubscription(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var user users.User
		err := db.WithContext(c.Request.Context()).First(&user, c.GetUint("user_id")).Error
		if err != nil || user.SubscriptionID == nil || *user.SubscriptionID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Subscription not found or expired"})
			return
		}

		switch stripe.NormalizeStripeStatus(user.StripeSubscriptionStatus) {
		case stripe.StatusActive, stripe.StatusTrialing, stripe.StatusPastDue:
			c.Next()
			return
		case stripe.StatusCanceled:
			if user.CurrentPeriodEnd != nil && time.Now().Before(*user.CurrentPeriodEnd) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "Your subscription has expired"})
	}
}
