package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kaiden-app/internal/domain/access"
	"kaiden-app/internal/service/entitlements"
)

type FeatureGate interface {
	Gate(ctx context.Context, userID uint, feature string) (entitlements.Decision, error)
}

// RequireFeature runs the entitlement gate for feature: sign_in answers 401,
// upgrade answers 402 with the decision so clients can render both exits.
func RequireFeature(gate FeatureGate, feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := gate.Gate(c.Request.Context(), c.GetUint("user_id"), feature)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, entitlements.ErrUnknownFeature) {
				status = http.StatusNotFound
			}
			c.AbortWithStatusJSON(status, gin.H{"error": "Entitlement check failed", "details": err.Error()})
			return
		}
		switch d.Outcome {
		case access.GateGranted:
			c.Set("access_source", string(d.Source))
			c.Next()
		case access.GateSignIn:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Sign in required", "gate": d})
		default:
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "Upgrade required", "gate": d})
		}
	}
}
