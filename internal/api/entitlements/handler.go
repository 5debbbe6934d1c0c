package entitlements

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	entitlementsvc "kaiden-app/internal/service/entitlements"
)

type Handler struct {
	svc *entitlementsvc.Service
	log *zap.Logger
}

func NewHandler(svc *entitlementsvc.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// List GET /entitlements
func (h *Handler) List(c *gin.Context) {
	userID := c.GetUint("user_id")
	policy, err := h.svc.Policy(c.Request.Context(), userID)
	if errors.Is(err, entitlementsvc.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		h.log.Error("policy failed", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load entitlements"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":    policy.State,
		"tier":     policy.Tier,
		"features": policy.Features,
	})
}

// Check GET /entitlements/:feature
func (h *Handler) Check(c *gin.Context) {
	feature := c.Param("feature")
	ok, src, err := h.svc.Check(c.Request.Context(), c.GetUint("user_id"), feature)
	switch {
	case errors.Is(err, entitlementsvc.ErrUnknownFeature):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown feature"})
	case errors.Is(err, entitlementsvc.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case err != nil:
		h.log.Error("entitlement check failed", zap.String("feature", feature), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Entitlement check failed"})
	default:
		resp := gin.H{"feature": feature, "has_access": ok}
		if ok {
			resp["source"] = src
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Gate GET /gate/:feature. Anonymous callers get the sign_in branch.
func (h *Handler) Gate(c *gin.Context) {
	feature := c.Param("feature")
	d, err := h.svc.Gate(c.Request.Context(), c.GetUint("user_id"), feature)
	if errors.Is(err, entitlementsvc.ErrUnknownFeature) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown feature"})
		return
	}
	if err != nil {
		h.log.Error("gate failed", zap.String("feature", feature), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Entitlement check failed"})
		return
	}
	c.JSON(http.StatusOK, d)
}
