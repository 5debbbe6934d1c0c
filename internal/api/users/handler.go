package users

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kaiden-app/internal/domain/access"
	"kaiden-app/internal/domain/plans"
	entitlementsvc "kaiden-app/internal/service/entitlements"
)

type Handler struct {
	db           *gorm.DB
	entitlements *entitlementsvc.Service
	log          *zap.Logger
	now          func() time.Time
}

func NewHandler(db *gorm.DB, entitlements *entitlementsvc.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{db: db, entitlements: entitlements, log: log, now: time.Now}
}

// GetCurrentUser GET /me
func (h *Handler) GetCurrentUser(c *gin.Context) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	ctx := c.Request.Context()
	subject, err := h.entitlements.LoadSubject(ctx, userID)
	if errors.Is(err, entitlementsvc.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		h.log.Error("load subject failed", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	user := subject.User
	if user.PendingPlanID != nil {
		var pending plans.Plan
		if err := h.db.WithContext(ctx).First(&pending, *user.PendingPlanID).Error; err == nil {
			user.PendingPlan = &pending
		}
	}

	now := h.now()
	policy := access.ComputePolicy(now, subject)

	c.JSON(http.StatusOK, MeResponse{
		User: UserDTO{
			ID:           user.ID,
			Email:        user.Email,
			Name:         user.Name,
			Company:      stringPtrIfNotEmpty(user.Company),
			Phone:        stringPtrIfNotEmpty(user.Phone),
			Role:         user.Role,
			AuthProvider: user.AuthProvider,
			IsVerified:   user.IsVerified,
		},
		Billing: BillingDTO{
			Plan:          BuildPlanDTO(user.Plan),
			Subscription:  BuildSubscriptionDTO(user),
			Trial:         BuildTrialDTO(now, user.TrialStartAt, user.TrialEndAt),
			PendingChange: BuildPendingChangeDTO(user),
		},
		Access: BuildAccessDTO(now, subject, policy),
	})
}
