package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kaiden-app/internal/domain/billing"
	"kaiden-app/internal/domain/pricing"
	"kaiden-app/internal/domain/users"
	auditsvc "kaiden-app/internal/service/audit"
	entitlementsvc "kaiden-app/internal/service/entitlements"
	purchasesvc "kaiden-app/internal/service/purchases"
)

type AdminUser struct {
	ID                 uint       `json:"id"`
	Name               string     `json:"name"`
	Company            string     `json:"company"`
	Phone              string     `json:"phone"`
	Email              string     `json:"email"`
	Role               string     `json:"role"`
	IsVerified         bool       `json:"is_verified"`
	PlanName           *string    `json:"plan_name,omitempty"`
	StripeCustomerID   *string    `json:"stripe_customer_id,omitempty"`
	StripeSubID        *string    `json:"stripe_subscription_id,omitempty"`
	SubscriptionStatus *string    `json:"subscription_status,omitempty"`
	TrialEndAt         *time.Time `json:"trial_end_at,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
}

type AdminPayment struct {
	ID             uint    `json:"id"`
	Email          string  `json:"email"`
	ProductType    string  `json:"product_type"`
	PlanName       *string `json:"plan_name,omitempty"`
	Feature        *string `json:"feature,omitempty"`
	AmountCents    int64   `json:"amount_cents"`
	FormattedPrice string  `json:"formatted_amount"`
	Status         string  `json:"status"`
	InvoiceID      *string `json:"invoice_id,omitempty"`
	ReceiptURL     *string `json:"receipt_url,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

type AdminStats struct {
	TotalUsers    int            `json:"total_users"`
	TotalRevenue  int64          `json:"total_revenue"`
	RecentRevenue int64          `json:"recent_revenue"`
	UsersPerPlan  map[string]int `json:"users_per_plan"`
}

type Handler struct {
	db           *gorm.DB
	entitlements *entitlementsvc.Service
	purchases    *purchasesvc.Service
	audit        *auditsvc.Writer
	log          *zap.Logger
	now          func() time.Time
}

func NewHandler(db *gorm.DB, entitlements *entitlementsvc.Service, purchases *purchasesvc.Service, audit *auditsvc.Writer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if audit == nil {
		audit = auditsvc.NewWriter(db, log)
	}
	return &Handler{db: db, entitlements: entitlements, purchases: purchases, audit: audit, log: log, now: time.Now}
}

func (h *Handler) ListAllUsers(c *gin.Context) {
	var list []users.User
	if err := h.db.WithContext(c.Request.Context()).Preload("Plan").Order("id ASC").Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load users"})
		return
	}

	adminUsers := make([]AdminUser, 0, len(list))
	for _, u := range list {
		var planName *string
		if u.Plan != nil {
			planName = &u.Plan.Name
		}
		adminUsers = append(adminUsers, AdminUser{
			ID:                 u.ID,
			Name:               u.Name,
			Company:            u.Company,
			Phone:              u.Phone,
			Email:              u.Email,
			Role:               u.Role,
			IsVerified:         u.IsVerified,
			PlanName:           planName,
			StripeCustomerID:   u.StripeCustomerID,
			StripeSubID:        u.SubscriptionID,
			SubscriptionStatus: u.StripeSubscriptionStatus,
			TrialEndAt:         u.TrialEndAt,
			CurrentPeriodEnd:   u.CurrentPeriodEnd,
		})
	}
	c.JSON(http.StatusOK, adminUsers)
}

func (h *Handler) ListAllPayments(c *gin.Context) {
	var payments []billing.Payment
	err := h.db.WithContext(c.Request.Context()).
		Preload("User").
		Preload("Plan").
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payments"})
		return
	}

	result := make([]AdminPayment, 0, len(payments))
	for _, p := range payments {
		var planName *string
		if p.Plan != nil {
			planName = &p.Plan.Name
		}
		result = append(result, AdminPayment{
			ID:             p.ID,
			Email:          p.User.Email,
			ProductType:    p.ProductType,
			PlanName:       planName,
			Feature:        p.Feature,
			AmountCents:    p.AmountCents,
			FormattedPrice: pricing.FormatPrice(p.AmountCents, p.Currency),
			Status:         p.Status,
			InvoiceID:      p.InvoiceID,
			ReceiptURL:     p.ReceiptURL,
			CreatedAt:      p.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetAdminStats(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	var (
		stats         AdminStats
		totalUsers    int64
		totalRevenue  int64
		recentRevenue int64
	)

	if err := db.Model(&users.User{}).Count(&totalUsers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}
	db.Model(&billing.Payment{}).
		Where("status = ?", billing.PaymentPaid).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&totalRevenue)
	db.Model(&billing.Payment{}).
		Where("status = ? AND created_at >= ?", billing.PaymentPaid, h.now().AddDate(0, 0, -30)).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&recentRevenue)

	stats.TotalUsers = int(totalUsers)
	stats.TotalRevenue = totalRevenue
	stats.RecentRevenue = recentRevenue

	type planCount struct {
		Name  *string
		Count int
	}
	var counts []planCount
	db.Table("users").
		Select("plans.name AS name, COUNT(users.id) AS count").
		Joins("LEFT JOIN plans ON users.plan_id = plans.id").
		Group("plans.name").
		Scan(&counts)

	stats.UsersPerPlan = map[string]int{}
	for _, pc := range counts {
		name := "No Plan"
		if pc.Name != nil {
			name = *pc.Name
		}
		stats.UsersPerPlan[name] = pc.Count
	}
	c.JSON(http.StatusOK, stats)
}

// GetUserDetails GET /admin/users/:id
func (h *Handler) GetUserDetails(c *gin.Context) {
	userID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	subject, err := h.entitlements.LoadSubject(ctx, userID)
	if errors.Is(err, entitlementsvc.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	var payments []billing.Payment
	if err := h.db.WithContext(ctx).Preload("Plan").Where("user_id = ?", userID).Order("created_at DESC").Find(&payments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payments"})
		return
	}
	grants, err := h.entitlements.ListGrants(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch grants"})
		return
	}
	history, err := h.purchases.History(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch purchases"})
		return
	}
	policy, err := h.entitlements.Policy(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute access"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":      subject.User,
		"payments":  payments,
		"grants":    grants,
		"purchases": history,
		"access":    policy,
	})
}

// ListAuditLogs GET /admin/audit-logs?user_id=&limit=
func (h *Handler) ListAuditLogs(c *gin.Context) {
	var userID *uint
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
			return
		}
		userID = auditsvc.UserRef(uint(id))
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	logs, err := h.audit.List(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load audit logs"})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// GrantEntitlement POST /admin/entitlements
func (h *Handler) GrantEntitlement(c *gin.Context) {
	var in entitlementsvc.GrantInput
	if err := c.ShouldBindJSON(&in); err != nil || in.UserID == 0 || in.Feature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and feature are required"})
		return
	}

	grant, err := h.entitlements.Grant(c.Request.Context(), in, c.GetUint("user_id"))
	switch {
	case errors.Is(err, entitlementsvc.ErrUnknownFeature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown feature"})
	case errors.Is(err, entitlementsvc.ErrInvalidGrant):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, entitlementsvc.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case err != nil:
		h.log.Error("grant failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to grant entitlement"})
	default:
		c.JSON(http.StatusCreated, grant)
	}
}

// RevokeEntitlement DELETE /admin/entitlements/:id
func (h *Handler) RevokeEntitlement(c *gin.Context) {
	grantID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	grant, err := h.entitlements.Revoke(c.Request.Context(), grantID, c.GetUint("user_id"))
	switch {
	case errors.Is(err, entitlementsvc.ErrGrantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Grant not found"})
	case err != nil:
		h.log.Error("revoke failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke entitlement"})
	default:
		c.JSON(http.StatusOK, grant)
	}
}

// PurchaseAnalytics GET /admin/purchases/analytics?limit=&days=
func (h *Handler) PurchaseAnalytics(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

	out, err := h.purchases.Analytics(c.Request.Context(), limit, days)
	if err != nil {
		h.log.Error("purchase analytics failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute analytics"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}
