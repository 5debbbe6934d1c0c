package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	adminapi "kaiden-app/internal/api/admin"
	authapi "kaiden-app/internal/api/auth"
	"kaiden-app/internal/api/billing"
	entitlementsapi "kaiden-app/internal/api/entitlements"
	featuresapi "kaiden-app/internal/api/features"
	healthsyncapi "kaiden-app/internal/api/healthsync"
	notificationsapi "kaiden-app/internal/api/notifications"
	"kaiden-app/internal/api/plans"
	purchasesapi "kaiden-app/internal/api/purchases"
	stripewebhooks "kaiden-app/internal/api/stripewebhook"
	"kaiden-app/internal/api/users"
	"kaiden-app/internal/app/http/middleware"
	"kaiden-app/internal/domain/healthsync"
	"kaiden-app/internal/domain/pricing"
	"kaiden-app/internal/infra/email"
	"kaiden-app/internal/infra/logger"
	"kaiden-app/internal/infra/metrics"
	"kaiden-app/internal/infra/ratelimit"
	"kaiden-app/internal/infra/stripe"
	auditsvc "kaiden-app/internal/service/audit"
	billingsvc "kaiden-app/internal/service/billing"
	entitlementsvc "kaiden-app/internal/service/entitlements"
	notificationsvc "kaiden-app/internal/service/notifications"
	plansvc "kaiden-app/internal/service/plans"
	purchasesvc "kaiden-app/internal/service/purchases"
)

// HealthSyncFeature is the feature slug that unlocks the /healthsync routes.
const HealthSyncFeature = "medical_billing"

// Deps carries everything the HTTP surface needs. Zero values degrade
// gracefully: no limiter disables rate limiting, nil metrics hides /metrics.
type Deps struct {
	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *metrics.Metrics

	CORSOrigins []string
	Auth        authapi.Config
	Mailer      email.Sender

	Gateway       stripe.Gateway
	Catalog       *pricing.Catalog
	Audit         *auditsvc.Writer
	Entitlements  *entitlementsvc.Service
	Purchases     *purchasesvc.Service
	Billing       *billingsvc.Service
	Plans         *plansvc.Service
	Notifications *notificationsvc.Service
	Hub           notificationsapi.SocketServer
	EHR           *healthsync.Tenants

	Limiter       ratelimit.Limiter
	CheckoutRate  float64
	CheckoutBurst int
}

// NewRouter builds the engine with the shared middleware and every route.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(d.Log))

	// CORS must run before any route so preflights are answered
	r.Use(cors.New(cors.Config{
		AllowOrigins:     nonEmpty(d.CORSOrigins),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterRoutes(r, d)
	return r
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	secret := d.Auth.JWTSecret

	authH := authapi.NewHandler(d.DB, d.Mailer, d.Audit, d.Auth, log.Named("auth"))
	usersH := users.NewHandler(d.DB, d.Entitlements, log.Named("users"))
	billingH := billing.NewHandler(d.Billing, log.Named("billing"))
	plansH := plans.NewHandler(d.Plans, log.Named("plans"))
	entH := entitlementsapi.NewHandler(d.Entitlements, log.Named("entitlements"))
	featuresH := featuresapi.NewHandler(d.Catalog)
	purchasesH := purchasesapi.NewHandler(d.Purchases, log.Named("purchases"))
	notificationsH := notificationsapi.NewHandler(d.Notifications, d.Hub, log.Named("notifications"))
	adminH := adminapi.NewHandler(d.DB, d.Entitlements, d.Purchases, d.Audit, log.Named("admin"))
	webhookH := stripewebhooks.NewHandler(d.DB, d.Gateway, d.Billing, d.Purchases, d.Metrics, log.Named("webhook"))

	// raw body, signature checked
	r.POST("/webhook", webhookH.StripeWebhook)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	public := r.Group("/")
	public.Use(middleware.SanitizeAndCleanInputMiddleware())

	public.POST("/register", authH.Register)
	public.POST("/login", authH.Login)
	public.GET("/verify", authH.VerifyEmail)
	public.POST("/resend-verification", authH.ResendVerification)
	public.POST("/request-password-reset", authH.RequestPasswordReset)
	public.POST("/reset-password", authH.ResetPassword)

	public.GET("/auth/google", authH.GoogleStart)
	public.GET("/auth/google/callback", authH.GoogleCallback)

	public.GET("/plans", plansH.ListPlans)
	public.GET("/features", featuresH.ListFeatures)
	public.GET("/features/pricing", featuresH.ListPricing)
	public.GET("/features/pricing/:feature", featuresH.GetPricing)

	// anonymous callers get the sign_in outcome
	public.GET("/gate/:feature", middleware.OptionalAuth(secret), entH.Gate)

	checkoutLimit := func(route string) gin.HandlerFunc {
		return middleware.RateLimit(middleware.RateLimitConfig{
			Route:   route,
			Rate:    d.CheckoutRate,
			Burst:   d.CheckoutBurst,
			Limiter: d.Limiter,
			Metrics: d.Metrics,
			Log:     log,
		})
	}

	// Authenticated
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware(secret))
	auth.GET("/me", usersH.GetCurrentUser)
	auth.POST("/change-password", authH.ChangePassword)

	auth.GET("/payments", billingH.GetPaymentHistory)
	auth.POST("/create-checkout-session", checkoutLimit("subscription_checkout"), billingH.CreateCheckoutSession)
	auth.POST("/billing-portal", billingH.CreateBillingPortal)
	auth.POST("/cancel-downgrade", billingH.CancelDowngrade)

	auth.GET("/entitlements", entH.List)
	auth.GET("/entitlements/:feature", entH.Check)

	auth.POST("/purchases/checkout", checkoutLimit("feature_checkout"), purchasesH.Checkout)
	auth.POST("/purchases/verify", purchasesH.Verify)
	auth.GET("/purchases", purchasesH.History)

	auth.GET("/notifications", notificationsH.List)
	auth.GET("/notifications/unread-count", notificationsH.UnreadCount)
	auth.POST("/notifications/read-all", notificationsH.MarkAllAsRead)
	auth.POST("/notifications/:id/read", notificationsH.MarkAsRead)
	auth.GET("/notifications/ws", notificationsH.Socket)

	// Subscribed users
	subscribed := auth.Group("/")
	subscribed.Use(middleware.RequireActiveSubscription(d.DB))
	subscribed.POST("/change-plan", billingH.ChangePlan)

	if d.EHR != nil {
		hs := auth.Group("/healthsync", middleware.RequireFeature(d.Entitlements, HealthSyncFeature))
		hsH := healthsyncapi.NewHandler(d.EHR, log.Named("healthsync"))
		hsH.Register(hs)
		// raw FHIR carries the practice token
		hsH.RegisterFHIR(hs.Group("/fhir", middleware.RequireRole("admin")))
	}

	// Admin routes
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(secret), middleware.RequireRole("admin"))
	admin.GET("/users", adminH.ListAllUsers)
	admin.GET("/users/:id", adminH.GetUserDetails)
	admin.GET("/payments", adminH.ListAllPayments)
	admin.GET("/stats", adminH.GetAdminStats)
	admin.GET("/audit-logs", adminH.ListAuditLogs)
	admin.POST("/entitlements", adminH.GrantEntitlement)
	admin.DELETE("/entitlements/:id", adminH.RevokeEntitlement)
	admin.GET("/purchases/analytics", adminH.PurchaseAnalytics)
	admin.POST("/sync-plans", plansH.SyncPlansFromStripe)
}

func nonEmpty(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:5173"}
	}
	return out
}
