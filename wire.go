package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kaiden-app/config"
	"kaiden-app/database"
	authapi "kaiden-app/internal/api/auth"
	routes "kaiden-app/internal/app/http"
	"kaiden-app/internal/domain/healthsync"
	"kaiden-app/internal/domain/pricing"
	"kaiden-app/internal/infra/cache"
	"kaiden-app/internal/infra/ehr"
	"kaiden-app/internal/infra/email"
	"kaiden-app/internal/infra/events"
	"kaiden-app/internal/infra/logger"
	"kaiden-app/internal/infra/metrics"
	"kaiden-app/internal/infra/ratelimit"
	"kaiden-app/internal/infra/stripe"
	"kaiden-app/internal/scheduler"
	auditsvc "kaiden-app/internal/service/audit"
	billingsvc "kaiden-app/internal/service/billing"
	entitlementsvc "kaiden-app/internal/service/entitlements"
	notificationsvc "kaiden-app/internal/service/notifications"
	plansvc "kaiden-app/internal/service/plans"
	purchasesvc "kaiden-app/internal/service/purchases"
)

// app holds the process-wide dependencies shared by every subcommand.
type app struct {
	log     *zap.Logger
	db      *gorm.DB
	metrics *metrics.Metrics
	redis   *redis.Client
	events  events.Publisher
	gateway stripe.Gateway
	catalog *pricing.Catalog
	mailer  email.Sender
	ehr     *healthsync.Tenants

	hub           *notificationsvc.Hub
	audit         *auditsvc.Writer
	notifications *notificationsvc.Service
	entitlements  *entitlementsvc.Service
	purchases     *purchasesvc.Service
	billing       *billingsvc.Service
	plans         *plansvc.Service
	jobs          *scheduler.Jobs
}

func bootstrap(ctx context.Context) (*app, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{
		ServiceName: "kaiden-api",
		Environment: config.APP_ENV,
		Level:       config.LOG_LEVEL,
		Format:      config.LOG_FORMAT,
	})
	if err != nil {
		return nil, err
	}

	db, err := database.Open(config.DB_DRIVER, config.DB_URL, log)
	if err != nil {
		return nil, err
	}

	catalog, err := pricing.Load()
	if err != nil {
		return nil, fmt.Errorf("load pricing catalog: %w", err)
	}

	a := &app{
		log:     log,
		db:      db,
		metrics: metrics.New(),
		gateway: stripe.NewGateway(config.STRIPE_SECRET_KEY, config.STRIPE_WEBHOOK_SECRET),
		catalog: catalog,
		mailer:  newMailer(log),
	}

	if config.REDIS_URL != "" {
		client, err := cache.OpenRedis(ctx, config.REDIS_URL)
		if err != nil {
			log.Warn("redis unavailable, using in-process cache and limiter", zap.Error(err))
		} else {
			a.redis = client
		}
	}

	a.events = events.NopPublisher{Log: log}
	if config.RABBITMQ_URL != "" {
		pub, err := events.NewRabbitPublisher(config.RABBITMQ_URL, config.RABBITMQ_EXCHANGE, log)
		if err != nil {
			log.Warn("rabbitmq unavailable, events will not be published", zap.Error(err))
		} else {
			a.events = pub
		}
	}

	practice, err := ehr.NewAdapter(ehr.Config{
		System:      config.EHR_SYSTEM,
		Endpoint:    config.EHR_API_ENDPOINT,
		ClientID:    config.EHR_CLIENT_ID,
		AccessToken: config.EHR_ACCESS_TOKEN,
		APIKey:      config.EHR_API_KEY,
		Timeout:     15 * time.Second,
		Logger:      log,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ehr adapter: %w", err)
	}
	// members keep local records, only staff reach the practice EHR
	a.ehr = healthsync.NewTenants(practice, nil)

	a.wireServices()
	return a, nil
}

func (a *app) wireServices() {
	var counts cache.Counter = cache.NewMemoryCounter()
	if a.redis != nil {
		counts = cache.NewRedisCounter(a.redis, "kaiden:notifications:unread:")
	}

	a.hub = notificationsvc.NewHub(splitOrigins(config.CORS_ORIGIN), a.metrics, a.log.Named("hub"))
	a.audit = auditsvc.NewWriter(a.db, a.log.Named("audit"))
	a.notifications = notificationsvc.NewService(a.db, notificationsvc.Deps{
		Hub:     a.hub,
		Counts:  counts,
		Events:  a.events,
		Metrics: a.metrics,
		Log:     a.log.Named("notifications"),
	})
	a.entitlements = entitlementsvc.NewService(a.db, entitlementsvc.Deps{
		Catalog: a.catalog,
		Audit:   a.audit,
		Events:  a.events,
		Metrics: a.metrics,
		Log:     a.log.Named("entitlements"),
		AppURL:  config.APP_URL,
	})
	a.purchases = purchasesvc.NewService(a.db, purchasesvc.Deps{
		Gateway:  a.gateway,
		Catalog:  a.catalog,
		Notifier: a.notifications,
		Audit:    a.audit,
		Events:   a.events,
		Metrics:  a.metrics,
		Log:      a.log.Named("purchases"),
		AppURL:   config.APP_URL,
	})
	a.billing = billingsvc.NewService(a.db, billingsvc.Deps{
		Gateway:  a.gateway,
		Notifier: a.notifications,
		Audit:    a.audit,
		Events:   a.events,
		Log:      a.log.Named("billing"),
		AppURL:   config.APP_URL,
		AppEnv:   config.APP_ENV,
	})
	a.plans = plansvc.NewService(a.db, a.gateway, config.STRIPE_PRODUCT_ID, a.log.Named("plans"))
	a.jobs = scheduler.NewJobs(a.db, scheduler.JobDeps{
		Purchases: a.purchases,
		Grants:    a.entitlements,
		Mailer:    a.mailer,
		Notifier:  a.notifications,
		Metrics:   a.metrics,
		Log:       a.log.Named("jobs"),
		AppURL:    config.APP_URL,
	})
}

func (a *app) routerDeps() routes.Deps {
	var limiter ratelimit.Limiter = ratelimit.NewMemoryBucket()
	if a.redis != nil {
		limiter = ratelimit.NewTokenBucket(a.redis)
	}

	authCfg := authapi.Config{
		JWTSecret:        config.JWT_SECRET,
		APIURL:           config.API_URL,
		AppURL:           config.APP_URL,
		FrontendRedirect: config.GOOGLE_FRONTEND_REDIRECT,
	}
	if config.GoogleEnabled() {
		authCfg.Google = authapi.GoogleOAuthConfig(config.GOOGLE_CLIENT_ID, config.GOOGLE_CLIENT_SECRET, config.GOOGLE_REDIRECT_URL)
		authCfg.Verifier = &authapi.OIDCVerifier{ClientID: config.GOOGLE_CLIENT_ID}
	}

	return routes.Deps{
		DB:            a.db,
		Log:           a.log,
		Metrics:       a.metrics,
		CORSOrigins:   splitOrigins(config.CORS_ORIGIN),
		Auth:          authCfg,
		Mailer:        a.mailer,
		Gateway:       a.gateway,
		Catalog:       a.catalog,
		Audit:         a.audit,
		Entitlements:  a.entitlements,
		Purchases:     a.purchases,
		Billing:       a.billing,
		Plans:         a.plans,
		Notifications: a.notifications,
		Hub:           a.hub,
		EHR:           a.ehr,
		Limiter:       limiter,
		CheckoutRate:  config.CHECKOUT_RATE_PER_SEC,
		CheckoutBurst: config.CHECKOUT_RATE_BURST,
	}
}

func (a *app) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.events != nil {
		a.events.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}

func newMailer(log *zap.Logger) email.Sender {
	if config.SMTP_HOST == "" {
		log.Warn("SMTP not configured, emails are logged instead of sent")
		return email.LogSender{Log: log.Named("email")}
	}
	return email.SMTPSender{
		Host:     config.SMTP_HOST,
		Port:     config.SMTP_PORT,
		From:     config.SMTP_FROM,
		Password: config.SMTP_PASSWORD,
	}
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
