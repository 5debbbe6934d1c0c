package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"kaiden-app/internal/domain/audit"
	"kaiden-app/internal/domain/billing"
	"kaiden-app/internal/domain/entitlements"
	"kaiden-app/internal/domain/notifications"
	"kaiden-app/internal/domain/plans"
	"kaiden-app/internal/domain/purchases"
	"kaiden-app/internal/domain/users"
	"kaiden-app/internal/infra/logger"
)

// Models lists every table the API owns, in migration order.
func Models() []any {
	return []any{
		// core
		&plans.Plan{},
		&users.User{},
		&users.VerificationToken{},
		&billing.Payment{},
		&billing.WebhookEvent{},

		// access
		&entitlements.Grant{},
		&purchases.FeaturePurchase{},

		&notifications.Notification{},
		&audit.Log{},
	}
}

// Open connects using driver "postgres" or "sqlite".
func Open(driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	cfg := &gorm.Config{}
	if log != nil {
		cfg.Logger = logger.NewGormLogger(log, gormlogger.Warn)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// sqlite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
