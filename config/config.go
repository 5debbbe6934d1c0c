package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	PORT        string
	APP_ENV     string
	APP_URL     string
	API_URL     string
	CORS_ORIGIN string

	DB_DRIVER  string
	DB_URL     string
	JWT_SECRET string

	STRIPE_SECRET_KEY     string
	STRIPE_WEBHOOK_SECRET string
	STRIPE_PRODUCT_ID     string

	GOOGLE_CLIENT_ID         string
	GOOGLE_CLIENT_SECRET     string
	GOOGLE_REDIRECT_URL      string
	GOOGLE_FRONTEND_REDIRECT string

	SMTP_HOST     string
	SMTP_PORT     string
	SMTP_FROM     string
	SMTP_PASSWORD string

	REDIS_URL         string
	RABBITMQ_URL      string
	RABBITMQ_EXCHANGE string

	LOG_LEVEL  string
	LOG_FORMAT string

	EHR_SYSTEM       string
	EHR_API_ENDPOINT string
	EHR_CLIENT_ID    string
	EHR_ACCESS_TOKEN string
	EHR_API_KEY      string

	CRON_EXPIRE_PURCHASES string
	CRON_EXPIRE_GRANTS    string
	CRON_TRIAL_REMINDERS  string

	CHECKOUT_RATE_PER_SEC float64
	CHECKOUT_RATE_BURST   int
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_URL", "http://localhost:5173")
	v.SetDefault("API_URL", "http://localhost:8080")
	v.SetDefault("CORS_ORIGIN", "http://localhost:5173")

	v.SetDefault("DB_DRIVER", "postgres")

	v.SetDefault("RABBITMQ_EXCHANGE", "kaiden.events")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EHR_SYSTEM", "none")

	v.SetDefault("CRON_EXPIRE_PURCHASES", "*/15 * * * *")
	v.SetDefault("CRON_EXPIRE_GRANTS", "*/15 * * * *")
	v.SetDefault("CRON_TRIAL_REMINDERS", "0 9 * * *")

	v.SetDefault("CHECKOUT_RATE_PER_SEC", 0.5)
	v.SetDefault("CHECKOUT_RATE_BURST", 5)
}

// Load reads .env (when present) and the process environment into the package globals.
func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	PORT = v.GetString("PORT")
	APP_ENV = v.GetString("APP_ENV")
	APP_URL = strings.TrimRight(v.GetString("APP_URL"), "/")
	API_URL = strings.TrimRight(v.GetString("API_URL"), "/")
	CORS_ORIGIN = v.GetString("CORS_ORIGIN")

	DB_DRIVER = strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER")))
	DB_URL = v.GetString("DB_URL")
	JWT_SECRET = v.GetString("JWT_SECRET")

	STRIPE_SECRET_KEY = v.GetString("STRIPE_SECRET_KEY")
	STRIPE_WEBHOOK_SECRET = v.GetString("STRIPE_WEBHOOK_SECRET")
	STRIPE_PRODUCT_ID = v.GetString("STRIPE_PRODUCT_ID")

	GOOGLE_CLIENT_ID = v.GetString("GOOGLE_CLIENT_ID")
	GOOGLE_CLIENT_SECRET = v.GetString("GOOGLE_CLIENT_SECRET")
	GOOGLE_REDIRECT_URL = v.GetString("GOOGLE_REDIRECT_URL")
	GOOGLE_FRONTEND_REDIRECT = v.GetString("GOOGLE_FRONTEND_REDIRECT")

	SMTP_HOST = v.GetString("SMTP_HOST")
	SMTP_PORT = v.GetString("SMTP_PORT")
	SMTP_FROM = v.GetString("SMTP_FROM")
	SMTP_PASSWORD = v.GetString("SMTP_PASSWORD")

	REDIS_URL = v.GetString("REDIS_URL")
	RABBITMQ_URL = v.GetString("RABBITMQ_URL")
	RABBITMQ_EXCHANGE = v.GetString("RABBITMQ_EXCHANGE")

	LOG_LEVEL = v.GetString("LOG_LEVEL")
	LOG_FORMAT = v.GetString("LOG_FORMAT")

	EHR_SYSTEM = strings.ToLower(strings.TrimSpace(v.GetString("EHR_SYSTEM")))
	EHR_API_ENDPOINT = v.GetString("EHR_API_ENDPOINT")
	EHR_CLIENT_ID = v.GetString("EHR_CLIENT_ID")
	EHR_ACCESS_TOKEN = v.GetString("EHR_ACCESS_TOKEN")
	EHR_API_KEY = v.GetString("EHR_API_KEY")

	CRON_EXPIRE_PURCHASES = v.GetString("CRON_EXPIRE_PURCHASES")
	CRON_EXPIRE_GRANTS = v.GetString("CRON_EXPIRE_GRANTS")
	CRON_TRIAL_REMINDERS = v.GetString("CRON_TRIAL_REMINDERS")

	CHECKOUT_RATE_PER_SEC = v.GetFloat64("CHECKOUT_RATE_PER_SEC")
	CHECKOUT_RATE_BURST = v.GetInt("CHECKOUT_RATE_BURST")

	if DB_DRIVER == "sqlite" && DB_URL == "" {
		DB_URL = "kaiden.db"
	}

	var missing []string
	if JWT_SECRET == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if DB_URL == "" {
		missing = append(missing, "DB_URL")
	}
	if DB_DRIVER != "postgres" && DB_DRIVER != "sqlite" {
		return fmt.Errorf("unsupported DB_DRIVER %q (want postgres or sqlite)", DB_DRIVER)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func LoadEnv() {
	if err := Load(); err != nil {
		log.Fatal(err)
	}
}

// GoogleEnabled reports whether Google sign-in is configured.
func GoogleEnabled() bool {
	return GOOGLE_CLIENT_ID != "" && GOOGLE_CLIENT_SECRET != "" && GOOGLE_REDIRECT_URL != ""
}
