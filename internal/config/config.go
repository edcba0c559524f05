package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the application configuration.
var Module = fx.Provide(Load)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	StripeAPIKey          string
	StripeWebhookSecret   string
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Default subscription period applied when the provider payload carries no
	// billing-period end. Business-owner decision, kept configurable on purpose.
	SubscriptionDefaultPeriodDays int

	// Upper bound for one settlement unit of work. Past this the delivery is
	// treated as a storage failure and the provider is asked to redeliver.
	SettlementTimeoutSeconds int

	OtelEnabled  bool
	OTLPEndpoint string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "soundhaven"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "soundhaven"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		StripeAPIKey:          strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
		StripeWebhookSecret:   strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		RazorpayKeyID:         strings.TrimSpace(getenv("RAZORPAY_KEY_ID", "")),
		RazorpayKeySecret:     strings.TrimSpace(getenv("RAZORPAY_KEY_SECRET", "")),
		RazorpayWebhookSecret: strings.TrimSpace(getenv("RAZORPAY_WEBHOOK_SECRET", "")),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenvInt("SMTP_PORT", 587),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "no-reply@soundhaven.io"),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		SubscriptionDefaultPeriodDays: getenvInt("SUBSCRIPTION_DEFAULT_PERIOD_DAYS", 30),
		SettlementTimeoutSeconds:      getenvInt("SETTLEMENT_TIMEOUT_SECONDS", 10),

		OtelEnabled:  getenvBool("OTEL_ENABLED", false),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
