package app

import (
	"time"

	"github.com/yungbote/vendorqueue/internal/pkg/env"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
)

// Config bundles the process-level settings read once at startup, as
// opposed to the dynamic, hot-reloadable flags kept in config.Store.
type Config struct {
	VendorBaseURL    string
	VendorTokenURL   string
	VendorClientID   string
	VendorClientSecret string

	AdminBearerToken string
	AdminJWTSecret   string
	AdminRateLimitRPS   int
	AdminRateLimitBurst int

	WebhookSecret string

	LockBackend string // "postgres" or "redis"

	ConfigCacheTTL time.Duration
	HTTPTimeout    time.Duration
	RetryAttempts  int
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		VendorBaseURL:      env.GetEnv("VENDOR_BASE_URL", "https://api.vendor.example.com", log),
		VendorTokenURL:     env.GetEnv("VENDOR_TOKEN_URL", "https://api.vendor.example.com/oauth/token", log),
		VendorClientID:     env.GetEnv("VENDOR_CLIENT_ID", "", log),
		VendorClientSecret: env.GetEnv("VENDOR_CLIENT_SECRET", "", log),

		AdminBearerToken:    env.GetEnv("ADMIN_BEARER_TOKEN", "", log),
		AdminJWTSecret:      env.GetEnv("ADMIN_JWT_SECRET", "", log),
		AdminRateLimitRPS:   env.GetEnvAsInt("ADMIN_RATE_LIMIT_RPS", 5, log),
		AdminRateLimitBurst: env.GetEnvAsInt("ADMIN_RATE_LIMIT_BURST", 10, log),

		WebhookSecret: env.GetEnv("WEBHOOK_SECRET", "", log),

		LockBackend: env.GetEnv("LOCK_BACKEND", "postgres", log),

		ConfigCacheTTL: env.GetEnvAsDuration("CONFIG_CACHE_TTL", 5*time.Second, log),
		HTTPTimeout:    env.GetEnvAsDuration("VENDOR_HTTP_TIMEOUT", 30*time.Second, log),
		RetryAttempts:  env.GetEnvAsInt("VENDOR_HTTP_RETRY_ATTEMPTS", 3, log),
	}
}
