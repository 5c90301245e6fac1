// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/medctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Store drivers
// --------------------------------------------------------------------------

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// --------------------------------------------------------------------------
// Config, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Storage
	StoreDriver    string
	DatabaseURL    string
	SQLitePath     string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// Logging
	LogLevel      string
	LogFormat     string // text | json
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Sessions
	SessionSecret string
	SessionTTL    time.Duration

	// Scheduling
	Timezone              string
	Location              *time.Location
	LowStockDays          int
	ReminderWorkerEnabled bool
	ReminderInterval      time.Duration
	ReminderWindow        time.Duration

	// External services
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string
	VoiceMaxBytes   int

	// Cache
	CacheEnabled bool

	// Maintenance
	NotificationRetention time.Duration
	CleanupInterval       time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		StoreDriver:    strings.ToLower(envOr("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:    envOr("DATABASE_URL", ""),
		SQLitePath:     envOr("SQLITE_PATH", "medminder.db"),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		LogLevel:      envOr("LOG_LEVEL", "info"),
		LogFormat:     envOr("LOG_FORMAT", "text"),
		LogFile:       envOr("LOG_FILE", ""),
		LogMaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: envInt("LOG_MAX_BACKUPS", 5),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		SessionSecret: envOr("SESSION_SECRET", ""),
		SessionTTL:    time.Duration(envInt("SESSION_TTL_HOURS", 24*365)) * time.Hour,

		Timezone:              envOr("TIMEZONE", "Local"),
		LowStockDays:          envInt("LOW_STOCK_DAYS", 7),
		ReminderWorkerEnabled: envBool("REMINDER_WORKER_ENABLED", true),
		ReminderInterval:      time.Duration(envInt("REMINDER_INTERVAL_SECONDS", 30)) * time.Second,
		ReminderWindow:        time.Duration(envInt("REMINDER_WINDOW_MINUTES", 2)) * time.Minute,

		AnthropicAPIKey: envOr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		GeminiAPIKey:    envOr("GEMINI_API_KEY", envOr("GOOGLE_API_KEY", "")),
		GeminiModel:     envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		VoiceMaxBytes:   envInt("VOICE_MAX_MB", 16) * 1024 * 1024,

		CacheEnabled: envBool("CACHE_ENABLED", true),

		NotificationRetention: time.Duration(envInt("NOTIFICATION_RETENTION_DAYS", 90)) * 24 * time.Hour,
		CleanupInterval:       time.Duration(envInt("CLEANUP_INTERVAL_MINUTES", 60)) * time.Minute,
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL must be set when STORE_DRIVER=%s", DriverPostgres)
		}
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want %s or %s)", cfg.StoreDriver, DriverPostgres, DriverSQLite)
	}

	if cfg.SessionSecret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("SESSION_SECRET must be set in production")
		}
		cfg.SessionSecret = "medminder-dev-secret"
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.LowStockDays < 0 {
		return nil, fmt.Errorf("LOW_STOCK_DAYS must not be negative")
	}

	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Now returns the current time in the configured location.
func (c *Config) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
