package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Identity  IdentityConfig
	Webhook   WebhookConfig
	Retention RetentionConfig
	RateLimit RateLimitConfig
	Sync      SyncConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL       string // if set, used as-is (e.g. postgres://localhost:5432/studiobook?sslmode=disable)
	WorkerURL string // connection string for the BYPASSRLS worker role; falls back to URL
	Host      string
	Port      string
	User      string
	Password  string
	DBName    string
	SSLMode   string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// IdentityConfig holds settings for verifying identity-provider session tokens.
type IdentityConfig struct {
	SessionSecret string   // HS256 secret shared with the identity provider
	AdminRoles    []string // roles allowed through the admin stage
}

// WebhookConfig holds settings for the identity-provider webhook endpoint.
type WebhookConfig struct {
	SigningSecret string // whsec_... secret for signature verification
	Tolerance     time.Duration
}

// RetentionConfig holds soft-delete retention settings.
type RetentionConfig struct {
	Days int // grace window before removed rows are purged
}

// RateLimitConfig holds per-action-class rate-limit profiles.
type RateLimitConfig struct {
	Enabled  bool
	UseRedis bool // back the limiter with Redis instead of process memory
	Window   time.Duration
	Mutate   int // generic mutation limit per window
	Create   int
	Delete   int
	Bulk     int
}

// SyncConfig holds retry settings for the identity event processor.
type SyncConfig struct {
	DependencyAttempts int           // membership dependency re-checks within one processing attempt
	DependencyBackoff  time.Duration // base delay, doubled each attempt
	QueueAttempts      int           // whole-unit retries before DLQ
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// WorkerDSN returns the connection string for the background worker, which
// must connect as the studiobook_worker role so identity sync and retention
// purges are not filtered by row-level security. Falls back to DSN() when
// DATABASE_WORKER_URL is unset (single-role development setups).
func (c DatabaseConfig) WorkerDSN() string {
	if c.WorkerURL != "" {
		return c.WorkerURL
	}
	return c.DSN()
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:       getEnv("DATABASE_URL", "postgres://localhost:5432/studiobook?sslmode=disable"),
			WorkerURL: getEnv("DATABASE_WORKER_URL", ""),
			Host:      getEnv("DB_HOST", "localhost"),
			Port:      getEnv("DB_PORT", "5432"),
			User:      getEnv("DB_USER", "postgres"),
			Password:  getEnv("DB_PASSWORD", "postgres"),
			DBName:    getEnv("DB_NAME", "studiobook"),
			SSLMode:   getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Identity: IdentityConfig{
			SessionSecret: getEnv("IDENTITY_SESSION_SECRET", "change-me-in-production"),
			AdminRoles:    splitTrim(getEnv("ADMIN_ROLES", "super_admin,admin"), ","),
		},
		Webhook: WebhookConfig{
			SigningSecret: getEnv("IDENTITY_WEBHOOK_SECRET", ""),
			Tolerance:     time.Duration(getEnvInt("WEBHOOK_TOLERANCE_SEC", 300)) * time.Second,
		},
		Retention: RetentionConfig{
			Days: getEnvInt("RETENTION_DAYS", 30),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getEnv("RATE_LIMIT_ENABLED", "true") == "true",
			UseRedis: getEnv("RATE_LIMIT_USE_REDIS", "false") == "true",
			Window:   time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SEC", 60)) * time.Second,
			Mutate:   getEnvInt("RATE_LIMIT_MUTATE", 30),
			Create:   getEnvInt("RATE_LIMIT_CREATE", 10),
			Delete:   getEnvInt("RATE_LIMIT_DELETE", 20),
			Bulk:     getEnvInt("RATE_LIMIT_BULK", 5),
		},
		Sync: SyncConfig{
			DependencyAttempts: getEnvInt("SYNC_DEPENDENCY_ATTEMPTS", 5),
			DependencyBackoff:  time.Duration(getEnvInt("SYNC_DEPENDENCY_BACKOFF_MS", 1000)) * time.Millisecond,
			QueueAttempts:      getEnvInt("SYNC_QUEUE_ATTEMPTS", 5),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
