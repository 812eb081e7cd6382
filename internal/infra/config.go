package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	RedisURL       string
	StoragePath    string
	StorageBaseURL string

	// Generation collaborator.
	GenAPIKey     string
	GenModel      string
	GenBaseURL    string
	GenMaxRetries int

	// Audit collaborator.
	AuditAPIKey  string
	AuditModel   string
	AuditBaseURL string
	AuditTimeout time.Duration

	// Routing thresholds. Both boundaries are tunable per deployment.
	AutoApproveThreshold float64
	ReviewThreshold      float64
	MaxAttempts          int

	JobTTL             time.Duration
	SweepInterval      time.Duration
	WorkerSlots        int
	WebhookMaxAttempts int
	WebhookBackoffBase time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),

		GenAPIKey:     os.Getenv("GEN_API_KEY"),
		GenModel:      getEnv("GEN_MODEL", "gemini-2.5-flash"),
		GenBaseURL:    getEnv("GEN_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GenMaxRetries: getEnvInt("GEN_MAX_RETRIES", 3),

		AuditAPIKey:  os.Getenv("AUDIT_API_KEY"),
		AuditModel:   getEnv("AUDIT_MODEL", "gemini-2.5-flash"),
		AuditBaseURL: getEnv("AUDIT_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		AuditTimeout: getEnvDuration("AUDIT_TIMEOUT", 45*time.Second),

		AutoApproveThreshold: getEnvFloat("AUTO_APPROVE_THRESHOLD", 95),
		ReviewThreshold:      getEnvFloat("REVIEW_THRESHOLD", 70),
		MaxAttempts:          getEnvInt("MAX_ATTEMPTS", 3),

		JobTTL:             getEnvDuration("JOB_TTL", 24*time.Hour),
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", time.Hour),
		WorkerSlots:        getEnvInt("WORKER_SLOTS", 8),
		WebhookMaxAttempts: getEnvInt("WEBHOOK_MAX_ATTEMPTS", 5),
		WebhookBackoffBase: getEnvDuration("WEBHOOK_BACKOFF_BASE", 2*time.Second),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.AutoApproveThreshold < cfg.ReviewThreshold {
		return nil, fmt.Errorf("AUTO_APPROVE_THRESHOLD must be >= REVIEW_THRESHOLD")
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
