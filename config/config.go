package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string
	LogLevel    string

	// Redis configuration
	RedisURL string

	// Payment provider
	StripeWebhookSecret string
	WebhookLockTTL      time.Duration
	WebhookProcessedTTL time.Duration

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Email
	MailerSendAPIKey    string
	MailerSendFromEmail string
	MailerSendFromName  string
	NotificationTimeout time.Duration

	// Referral program
	ReferralProgramFile string
	Program             ReferralProgram

	// Security
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

// LoadConfig reads .env (when present) and the process environment. The
// referral program is loaded from REFERRAL_PROGRAM_FILE when set.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// Payment provider
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		WebhookLockTTL:      getEnvAsDuration("WEBHOOK_LOCK_TTL", "30s"),
		WebhookProcessedTTL: getEnvAsDuration("WEBHOOK_EVENT_TTL", "72h"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "payments-core"),

		// Email
		MailerSendAPIKey:    getEnv("MAILERSEND_API_KEY", ""),
		MailerSendFromEmail: getEnv("MAILERSEND_FROM_EMAIL", ""),
		MailerSendFromName:  getEnv("MAILERSEND_FROM_NAME", "Nightlife"),
		NotificationTimeout: getEnvAsDuration("NOTIFICATION_TIMEOUT", "10s"),

		// Referral program
		ReferralProgramFile: getEnv("REFERRAL_PROGRAM_FILE", ""),
		Program:             DefaultReferralProgram(),

		// Security
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}

	if cfg.ReferralProgramFile != "" {
		program, err := LoadReferralProgram(cfg.ReferralProgramFile)
		if err != nil {
			return nil, err
		}
		cfg.Program = *program
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
