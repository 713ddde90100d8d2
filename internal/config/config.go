/**
 * @description
 * Configuration for the payments webhook service. Values come from the
 * environment, optionally seeded from a `.env` file, and are decoded by Viper.
 *
 * @dependencies
 * - github.com/spf13/viper: environment and .env binding.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the service.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	StripeWebhookSecret        string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	SignatureToleranceSeconds  int    `mapstructure:"SIGNATURE_TOLERANCE_SECONDS"`
	WebhookBodyLimitBytes      int64  `mapstructure:"WEBHOOK_BODY_LIMIT_BYTES"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix             string `mapstructure:"REDIS_KEY_PREFIX"`
	InflightLockTTLSeconds     int    `mapstructure:"INFLIGHT_LOCK_TTL_SECONDS"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	PaymentEventsExchange      string `mapstructure:"PAYMENT_EVENTS_EXCHANGE"`
	OpsJWTSecret               string `mapstructure:"OPS_JWT_SECRET"`
	ReconciliationJobSchedule  string `mapstructure:"RECONCILIATION_JOB_SCHEDULE"`
	ReconciliationGraceMinutes int    `mapstructure:"RECONCILIATION_GRACE_MINUTES"`
	OutboxPollIntervalSeconds  int    `mapstructure:"OUTBOX_POLL_INTERVAL_SECONDS"`
}

const (
	defaultServerPort          = "8081"
	defaultToleranceSeconds    = 300
	defaultBodyLimitBytes      = 1 << 20
	defaultRedisKeyPrefix      = "luxe:stripe_webhook"
	defaultInflightTTLSeconds  = 60
	defaultEventsExchange      = "payment_events"
	defaultReconciliationCron  = "*/15 * * * *"
	defaultReconciliationGrace = 10
	defaultOutboxPollSeconds   = 2
)

// LoadConfig reads configuration from the environment and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("SIGNATURE_TOLERANCE_SECONDS", defaultToleranceSeconds)
	viper.SetDefault("WEBHOOK_BODY_LIMIT_BYTES", defaultBodyLimitBytes)
	viper.SetDefault("REDIS_KEY_PREFIX", defaultRedisKeyPrefix)
	viper.SetDefault("INFLIGHT_LOCK_TTL_SECONDS", defaultInflightTTLSeconds)
	viper.SetDefault("PAYMENT_EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("RECONCILIATION_JOB_SCHEDULE", defaultReconciliationCron)
	viper.SetDefault("RECONCILIATION_GRACE_MINUTES", defaultReconciliationGrace)
	viper.SetDefault("OUTBOX_POLL_INTERVAL_SECONDS", defaultOutboxPollSeconds)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("DATABASE_URL", "DATABASE_URL", "SUPABASE_DB_URL")
	_ = viper.BindEnv("SIGNATURE_TOLERANCE_SECONDS")
	_ = viper.BindEnv("WEBHOOK_BODY_LIMIT_BYTES")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("INFLIGHT_LOCK_TTL_SECONDS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYMENT_EVENTS_EXCHANGE")
	_ = viper.BindEnv("OPS_JWT_SECRET")
	_ = viper.BindEnv("RECONCILIATION_JOB_SCHEDULE")
	_ = viper.BindEnv("RECONCILIATION_GRACE_MINUTES")
	_ = viper.BindEnv("OUTBOX_POLL_INTERVAL_SECONDS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.StripeWebhookSecret = strings.TrimSpace(config.StripeWebhookSecret)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.OpsJWTSecret = strings.TrimSpace(config.OpsJWTSecret)
	config.PaymentEventsExchange = strings.TrimSpace(config.PaymentEventsExchange)

	if config.SignatureToleranceSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"invalid SIGNATURE_TOLERANCE_SECONDS; using default\" value=%d", config.SignatureToleranceSeconds)
		config.SignatureToleranceSeconds = defaultToleranceSeconds
	}
	if config.WebhookBodyLimitBytes <= 0 {
		config.WebhookBodyLimitBytes = defaultBodyLimitBytes
	}
	if config.InflightLockTTLSeconds <= 0 {
		config.InflightLockTTLSeconds = defaultInflightTTLSeconds
	}
	if config.ReconciliationGraceMinutes < 0 {
		config.ReconciliationGraceMinutes = defaultReconciliationGrace
	}
	if config.OutboxPollIntervalSeconds <= 0 {
		config.OutboxPollIntervalSeconds = defaultOutboxPollSeconds
	}
	if strings.TrimSpace(config.ReconciliationJobSchedule) == "" {
		config.ReconciliationJobSchedule = defaultReconciliationCron
	}

	return
}

// SignatureTolerance is the accepted clock skew for webhook timestamps.
func (c Config) SignatureTolerance() time.Duration {
	return time.Duration(c.SignatureToleranceSeconds) * time.Second
}

// InflightLockTTL bounds how long one delivery may hold its session claim.
func (c Config) InflightLockTTL() time.Duration {
	return time.Duration(c.InflightLockTTLSeconds) * time.Second
}

// ReconciliationGrace is how old a failed delivery must be before it is reported.
func (c Config) ReconciliationGrace() time.Duration {
	return time.Duration(c.ReconciliationGraceMinutes) * time.Minute
}

// OutboxPollInterval is the dispatcher tick.
func (c Config) OutboxPollInterval() time.Duration {
	return time.Duration(c.OutboxPollIntervalSeconds) * time.Second
}
