package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EventBusLog     = "log"
	EventBusNATS    = "nats"
	EventBusRedis   = "redis"
	EventBusWebhook = "webhook"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort         string
	LogLevel           slog.Level
	TransactionTimeout time.Duration

	OutboxBatchSize       int
	OutboxPollInterval    time.Duration
	OutboxRetryAttempts   int
	OutboxRetryBaseDelay  time.Duration
	OutboxBreakerFailures int
	OutboxBreakerCooldown time.Duration

	EventBus          string
	NatsURL           string
	NatsSubjectPrefix string
	RedisAddr         string
	RedisStream       string
	RedisStreamMaxLen int64
	WebhookURL        string
	WebhookTimeout    time.Duration
}

// Load reads an optional .env file and then the environment, falling back
// to defaults suitable for local development.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "ledger"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		ServerPort:         getEnv("SERVER_PORT", "8080"),
		LogLevel:           getLogLevel("LOG_LEVEL", slog.LevelInfo),
		TransactionTimeout: getEnvDuration("TRANSACTION_TIMEOUT", 5*time.Second),

		OutboxBatchSize:       getEnvInt("OUTBOX_BATCH_SIZE", 20),
		OutboxPollInterval:    getEnvDuration("OUTBOX_POLL_INTERVAL", 10*time.Second),
		OutboxRetryAttempts:   getEnvInt("OUTBOX_RETRY_ATTEMPTS", 3),
		OutboxRetryBaseDelay:  getEnvDuration("OUTBOX_RETRY_BASE_DELAY", 2*time.Second),
		OutboxBreakerFailures: getEnvInt("OUTBOX_BREAKER_FAILURES", 5),
		OutboxBreakerCooldown: getEnvDuration("OUTBOX_BREAKER_COOLDOWN", 30*time.Second),

		EventBus:          strings.ToLower(getEnv("EVENT_BUS", EventBusLog)),
		NatsURL:           os.Getenv("NATS_URL"),
		NatsSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "ledger"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisStream:       getEnv("REDIS_STREAM", "ledger:events"),
		RedisStreamMaxLen: int64(getEnvInt("REDIS_STREAM_MAXLEN", 0)),
		WebhookURL:        os.Getenv("WEBHOOK_URL"),
		WebhookTimeout:    getEnvDuration("WEBHOOK_TIMEOUT", 5*time.Second),
	}
}

func (c *Config) Validate() error {
	if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
		return fmt.Errorf("missing required env for database: DB_HOST/DB_USER/DB_NAME")
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.OutboxBatchSize)
	}
	if c.OutboxRetryAttempts < 0 {
		return fmt.Errorf("OUTBOX_RETRY_ATTEMPTS cannot be negative, got %d", c.OutboxRetryAttempts)
	}
	if c.OutboxBreakerFailures <= 0 {
		return fmt.Errorf("OUTBOX_BREAKER_FAILURES must be positive, got %d", c.OutboxBreakerFailures)
	}

	switch c.EventBus {
	case EventBusLog:
	case EventBusNATS:
		if c.NatsURL == "" {
			return fmt.Errorf("missing required env for nats bus: NATS_URL")
		}
	case EventBusRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("missing required env for redis bus: REDIS_ADDR")
		}
	case EventBusWebhook:
		if c.WebhookURL == "" {
			return fmt.Errorf("missing required env for webhook bus: WEBHOOK_URL")
		}
	default:
		return fmt.Errorf("invalid event bus %q, must be one of log, nats, redis, webhook", c.EventBus)
	}

	return nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getLogLevel(key string, defaultVal slog.Level) slog.Level {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(val)); err != nil {
		return defaultVal
	}
	return level
}
