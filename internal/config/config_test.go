package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EVENT_BUS", "")
	t.Setenv("OUTBOX_POLL_INTERVAL", "")

	cfg := Load()

	assert.Equal(t, 20, cfg.OutboxBatchSize)
	assert.Equal(t, 10*time.Second, cfg.OutboxPollInterval)
	assert.Equal(t, 3, cfg.OutboxRetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.OutboxRetryBaseDelay)
	assert.Equal(t, 5, cfg.OutboxBreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.OutboxBreakerCooldown)
	assert.Equal(t, EventBusLog, cfg.EventBus)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "ledger_test")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")
	t.Setenv("EVENT_BUS", "NATS")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	cfg := Load()

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	assert.Equal(t, 20, cfg.OutboxBatchSize)
	assert.Equal(t, EventBusNATS, cfg.EventBus)
	assert.Contains(t, cfg.GetDBConnectionString(), "host=db.internal")
	assert.Contains(t, cfg.GetDBConnectionString(), "dbname=ledger_test")
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"nats without url", func(c *Config) { c.EventBus = EventBusNATS; c.NatsURL = "" }, "NATS_URL"},
		{"redis without addr", func(c *Config) { c.EventBus = EventBusRedis; c.RedisAddr = "" }, "REDIS_ADDR"},
		{"webhook without url", func(c *Config) { c.EventBus = EventBusWebhook; c.WebhookURL = "" }, "WEBHOOK_URL"},
		{"unknown bus", func(c *Config) { c.EventBus = "kafka" }, "invalid event bus"},
		{"zero batch", func(c *Config) { c.OutboxBatchSize = 0 }, "OUTBOX_BATCH_SIZE"},
		{"missing db host", func(c *Config) { c.DBHost = "" }, "DB_HOST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			cfg.EventBus = EventBusLog
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
