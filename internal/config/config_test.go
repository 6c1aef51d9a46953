package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	require.True(t, cfg.OutboxEnabled)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Len(t, cfg.ConsumerTopics, 3)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
	require.Equal(t, time.Minute, cfg.OutboxClaimLease)
	require.NoError(t, cfg.Validate())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("OUTBOX_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("DLQ_BASE_DELAY", "15s")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")

	cfg := Load()
	require.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	require.False(t, cfg.OutboxEnabled)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 2.5, cfg.RateLimitRPS)
	require.Equal(t, 15*time.Second, cfg.DLQBaseDelay)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsInconsistentSettings(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "")

	cfg := Load()
	cfg.JWTSecret = ""
	err := cfg.Validate()
	require.ErrorContains(t, err, "OUTBOX_ENABLED requires STORE_DRIVER=postgres")
	require.ErrorContains(t, err, "JWT_SECRET is required")

	cfg.StoreDriver = "sqlite"
	require.ErrorContains(t, cfg.Validate(), "STORE_DRIVER must be postgres or memory")
}
