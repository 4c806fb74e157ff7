package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shiporch/internal/config"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "DB_MIGRATE", "CARRIERS", "CARRIER_TIMEOUT", "SYNC_INTERVAL", "DUMMY_BALANCE",
		"EVENTS_BACKEND", "KAFKA_BROKERS", "BOOKING_EVENTS_TOPIC", "ORDER_EVENTS_TOPIC", "PRICING_CONFIG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_ErrWhenDatabaseURLMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "")
	_, err := config.Load()
	require.ErrorContains(t, err, "DATABASE_URL is not set")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@h/db?sslmode=disable")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
	require.False(t, cfg.Migrate)
	require.Equal(t, []string{"dummy"}, cfg.Carriers)
	require.Equal(t, 15*time.Second, cfg.CarrierTimeout)
	require.Equal(t, 15*time.Minute, cfg.SyncInterval)
	require.Equal(t, "100000", cfg.DummyBalance.String())
	require.Equal(t, config.BackendNone, cfg.EventsBackend)
	require.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	require.Empty(t, cfg.OrderEventsTopic)
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_MIGRATE", "true")
	t.Setenv("CARRIERS", " Swift, parcelhub ,,dummy")
	t.Setenv("CARRIER_TIMEOUT", "3s")
	t.Setenv("SYNC_INTERVAL", "1h")
	t.Setenv("DUMMY_BALANCE", "12.5")
	t.Setenv("EVENTS_BACKEND", "Kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Port)
	require.True(t, cfg.Migrate)
	require.Equal(t, []string{"swift", "parcelhub", "dummy"}, cfg.Carriers)
	require.Equal(t, 3*time.Second, cfg.CarrierTimeout)
	require.Equal(t, time.Hour, cfg.SyncInterval)
	require.Equal(t, "12.5", cfg.DummyBalance.String())
	require.Equal(t, config.BackendKafka, cfg.EventsBackend)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"CARRIER_TIMEOUT": "soon",
		"SYNC_INTERVAL":   "-1m",
		"DUMMY_BALANCE":   "lots",
		"EVENTS_BACKEND":  "nats",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DATABASE_URL", "postgres://x")
			t.Setenv(key, val)
			_, err := config.Load()
			require.ErrorContains(t, err, key)
		})
	}
}

func TestWebhookSecret(t *testing.T) {
	t.Setenv("PARCEL_HUB_WEBHOOK_SECRET", "s3cret")
	require.Equal(t, "s3cret", config.WebhookSecret("parcel-hub"))
	require.Empty(t, config.WebhookSecret("unknown"))
}
