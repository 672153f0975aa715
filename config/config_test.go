package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "PAYMENT_TTL", "DEFAULT_COMMISSION_RATE", "KAFKA_BROKERS", "DB_AUTO_MIGRATE"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	require.Equal(t, "3000", cfg.Port)
	require.Equal(t, 15*time.Minute, cfg.PaymentTTL)
	require.Equal(t, "5", cfg.DefaultCommissionRate.String())
	require.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	require.False(t, cfg.DBAutoMigrate)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("PAYMENT_TTL", "5m")
	t.Setenv("DEFAULT_COMMISSION_RATE", "7.5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DB_AUTO_MIGRATE", "true")
	t.Setenv("LEDGER_MAX_RETRIES", "not-a-number")

	cfg := Load()
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 5*time.Minute, cfg.PaymentTTL)
	require.Equal(t, "7.5", cfg.DefaultCommissionRate.String())
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.DBAutoMigrate)
	require.Equal(t, 8, cfg.LedgerMaxRetries)
}
