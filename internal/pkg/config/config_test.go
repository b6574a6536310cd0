package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("WEBHOOK_SECRET", "whsec_a, whsec_b")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("INTERNAL_API_KEY", "internal-key-0123456789")
}

func TestLoadDefaults(t *testing.T) {
	setValidEnv(t)
	t.Setenv("PLAN_PRICE_GROWTH", "price_growth")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "3306", cfg.Database.Port)
	assert.Equal(t, "sql", cfg.Store.Backend)
	assert.Equal(t, "redis", cfg.Lock.Backend)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
	assert.Equal(t, []string{"whsec_a", "whsec_b"}, cfg.Billing.WebhookSecrets)
	assert.Equal(t, 5*time.Minute, cfg.Billing.WebhookTolerance)
	assert.Equal(t, map[string]string{"growth": "price_growth"}, cfg.Billing.PlanPrices)
	assert.Equal(t, "localhost:6379", cfg.Cache.Addr())
	assert.Equal(t, 15*time.Minute, cfg.Billing.SweepInterval)
	assert.Equal(t, 100, cfg.Billing.SweepBatch)
}

func TestLoadPostgres(t *testing.T) {
	setValidEnv(t)
	t.Setenv("DB_DRIVER", "Postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "5432", cfg.Database.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"missing webhook secret": {"WEBHOOK_SECRET": " , "},
		"unknown driver":         {"DB_DRIVER": "sqlite"},
		"unknown lock backend":   {"LOCK_BACKEND": "etcd"},
		"unknown store backend":  {"STORE_BACKEND": "sqlite"},
		"short jwt secret":       {"JWT_SECRET": "short"},
		"missing stripe key":     {"STRIPE_SECRET_KEY": ""},
		"zero sweep batch":       {"SWEEP_BATCH": "0"},
	}

	for name, overrides := range tests {
		t.Run(name, func(t *testing.T) {
			setValidEnv(t)
			for k, v := range overrides {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
