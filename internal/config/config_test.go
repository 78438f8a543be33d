package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "storefront", cfg.Service.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "USD", cfg.Checkout.Currency)
	assert.Equal(t, 5*time.Second, cfg.Checkout.GatewayTimeout)
	assert.Equal(t, 2, cfg.Checkout.GatewayRetries)
	assert.Equal(t, 3, cfg.Checkout.CommitRetries)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  name: shopd
http:
  addr: ":9090"
checkout:
  currency: EUR
  gateway_timeout: 2s
payment:
  decline_rate: 0.25
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "shopd", cfg.Service.Name)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "EUR", cfg.Checkout.Currency)
	assert.Equal(t, 2*time.Second, cfg.Checkout.GatewayTimeout)
	assert.Equal(t, 0.25, cfg.Payment.DeclineRate)
	// Untouched keys keep their defaults.
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":9090\"\n"), 0o644))

	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("KAFKA_BROKERS", "a:9092, ,b:9092")
	t.Setenv("GATEWAY_TIMEOUT", "750ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 750*time.Millisecond, cfg.Checkout.GatewayTimeout)
}

func TestValidation(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mysql")
	_, err := Load("")
	assert.Error(t, err, "mysql driver without dsn is rejected")

	t.Setenv("STORE_DSN", "user:pass@tcp(localhost:3306)/storefront?parseTime=true")
	_, err = Load("")
	assert.NoError(t, err)

	t.Setenv("STORE_DRIVER", "cassandra")
	_, err = Load("")
	assert.Error(t, err)
}

func TestDeclineRateBounds(t *testing.T) {
	t.Setenv("PAYMENT_DECLINE_RATE", "1.5")
	_, err := Load("")
	assert.Error(t, err)
}

func TestMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "storefront", cfg.Service.Name)
}
