package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "stockcore", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "stockcore", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, 3, cfg.Ledger.MaxRetries)
		assert.Equal(t, 20*time.Millisecond, cfg.Ledger.RetryBackoff)
		assert.Equal(t, time.Hour, cfg.Reconciliation.Interval)
		assert.Equal(t, 100, cfg.Outbox.BatchSize)
		assert.Equal(t, MessagingDriverNone, cfg.Messaging.Driver)
		assert.Equal(t, "stock-events", cfg.Messaging.Topic)
		assert.Equal(t, "reconciliation", cfg.Storage.Prefix)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
	})

	t.Run("loads values from env vars", func(t *testing.T) {
		t.Setenv("STOCK_APP_NAME", "test-app")
		t.Setenv("STOCK_APP_PORT", "9000")
		t.Setenv("STOCK_DATABASE_HOST", "testdb.local")
		t.Setenv("STOCK_DATABASE_PORT", "5433")
		t.Setenv("STOCK_DATABASE_PASSWORD", "testpass")
		t.Setenv("STOCK_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("STOCK_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("STOCK_LEDGER_MAX_RETRIES", "7")
		t.Setenv("STOCK_LEDGER_RETRY_BACKOFF", "5ms")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, 7, cfg.Ledger.MaxRetries)
		assert.Equal(t, 5*time.Millisecond, cfg.Ledger.RetryBackoff)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("STOCK_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("STOCK_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		t.Setenv("STOCK_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("rejects unknown messaging driver", func(t *testing.T) {
		t.Setenv("STOCK_MESSAGING_DRIVER", "nats")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "messaging.driver")
	})

	t.Run("kafka driver needs brokers", func(t *testing.T) {
		t.Setenv("STOCK_MESSAGING_DRIVER", "kafka")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "messaging.brokers")
	})

	t.Run("rabbitmq driver needs url", func(t *testing.T) {
		t.Setenv("STOCK_MESSAGING_DRIVER", "rabbitmq")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "messaging.url")
	})

	t.Run("archive needs storage", func(t *testing.T) {
		t.Setenv("STOCK_RECONCILIATION_ARCHIVE", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reconciliation.archive")
	})
}

func TestFromViper_TOML(t *testing.T) {
	const doc = `
[app]
name = "stock-eu"

[ledger]
max_retries = 5
retry_backoff = "10ms"

[messaging]
driver = "kafka"
brokers = ["kafka-1:9092", "kafka-2:9092"]
topic = "erp.stock"

[reconciliation]
enabled = true
interval = "30m"
`
	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "stock-eu", cfg.App.Name)
	assert.Equal(t, 5, cfg.Ledger.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, cfg.Ledger.RetryBackoff)
	assert.Equal(t, MessagingDriverKafka, cfg.Messaging.Driver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Messaging.Brokers)
	assert.Equal(t, "erp.stock", cfg.Messaging.Topic)
	assert.True(t, cfg.Reconciliation.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Reconciliation.Interval)
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("STOCK_APP_ENV", "production")
		t.Setenv("STOCK_JWT_ENABLED", "true")
		t.Setenv("STOCK_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		t.Setenv("STOCK_DATABASE_PASSWORD", "secure-password")
		t.Setenv("STOCK_DATABASE_SSLMODE", "require")
	}

	t.Run("requires jwt in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCK_JWT_ENABLED", "false")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.enabled must be true in production")
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCK_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCK_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCK_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "/testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
