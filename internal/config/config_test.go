package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"APP_ENV", "PORT", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT", "METRICS_TOKEN",
	"STORE_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE", "MIGRATIONS_PATH",
	"REDIS_ENABLED", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_CACHE_TTL",
	"AMQP_URL", "AMQP_EXCHANGE", "JWT_SECRET",
	"TRIP_ID", "TRIP_ROUTE", "TRIP_TOTAL_SEATS", "TRIP_DEPARTURE_AT",
	"RECONCILE_INTERVAL", "PENDING_TIMEOUT",
}

// clearEnv は設定に使う環境変数を空にし、.env を読まないよう空のディレクトリに移動する
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envVars {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	t.Chdir(t.TempDir())
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	assert.Equal(t, "development", cfg.Env)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Empty(t, cfg.Server.MetricsToken)

	assert.Equal(t, StoreMemory, cfg.Database.Driver)
	assert.False(t, cfg.Database.UsePostgres())
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "bus_reservation", cfg.Database.DBName)
	assert.Equal(t, "migrations", cfg.Database.MigrationsPath)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)

	assert.Empty(t, cfg.AMQP.URL)
	assert.Equal(t, "reservations", cfg.AMQP.Exchange)
	assert.Empty(t, cfg.Auth.JWTSecret)

	assert.Equal(t, "trip-001", cfg.Trip.ID)
	assert.Equal(t, 40, cfg.Trip.TotalSeats)
	assert.False(t, cfg.Trip.DepartureAt.IsZero())

	assert.Equal(t, 30*time.Second, cfg.Worker.ReconcileInterval)
	assert.Equal(t, 2*time.Minute, cfg.Worker.PendingTimeout)
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DB_HOST", "db.example.com")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TRIP_ID", "trip-xyz")
	t.Setenv("TRIP_TOTAL_SEATS", "52")
	t.Setenv("TRIP_DEPARTURE_AT", "2026-11-01T08:30:00+06:00")
	t.Setenv("PENDING_TIMEOUT", "45s")

	cfg := Load()

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Database.UsePostgres())
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "trip-xyz", cfg.Trip.ID)
	assert.Equal(t, 52, cfg.Trip.TotalSeats)
	assert.Equal(t, 2026, cfg.Trip.DepartureAt.Year())
	assert.Equal(t, 8, cfg.Trip.DepartureAt.Hour())
	assert.Equal(t, 45*time.Second, cfg.Worker.PendingTimeout)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIP_TOTAL_SEATS", "many")
	t.Setenv("REDIS_ENABLED", "maybe")
	t.Setenv("RECONCILE_INTERVAL", "soon")
	t.Setenv("TRIP_DEPARTURE_AT", "tomorrow")

	cfg := Load()

	assert.Equal(t, 40, cfg.Trip.TotalSeats)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Worker.ReconcileInterval)
	assert.False(t, cfg.Trip.DepartureAt.IsZero())
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TRIP_TOTAL_SEATS=36\nPORT=7070\n"), 0o600))

	t.Run(".envの値を読み込む", func(t *testing.T) {
		cfg := Load()
		assert.Equal(t, 36, cfg.Trip.TotalSeats)
		assert.Equal(t, "7070", cfg.Server.Port)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host: "localhost", Port: "5432", User: "user", Password: "pass",
		DBName: "bus", SSLMode: "disable",
	}
	assert.Equal(t, "host=localhost port=5432 user=user password=pass dbname=bus sslmode=disable", cfg.DSN())
}
