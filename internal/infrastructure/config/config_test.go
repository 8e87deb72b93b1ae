package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"QUOTA_APP_NAME",
	"QUOTA_APP_ENV",
	"QUOTA_APP_PORT",
	"QUOTA_DATABASE_DRIVER",
	"QUOTA_DATABASE_HOST",
	"QUOTA_DATABASE_PORT",
	"QUOTA_DATABASE_PASSWORD",
	"QUOTA_DATABASE_SSLMODE",
	"QUOTA_DATABASE_MAX_OPEN_CONNS",
	"QUOTA_DATABASE_MAX_IDLE_CONNS",
	"QUOTA_JWT_SECRET",
	"QUOTA_HTTP_ADMIN_API_KEY",
	"QUOTA_HTTP_CORS_ALLOW_ORIGINS",
	"QUOTA_ENFORCEMENT_WARN_THRESHOLD",
	"QUOTA_ENFORCEMENT_GRACE_DURATION",
	"QUOTA_ENFORCEMENT_INTERVAL_WARN",
	"QUOTA_POLICY_DEGRADED_SAMPLING_RATE",
	"QUOTA_QUOTA_COUNT_CACHE_TTL",
	"QUOTA_SCHEDULER_BATCH_SIZE",
	"QUOTA_TELEMETRY_SAMPLING_RATIO",
	"QUOTA_PROFILING_ENABLED",
}

// isolateEnv clears the config env vars and restores them after the test
func isolateEnv(t *testing.T) {
	t.Helper()
	saved := map[string]string{}
	for _, k := range configEnvKeys {
		if v, ok := os.LookupEnv(k); ok {
			saved[k] = v
		}
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range configEnvKeys {
			if v, ok := saved[k]; ok {
				os.Setenv(k, v)
			} else {
				os.Unsetenv(k)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		isolateEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "quota-engine", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, DriverPostgres, cfg.Database.Driver)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "quota", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, "enforcement:invalidate", cfg.Redis.InvalidationChannel)

		assert.Equal(t, 0.8, cfg.Enforcement.WarnThreshold)
		assert.Equal(t, 48*time.Hour, cfg.Enforcement.GraceDuration)
		assert.Equal(t, 6*time.Hour, cfg.Enforcement.ActiveInterval)
		assert.Equal(t, 15*time.Minute, cfg.Enforcement.WarnInterval)
		assert.Equal(t, 5*time.Minute, cfg.Enforcement.GraceInterval)
		assert.Equal(t, 30, cfg.Policy.RetentionDays)
		assert.Equal(t, 7, cfg.Policy.MinRetentionDays)
		assert.Equal(t, 10*time.Second, cfg.Quota.CountCacheTTL)
		assert.Equal(t, 200, cfg.Scheduler.BatchSize)
		assert.Equal(t, 5*time.Minute, cfg.Scheduler.FailureBackoff)
		assert.True(t, cfg.Scheduler.RenewalEnabled)
		assert.Equal(t, time.Hour, cfg.Scheduler.RenewalInterval)
		assert.Equal(t, 100, cfg.Scheduler.RenewalBatchSize)
		assert.Equal(t, "quota-engine", cfg.Telemetry.ServiceName)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
		assert.Equal(t, "localhost:4317", cfg.Telemetry.CollectorEndpoint)
	})

	t.Run("loads values from environment variables with QUOTA prefix", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("QUOTA_APP_NAME", "quota-test")
		t.Setenv("QUOTA_DATABASE_DRIVER", "mysql")
		t.Setenv("QUOTA_DATABASE_HOST", "db.internal")
		t.Setenv("QUOTA_ENFORCEMENT_WARN_THRESHOLD", "0.9")
		t.Setenv("QUOTA_ENFORCEMENT_GRACE_DURATION", "72h")
		t.Setenv("QUOTA_QUOTA_COUNT_CACHE_TTL", "30s")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "quota-test", cfg.App.Name)
		assert.Equal(t, DriverMySQL, cfg.Database.Driver)
		assert.Equal(t, 3306, cfg.Database.Port, "mysql gets its own default port")
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 0.9, cfg.Enforcement.WarnThreshold)
		assert.Equal(t, 72*time.Hour, cfg.Enforcement.GraceDuration)
		assert.Equal(t, 30*time.Second, cfg.Quota.CountCacheTTL)

		ev := cfg.EvaluatorConfig()
		assert.Equal(t, 0.9, ev.WarnThreshold)
		assert.Equal(t, 72*time.Hour, ev.GraceDuration)
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("QUOTA_DATABASE_DRIVER", "oracle")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("QUOTA_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("QUOTA_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects warn threshold outside (0, 1)", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("QUOTA_ENFORCEMENT_WARN_THRESHOLD", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "warn threshold")
	})

	t.Run("rejects warn interval longer than active interval", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("QUOTA_ENFORCEMENT_INTERVAL_WARN", "12h")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "warn_interval")
	})

	t.Run("rejects sampling rate above 1", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("QUOTA_POLICY_DEGRADED_SAMPLING_RATE", "2")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "degraded_sampling_rate")
	})

	t.Run("rejects negative batch size", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("QUOTA_SCHEDULER_BATCH_SIZE", "-5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scheduler.batch_size")
	})

	t.Run("rejects trace sampling ratio above 1", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("QUOTA_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.sampling_ratio")
	})

	t.Run("requires a profiling server when profiling is on", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("QUOTA_PROFILING_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "profiling.server_address")
	})

	t.Run("profiling application defaults to the app name", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("QUOTA_APP_NAME", "quota-edge")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "quota-edge", cfg.Profiling.ApplicationName)
		assert.False(t, cfg.Profiling.Enabled)
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("QUOTA_APP_ENV", "production")
		t.Setenv("QUOTA_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		t.Setenv("QUOTA_DATABASE_PASSWORD", "secure-password")
		t.Setenv("QUOTA_DATABASE_SSLMODE", "require")
		t.Setenv("QUOTA_HTTP_ADMIN_API_KEY", "admin-key")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires long jwt secret", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("QUOTA_JWT_SECRET", "short")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires admin api key", func(t *testing.T) {
		setValidProductionBase(t)
		os.Unsetenv("QUOTA_HTTP_ADMIN_API_KEY")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http.admin_api_key")
	})

	t.Run("requires SSL for postgres", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("QUOTA_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("rejects sqlite", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("QUOTA_DATABASE_DRIVER", "sqlite")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sqlite")
	})

	t.Run("rejects wildcard CORS", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("QUOTA_HTTP_CORS_ALLOW_ORIGINS", "*")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cors_allow_origins")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("postgres escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "postgres://")
		assert.Contains(t, dsn, "pass%40word%23123")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("mysql uses tcp form with parseTime", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   DriverMySQL,
			Host:     "mysql.local",
			Port:     3306,
			User:     "root",
			Password: "secret",
			DBName:   "quota",
		}

		assert.Equal(t, "root:secret@tcp(mysql.local:3306)/quota?charset=utf8mb4&parseTime=True&loc=UTC", cfg.DSN())
	})

	t.Run("sqlite returns the path", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: DriverSQLite, Path: ":memory:"}
		assert.Equal(t, ":memory:", cfg.DSN())
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.Addr())
}
