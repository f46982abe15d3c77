package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{"returns true for 'true'", false, "true", true},
		{"returns true for '1'", false, "1", true},
		{"returns true for 'TRUE'", false, "TRUE", true},
		{"returns false for 'false'", true, "false", false},
		{"returns false for garbage", true, "yes", false},
		{"returns default when unset", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_BOOL", tt.envValue)
			}
			if got := getEnvBool("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvNumeric tests the integer and duration helpers
func TestGetEnvNumeric(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "forty-two")
	t.Setenv("TEST_INT64", "9000000000")
	t.Setenv("TEST_DURATION", "750ms")
	t.Setenv("TEST_DURATION_BAD", "soon")

	assert.Equal(t, 42, getEnvInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("TEST_INT_BAD", 1))
	assert.Equal(t, int64(9000000000), getEnvInt64("TEST_INT64", 0))
	assert.Equal(t, 750*time.Millisecond, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION_BAD", time.Second))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(" , "))
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, observability.InfoLevel, cfg.Observability.Level())
	assert.Empty(t, cfg.Store.PostgresURL, "dynamic store is opt-in")
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("TENANTGUARD_PORT", "8181")
	t.Setenv("TENANTGUARD_POSTGRES_URL", "postgres://primary/tg")
	t.Setenv("TENANTGUARD_POSTGRES_REPLICA_URLS", "postgres://r1/tg, postgres://r2/tg")
	t.Setenv("TENANTGUARD_REDIS_URL", "redis://localhost:6379")
	t.Setenv("TENANTGUARD_REDIS_TTL", "2m")
	t.Setenv("TENANTGUARD_CACHE_SIZE", "64")
	t.Setenv("TENANTGUARD_FETCH_TIMEOUT", "250ms")
	t.Setenv("TENANTGUARD_AUDIT_DIR", "/tmp/tg-audit")
	t.Setenv("TENANTGUARD_LOG_LEVEL", "debug")
	t.Setenv("TENANTGUARD_OTEL_ENABLED", "true")
	t.Setenv("TENANTGUARD_RATE_LIMIT_DISTRIBUTED", "1")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, "postgres://primary/tg", cfg.Store.PostgresURL)
	assert.Equal(t, []string{"postgres://r1/tg", "postgres://r2/tg"}, cfg.Store.PostgresReplicaURLs)
	assert.Equal(t, 2*time.Minute, cfg.Store.RedisTTL)
	assert.Equal(t, 64, cfg.Cache.Size)
	assert.Equal(t, 250*time.Millisecond, cfg.Cache.FetchTimeout)
	assert.Equal(t, "/tmp/tg-audit", cfg.Audit.Directory)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.Level())
	assert.True(t, cfg.Observability.OTel().Enabled)
	assert.True(t, cfg.RateLimit.UseDistributed)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authzd.yaml")
	doc := `
server:
  port: "7000"
  health_port: "7001"
store:
  postgres_url: postgres://from-file/tg
  redis_ttl: 30s
cache:
  size: 32
observability:
  log_level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	t.Setenv(EnvConfigFile, path)
	t.Setenv("TENANTGUARD_CACHE_SIZE", "128")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "7001", cfg.Server.HealthPort)
	assert.Equal(t, "postgres://from-file/tg", cfg.Store.PostgresURL)
	assert.Equal(t, 30*time.Second, cfg.Store.RedisTTL)
	assert.Equal(t, 128, cfg.Cache.Size, "env overrides file")
	assert.Equal(t, observability.WarnLevel, cfg.Observability.Level())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "keys absent from the file keep defaults")
}

func TestLoadConfig_FileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
		t.Setenv(EnvConfigFile, path)
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing server port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"missing health port", func(c *Config) { c.Server.HealthPort = "" }, "health port is required"},
		{"same server and health port", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "server port and health port must be different"},
		{"replicas without primary", func(c *Config) { c.Store.PostgresReplicaURLs = []string{"postgres://r1"} }, "postgres URL is required when replicas are configured"},
		{"min conns above max", func(c *Config) { c.Store.PostgresMinConns = 50 }, "postgres min conns (50) exceeds max conns (20)"},
		{"redis without ttl", func(c *Config) { c.Store.RedisURL = "redis://x"; c.Store.RedisTTL = 0 }, "redis TTL must be positive when redis is configured"},
		{"zero cache size", func(c *Config) { c.Cache.Size = 0 }, "cache size must be positive"},
		{"zero fetch timeout", func(c *Config) { c.Cache.FetchTimeout = 0 }, "fetch timeout must be positive"},
		{"audit dir without rotation", func(c *Config) { c.Audit.Directory = "/tmp/a"; c.Audit.MaxFiles = 0 }, "audit max file size and max files must be positive"},
		{"zero rate limit", func(c *Config) { c.RateLimit.ActorPerMinute = 0 }, "rate limits must be positive when rate limiting is enabled"},
		{"distributed limiter without redis", func(c *Config) { c.RateLimit.UseDistributed = true }, "distributed rate limiting requires a redis URL"},
		{"bad log level", func(c *Config) { c.Observability.LogLevel = "loud" }, "invalid log level: loud (must be debug, info, warn, or error)"},
		{"otel enabled without endpoint", func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelEndpoint = "" }, "OpenTelemetry endpoint is required when OTel is enabled"},
		{"otel enabled without service name", func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelServiceName = "" }, "OpenTelemetry service name is required when OTel is enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}

	t.Run("rate limits ignored when disabled", func(t *testing.T) {
		cfg := Default()
		cfg.RateLimit.Enabled = false
		cfg.RateLimit.ActorPerMinute = 0
		assert.NoError(t, cfg.Validate())
	})
}
