package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// EnvConfigFile names a YAML file loaded before environment overrides
const EnvConfigFile = "TENANTGUARD_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Dynamic permission store
	Store StoreConfig `yaml:"store"`

	// In-process permission cache
	Cache CacheConfig `yaml:"cache"`

	// Audit trail
	Audit AuditConfig `yaml:"audit"`

	// Request rate limits
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// StoreConfig holds the Postgres and Redis settings of the dynamic
// permission store. Both are optional; without Postgres the service
// resolves static role permissions only.
type StoreConfig struct {
	PostgresURL         string        `yaml:"postgres_url"`
	PostgresReplicaURLs []string      `yaml:"postgres_replica_urls"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`

	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPoolSize int           `yaml:"redis_pool_size"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
	RedisPrefix   string        `yaml:"redis_prefix"`
}

// CacheConfig bounds the resolver's in-process cache
type CacheConfig struct {
	Size         int           `yaml:"size"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// AuditConfig configures where audit events are written. An empty
// Directory disables the file sink; events are still logged.
type AuditConfig struct {
	Directory   string `yaml:"directory"`
	MaxFileSize int64  `yaml:"max_file_size"`
	MaxFiles    int    `yaml:"max_files"`
}

// RateLimitConfig holds per-minute request budgets
type RateLimitConfig struct {
	Enabled         bool `yaml:"enabled"`
	ActorPerMinute  int  `yaml:"actor_per_minute"`
	AnonymousPerMin int  `yaml:"anonymous_per_minute"`
	Burst           int  `yaml:"burst"`
	FailOpen        bool `yaml:"fail_open"`
	UseDistributed  bool `yaml:"use_distributed"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
}

// Level parses LogLevel
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts the tracing settings for observability.InitTracing
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Store: StoreConfig{
			PostgresMaxConns: 20,
			PostgresMinConns: 2,
			PostgresTimeout:  5 * time.Second,
			RedisPoolSize:    10,
			RedisTTL:         10 * time.Minute,
			RedisPrefix:      "tenantguard",
		},
		Cache: CacheConfig{
			Size:         10000,
			FetchTimeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			MaxFileSize: 100 * 1024 * 1024,
			MaxFiles:    10,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			ActorPerMinute:  1000,
			AnonymousPerMin: 100,
			Burst:           50,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "tenantguard-authzd",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig builds configuration from defaults, then the YAML file named by
// TENANTGUARD_CONFIG_FILE if set, then TENANTGUARD_* environment variables
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv(EnvConfigFile, ""); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("TENANTGUARD_HOST", s.Host)
	s.Port = getEnv("TENANTGUARD_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("TENANTGUARD_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("TENANTGUARD_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("TENANTGUARD_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("TENANTGUARD_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("TENANTGUARD_HEALTH_PORT", s.HealthPort)

	st := &c.Store
	st.PostgresURL = getEnv("TENANTGUARD_POSTGRES_URL", st.PostgresURL)
	if replicas := getEnv("TENANTGUARD_POSTGRES_REPLICA_URLS", ""); replicas != "" {
		st.PostgresReplicaURLs = splitList(replicas)
	}
	st.PostgresMaxConns = getEnvInt("TENANTGUARD_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("TENANTGUARD_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("TENANTGUARD_POSTGRES_TIMEOUT", st.PostgresTimeout)
	st.RedisURL = getEnv("TENANTGUARD_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("TENANTGUARD_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("TENANTGUARD_REDIS_DB", st.RedisDB)
	st.RedisPoolSize = getEnvInt("TENANTGUARD_REDIS_POOL_SIZE", st.RedisPoolSize)
	st.RedisTTL = getEnvDuration("TENANTGUARD_REDIS_TTL", st.RedisTTL)
	st.RedisPrefix = getEnv("TENANTGUARD_REDIS_PREFIX", st.RedisPrefix)

	c.Cache.Size = getEnvInt("TENANTGUARD_CACHE_SIZE", c.Cache.Size)
	c.Cache.FetchTimeout = getEnvDuration("TENANTGUARD_FETCH_TIMEOUT", c.Cache.FetchTimeout)

	c.Audit.Directory = getEnv("TENANTGUARD_AUDIT_DIR", c.Audit.Directory)
	c.Audit.MaxFileSize = getEnvInt64("TENANTGUARD_AUDIT_MAX_FILE_SIZE", c.Audit.MaxFileSize)
	c.Audit.MaxFiles = getEnvInt("TENANTGUARD_AUDIT_MAX_FILES", c.Audit.MaxFiles)

	rl := &c.RateLimit
	rl.Enabled = getEnvBool("TENANTGUARD_RATE_LIMIT_ENABLED", rl.Enabled)
	rl.ActorPerMinute = getEnvInt("TENANTGUARD_RATE_LIMIT_ACTOR", rl.ActorPerMinute)
	rl.AnonymousPerMin = getEnvInt("TENANTGUARD_RATE_LIMIT_ANONYMOUS", rl.AnonymousPerMin)
	rl.Burst = getEnvInt("TENANTGUARD_RATE_LIMIT_BURST", rl.Burst)
	rl.FailOpen = getEnvBool("TENANTGUARD_RATE_LIMIT_FAIL_OPEN", rl.FailOpen)
	rl.UseDistributed = getEnvBool("TENANTGUARD_RATE_LIMIT_DISTRIBUTED", rl.UseDistributed)

	o := &c.Observability
	o.LogLevel = getEnv("TENANTGUARD_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("TENANTGUARD_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("TENANTGUARD_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("TENANTGUARD_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("TENANTGUARD_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("TENANTGUARD_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("TENANTGUARD_OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate store config
	if len(c.Store.PostgresReplicaURLs) > 0 && c.Store.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required when replicas are configured")
	}
	if c.Store.PostgresMinConns > c.Store.PostgresMaxConns {
		return fmt.Errorf("postgres min conns (%d) exceeds max conns (%d)", c.Store.PostgresMinConns, c.Store.PostgresMaxConns)
	}
	if c.Store.RedisURL != "" && c.Store.RedisTTL <= 0 {
		return fmt.Errorf("redis TTL must be positive when redis is configured")
	}

	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.Cache.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}

	if c.Audit.Directory != "" && (c.Audit.MaxFileSize <= 0 || c.Audit.MaxFiles <= 0) {
		return fmt.Errorf("audit max file size and max files must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.ActorPerMinute <= 0 || c.RateLimit.AnonymousPerMin <= 0 {
			return fmt.Errorf("rate limits must be positive when rate limiting is enabled")
		}
		if c.RateLimit.UseDistributed && c.Store.RedisURL == "" {
			return fmt.Errorf("distributed rate limiting requires a redis URL")
		}
	}

	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Observability.LogLevel)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
