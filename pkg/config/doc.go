// Package config loads authzd configuration.
//
// Values come from defaults, then an optional YAML file named by
// TENANTGUARD_CONFIG_FILE, then TENANTGUARD_* environment variables.
//
// Server settings:
//
//	TENANTGUARD_HOST="0.0.0.0"
//	TENANTGUARD_PORT="8080"
//	TENANTGUARD_HEALTH_PORT="9090"
//	TENANTGUARD_READ_TIMEOUT="15s"
//
// Dynamic permission store (optional):
//
//	TENANTGUARD_POSTGRES_URL="postgres://localhost/tenantguard"
//	TENANTGUARD_POSTGRES_REPLICA_URLS="postgres://replica-1/tenantguard,postgres://replica-2/tenantguard"
//	TENANTGUARD_REDIS_URL="redis://localhost:6379"
//	TENANTGUARD_REDIS_TTL="10m"
//
// Resolver cache:
//
//	TENANTGUARD_CACHE_SIZE="10000"
//	TENANTGUARD_FETCH_TIMEOUT="5s"
//
// Audit and observability:
//
//	TENANTGUARD_AUDIT_DIR="/var/log/tenantguard/audit"
//	TENANTGUARD_LOG_LEVEL="info"  # debug, info, warn, error
//	TENANTGUARD_METRICS_ENABLED="true"
//	TENANTGUARD_OTEL_ENABLED="true"
//	TENANTGUARD_OTEL_ENDPOINT="otel-collector:4317"
//
// The same keys in YAML form:
//
//	server:
//	  port: "8080"
//	store:
//	  postgres_url: postgres://localhost/tenantguard
//	  redis_ttl: 10m
//	cache:
//	  size: 10000
package config
