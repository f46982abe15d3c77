// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here so that the
// producers and consumers of each value are discoverable in one place.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/tenantguard/pkg/contextkeys"
//	ctx = contextkeys.WithAuth(ctx, claims)
//	claims, ok := auth.ClaimsFromContext(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains auth.Claims
	// Set by: middleware.SessionMiddleware (pkg/middleware/session.go)
	// Required by: guard.Guard.ResolveActor and every protected handler
	// Type: auth.Claims
	AuthKey Key = "auth_claims"

	// SnapshotKey contains resolver.Snapshot
	// Set by: guard.ActorMiddleware (pkg/guard/middleware.go)
	// Used by: RequirePermission and the /authz handlers
	// Type: resolver.Snapshot
	SnapshotKey Key = "actor_snapshot"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.RequestIDMiddleware callers
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger interface
	// Set by: guard.ActorMiddleware
	// Used by: code that records denials outside of the Guard
	// Type: audit.Logger
	AuditLoggerKey Key = "audit_logger"
)

// WithAuth adds session claims to the context
func WithAuth(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, claims)
}

// WithSnapshot adds the resolved actor snapshot to the context
func WithSnapshot(ctx context.Context, snapshot interface{}) context.Context {
	return context.WithValue(ctx, SnapshotKey, snapshot)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithAuditLogger adds audit logger to the context
func WithAuditLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
