package audit

import (
	"context"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NopLogger()
}

// NopLogger returns a logger that drops every event
func NopLogger() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *Event) error { return nil }
func (noOpLogger) Close() error { return nil }

// CountingLogger counts events by type before passing them on
type CountingLogger struct {
	next    Logger
	metrics *observability.Metrics
}

// WithMetrics wraps next so every logged event is counted
func WithMetrics(next Logger, metrics *observability.Metrics) *CountingLogger {
	return &CountingLogger{next: next, metrics: metrics}
}

// Log counts the event and forwards it
func (c *CountingLogger) Log(ctx context.Context, event *Event) error {
	c.metrics.AuditEventsTotal.WithLabelValues(string(event.EventType)).Inc()
	return c.next.Log(ctx, event)
}

// Close closes the wrapped logger
func (c *CountingLogger) Close() error {
	return c.next.Close()
}
