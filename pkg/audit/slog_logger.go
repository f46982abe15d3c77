package audit

import (
	"context"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// SlogLogger writes audit events to the service log. Denials are logged at
// warn, everything else at info.
type SlogLogger struct {
	logger *observability.Logger
}

// NewSlogLogger creates an audit logger backed by logger
func NewSlogLogger(logger *observability.Logger) *SlogLogger {
	return &SlogLogger{logger: logger.WithField("component", "audit")}
}

// Log writes event as structured fields
func (l *SlogLogger) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit_id":   event.ID,
		"event_type": string(event.EventType),
		"status":     string(event.Status),
		"actor_id":   event.ActorID,
		"role":       string(event.Role),
		"tenant_id":  string(event.TenantID),
	}
	if event.DeniedPermission != "" {
		fields["denied_permission"] = event.DeniedPermission
	}
	if event.Action != "" {
		fields["action"] = string(event.Action)
		fields["target_role"] = string(event.TargetRole)
		fields["target_tenant_id"] = string(event.TargetTenantID)
	}
	if event.Reason != "" {
		fields["reason"] = event.Reason
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}

	log := l.logger.WithFields(fields)
	if event.Status == EventStatusDenied {
		log.Warn("audit event")
	} else {
		log.Info("audit event")
	}
	return nil
}

// Close is a no-op
func (l *SlogLogger) Close() error {
	return nil
}
