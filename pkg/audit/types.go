package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeAccessDenied     EventType = "authz.access_denied"
	EventTypeActionDenied     EventType = "authz.action_denied"
	EventTypePermissionGrant  EventType = "authz.permission_grant"
	EventTypePermissionRevoke EventType = "authz.permission_revoke"
	EventTypeCacheInvalidate  EventType = "authz.cache_invalidate"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is a single audit log entry
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"eventType"`
	Status    EventStatus `json:"status"`

	// Actor
	ActorID  string        `json:"actorId"`
	Role     rbac.Role     `json:"role"`
	TenantID rbac.TenantID `json:"tenantId"`

	// What was denied. Permission denials set DeniedPermission, action
	// denials set Action and the target fields.
	DeniedPermission string        `json:"deniedPermission,omitempty"`
	Action           rbac.Action   `json:"action,omitempty"`
	TargetRole       rbac.Role     `json:"targetRole,omitempty"`
	TargetTenantID   rbac.TenantID `json:"targetTenantId,omitempty"`
	Reason           string        `json:"reason,omitempty"`

	RequestID string                 `json:"requestId,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event for the actor in claims
func NewEvent(ctx context.Context, eventType EventType, status EventStatus, claims auth.Claims) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		ActorID:   claims.ActorID,
		Role:      claims.Role,
		TenantID:  claims.TenantID,
		RequestID: contextkeys.GetRequestID(ctx),
	}
}

// AccessDenied builds the event for a missing permission
func AccessDenied(ctx context.Context, claims auth.Claims, perm rbac.Permission) *Event {
	event := NewEvent(ctx, EventTypeAccessDenied, EventStatusDenied, claims)
	event.DeniedPermission = perm.String()
	return event
}

// ActionDenied builds the event for a refused action against a target
func ActionDenied(ctx context.Context, claims auth.Claims, target auth.Target, action rbac.Action, reason rbac.Reason) *Event {
	event := NewEvent(ctx, EventTypeActionDenied, EventStatusDenied, claims)
	event.Action = action
	event.TargetRole = target.Role
	event.TargetTenantID = target.TenantID
	event.Reason = string(reason)
	return event
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}
