package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

var testClaims = auth.Claims{ActorID: "u-1", Role: rbac.RoleUser, TenantID: "tenant-1"}

func TestAccessDenied(t *testing.T) {
	ctx := contextkeys.WithRequestID(context.Background(), "req-42")
	event := AccessDenied(ctx, testClaims, rbac.PermUserDelete)

	_, err := uuid.Parse(event.ID)
	assert.NoError(t, err)
	assert.Equal(t, EventTypeAccessDenied, event.EventType)
	assert.Equal(t, EventStatusDenied, event.Status)
	assert.Equal(t, "user:delete", event.DeniedPermission)
	assert.Equal(t, "req-42", event.RequestID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestAccessDenied_JSONShape(t *testing.T) {
	event := AccessDenied(context.Background(), testClaims, rbac.PermUserDelete)

	data, err := event.ToJSON()
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "u-1", fields["actorId"])
	assert.Equal(t, "user", fields["role"])
	assert.Equal(t, "tenant-1", fields["tenantId"])
	assert.Equal(t, "user:delete", fields["deniedPermission"])
	assert.Contains(t, fields, "timestamp")
	assert.NotContains(t, fields, "action")

	parsed, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, event.ID, parsed.ID)
	assert.True(t, event.Timestamp.Equal(parsed.Timestamp))
}

func TestActionDenied(t *testing.T) {
	target := auth.Target{Role: rbac.RoleAdmin, TenantID: "tenant-2"}
	event := ActionDenied(context.Background(), testClaims, target, rbac.ActionDelete, rbac.ReasonTenantMismatch)

	assert.Equal(t, EventTypeActionDenied, event.EventType)
	assert.Equal(t, rbac.ActionDelete, event.Action)
	assert.Equal(t, rbac.RoleAdmin, event.TargetRole)
	assert.Equal(t, rbac.TenantID("tenant-2"), event.TargetTenantID)
	assert.Equal(t, "tenant_mismatch", event.Reason)
	assert.Empty(t, event.DeniedPermission)
}

func TestEventIDsAreUnique(t *testing.T) {
	a := NewEvent(context.Background(), EventTypeCacheInvalidate, EventStatusSuccess, testClaims)
	b := NewEvent(context.Background(), EventTypeCacheInvalidate, EventStatusSuccess, testClaims)
	assert.NotEqual(t, a.ID, b.ID)
}
