package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

func TestClaims_Validate(t *testing.T) {
	tests := []struct {
		name    string
		claims  Claims
		wantErr bool
	}{
		{"tenant admin", Claims{ActorID: "a", Role: rbac.RoleAdmin, TenantID: "t1"}, false},
		{"super-admin", Claims{ActorID: "root", Role: rbac.RoleSuperAdmin, IsSuperAdmin: true}, false},
		{"unknown role in tenant", Claims{ActorID: "x", Role: rbac.Role("intern"), TenantID: "t1"}, false},
		{"missing actor id", Claims{Role: rbac.RoleUser, TenantID: "t1"}, true},
		{"flag without platform tenant", Claims{ActorID: "a", Role: rbac.RoleSuperAdmin, TenantID: "t1", IsSuperAdmin: true}, true},
		{"platform tenant without flag", Claims{ActorID: "a", Role: rbac.RoleAdmin}, true},
		{"super-admin role without flag", Claims{ActorID: "a", Role: rbac.RoleSuperAdmin, TenantID: "t1"}, true},
		{"flag with tenant role", Claims{ActorID: "a", Role: rbac.RoleAdmin, IsSuperAdmin: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.claims.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrCorruptActor))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewActor(t *testing.T) {
	claims := Claims{ActorID: "u-1", Role: rbac.RoleManager, TenantID: "t1"}

	actor, err := NewActor(claims, nil)
	require.NoError(t, err)
	assert.Equal(t, "u-1", actor.ID)
	assert.NotNil(t, actor.Permissions)
	assert.Empty(t, actor.Permissions)
	assert.Equal(t, claims, actor.Claims())

	dynamic := rbac.NewPermissionSet(rbac.PermUserCreate)
	actor, err = NewActor(claims, dynamic)
	require.NoError(t, err)
	assert.True(t, actor.Permissions.Has(rbac.PermUserCreate))

	_, err = NewActor(Claims{ActorID: "u-1", Role: rbac.RoleManager}, nil)
	assert.ErrorIs(t, err, ErrCorruptActor)
}

func TestIdentity(t *testing.T) {
	a := Claims{ActorID: "u-1", Role: rbac.RoleUser, TenantID: "t1"}
	b := a
	b.Role = rbac.RoleManager

	assert.NotEqual(t, a.Identity(), b.Identity(), "role change must yield a new identity")
	assert.Equal(t, "u-1|user|t1", a.Identity().String())
}
