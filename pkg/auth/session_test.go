package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

func TestHeaderSessionSource_Claims(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    Claims
		wantErr error
	}{
		{
			name:    "no headers",
			wantErr: ErrNoSession,
		},
		{
			name: "tenant actor",
			headers: map[string]string{
				HeaderActorID: "u-1", HeaderActorRole: " Engineer ", HeaderTenantID: "t1",
			},
			want: Claims{ActorID: "u-1", Role: rbac.RoleEngineer, TenantID: "t1"},
		},
		{
			name: "super-admin",
			headers: map[string]string{
				HeaderActorID: "root", HeaderActorRole: "super-admin", HeaderSuperAdmin: "true",
			},
			want: Claims{ActorID: "root", Role: rbac.RoleSuperAdmin, IsSuperAdmin: true},
		},
		{
			name: "admin claiming platform scope",
			headers: map[string]string{
				HeaderActorID: "a", HeaderActorRole: "admin", HeaderSuperAdmin: "true",
			},
			wantErr: ErrCorruptActor,
		},
		{
			name: "tenant role without tenant",
			headers: map[string]string{
				HeaderActorID: "a", HeaderActorRole: "user",
			},
			wantErr: ErrCorruptActor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			got, err := HeaderSessionSource{}.Claims(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	claims := Claims{ActorID: "u-1", Role: rbac.RoleUser, TenantID: "t1"}
	got, ok := ClaimsFromContext(WithClaims(context.Background(), claims))
	require.True(t, ok)
	assert.Equal(t, claims, got)
}
