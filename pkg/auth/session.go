package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// SessionSource supplies the claims for a request
type SessionSource interface {
	Claims(r *http.Request) (Claims, error)
}

// Headers set by the gateway in front of the service
const (
	HeaderActorID    = "X-Actor-Id"
	HeaderActorRole  = "X-Actor-Role"
	HeaderTenantID   = "X-Tenant-Id"
	HeaderSuperAdmin = "X-Super-Admin"
)

// HeaderSessionSource reads claims that a trusted gateway has already
// authenticated and forwarded as request headers
type HeaderSessionSource struct{}

// Claims parses the forwarded identity headers
func (HeaderSessionSource) Claims(r *http.Request) (Claims, error) {
	actorID := strings.TrimSpace(r.Header.Get(HeaderActorID))
	if actorID == "" {
		return Claims{}, ErrNoSession
	}

	role, _ := rbac.ParseRole(r.Header.Get(HeaderActorRole))

	superAdmin := false
	if raw := strings.TrimSpace(r.Header.Get(HeaderSuperAdmin)); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return Claims{}, fmt.Errorf("invalid %s header: %w", HeaderSuperAdmin, err)
		}
		superAdmin = parsed
	}

	claims := Claims{
		ActorID:      actorID,
		Role:         role,
		TenantID:     rbac.TenantID(strings.TrimSpace(r.Header.Get(HeaderTenantID))),
		IsSuperAdmin: superAdmin,
	}
	if err := claims.Validate(); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// WithClaims stores claims in ctx
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return contextkeys.WithAuth(ctx, claims)
}

// ClaimsFromContext returns the claims stored by WithClaims
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(contextkeys.AuthKey).(Claims)
	return claims, ok
}
