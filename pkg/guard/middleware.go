package guard

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/resolver"
)

// WithSnapshot stores a resolved snapshot in ctx
func WithSnapshot(ctx context.Context, snap resolver.Snapshot) context.Context {
	return contextkeys.WithSnapshot(ctx, snap)
}

// SnapshotFromContext returns the snapshot stored by ActorMiddleware
func SnapshotFromContext(ctx context.Context) (resolver.Snapshot, bool) {
	snap, ok := ctx.Value(contextkeys.SnapshotKey).(resolver.Snapshot)
	return snap, ok
}

// ActorMiddleware resolves the session actor once per request and stores
// the settled snapshot for the handlers behind it. It must run after
// middleware.SessionMiddleware.
func (g *Guard) ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := g.ResolveActor(r.Context())
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrNoSession):
			httputil.WriteUnauthorized(w, "authentication required")
			return
		case errors.Is(err, auth.ErrCorruptActor):
			httputil.WriteForbidden(w, "inconsistent actor claims")
			return
		default:
			// Only cancellation reaches here; the client has gone away
			httputil.WriteServiceUnavailable(w, "actor resolution interrupted")
			return
		}

		ctx := WithSnapshot(r.Context(), snap)
		ctx = audit.WithLogger(ctx, g.audit)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission rejects requests whose actor lacks perm
func (g *Guard) RequirePermission(perm rbac.Permission) func(http.Handler) http.Handler {
	return g.require(func(ctx context.Context, snap resolver.Snapshot) error {
		return g.Assert(ctx, snap, perm)
	})
}

// RequireAny rejects requests whose actor holds none of perms
func (g *Guard) RequireAny(perms ...rbac.Permission) func(http.Handler) http.Handler {
	return g.require(func(ctx context.Context, snap resolver.Snapshot) error {
		return g.AssertAny(ctx, snap, perms...)
	})
}

// RequireAll rejects requests whose actor lacks any of perms
func (g *Guard) RequireAll(perms ...rbac.Permission) func(http.Handler) http.Handler {
	return g.require(func(ctx context.Context, snap resolver.Snapshot) error {
		return g.AssertAll(ctx, snap, perms...)
	})
}

func (g *Guard) require(check func(context.Context, resolver.Snapshot) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, ok := SnapshotFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			if err := check(r.Context(), snap); err != nil {
				writeDenial(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeDenial(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrIndeterminate) {
		w.Header().Set("Retry-After", "1")
		httputil.WriteServiceUnavailable(w, "permissions are still loading")
		return
	}
	if denied, ok := rbac.IsPermissionDenied(err); ok {
		httputil.WriteDetailedError(w, http.StatusForbidden, "insufficient permissions", map[string]string{
			"permission": denied.Permission.String(),
		})
		return
	}
	var actionErr *ActionDeniedError
	if errors.As(err, &actionErr) {
		httputil.WriteDetailedError(w, http.StatusForbidden, "action denied", map[string]string{
			"reason": string(actionErr.Reason),
		})
		return
	}
	httputil.WriteForbidden(w, "insufficient permissions")
}
