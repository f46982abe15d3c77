// Package auth defines who is asking: session claims, the Actor built from
// them, and the Target an action is aimed at.
//
// # Claims and Actors
//
// Claims arrive from the session layer already authenticated. NewActor
// refuses claims whose redundant super-admin fields disagree:
//
//	actor, err := auth.NewActor(claims, dynamic)
//	if errors.Is(err, auth.ErrCorruptActor) {
//		// deny, never guess
//	}
//
// A super-admin has role super-admin, IsSuperAdmin set and no tenant. Every
// other actor belongs to exactly one tenant.
//
// # Session Sources
//
// HeaderSessionSource trusts identity headers set by the gateway in front of
// the service (X-Actor-Id, X-Actor-Role, X-Tenant-Id, X-Super-Admin). Other
// deployments plug their own SessionSource into middleware.SessionMiddleware.
//
// # Related Packages
//
//   - pkg/rbac: roles, permissions, TenantID
//   - pkg/resolver: merges dynamic permissions into an actor snapshot
//   - pkg/middleware: stores claims on the request context
package auth
