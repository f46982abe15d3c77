package guard

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/resolver"
)

// Handlers serves the /authz API
type Handlers struct {
	guard *Guard
}

// NewHandlers creates the /authz handlers
func NewHandlers(g *Guard) *Handlers {
	return &Handlers{guard: g}
}

// RegisterRoutes registers all /authz routes. Catalog routes only need a
// session; the rest resolve the actor themselves.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/authz/roles", h.ListRoles).Methods(http.MethodGet)
	router.HandleFunc("/authz/roles/{role}", h.GetRole).Methods(http.MethodGet)
	router.HandleFunc("/authz/permissions", h.ListPermissions).Methods(http.MethodGet)
	router.HandleFunc("/authz/me", h.Me).Methods(http.MethodGet)
	router.Handle("/authz/check", h.guard.ActorMiddleware(http.HandlerFunc(h.Check))).Methods(http.MethodPost)
	router.Handle("/authz/invalidate", h.guard.ActorMiddleware(http.HandlerFunc(h.Invalidate))).Methods(http.MethodPost)
}

type roleResponse struct {
	rbac.RoleDescriptor
	Guard rbac.GuardResult `json:"guard"`
}

func describeRole(d rbac.RoleDescriptor) roleResponse {
	return roleResponse{RoleDescriptor: d, Guard: rbac.RolePermissionGuard(d.Role)}
}

// ListRoles returns every built-in role with its static permissions
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	descriptors := rbac.BuiltInRoles()
	roles := make([]roleResponse, 0, len(descriptors))
	for _, d := range descriptors {
		roles = append(roles, describeRole(d))
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

// GetRole returns one built-in role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "role")
	if !ok {
		return
	}
	role, known := rbac.ParseRole(name)
	if !known {
		httputil.WriteNotFoundError(w, "unknown role")
		return
	}
	for _, d := range rbac.BuiltInRoles() {
		if d.Role == role {
			httputil.WriteSuccess(w, describeRole(d))
			return
		}
	}
	httputil.WriteNotFoundError(w, "unknown role")
}

// ListPermissions returns the permission catalog
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"permissions": rbac.AllPermissions().Strings(),
		"resources":   rbac.ResourceFamilies(),
	})
}

type meResponse struct {
	ActorID      string                `json:"actor_id"`
	Role         rbac.Role             `json:"role"`
	TenantID     rbac.TenantID         `json:"tenant_id,omitempty"`
	IsSuperAdmin bool                  `json:"is_super_admin"`
	State        resolver.State        `json:"state"`
	Permissions  []string              `json:"permissions"`
	Dynamic      []string              `json:"dynamic_permissions"`
	Capabilities resolver.Capabilities `json:"capabilities"`
}

// Me describes the calling actor. With ?wait=false the snapshot is peeked
// and may report loading with every capability off.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	wait, err := httputil.ParseQueryBool(r, "wait", true)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid wait parameter")
		return
	}

	var snap resolver.Snapshot
	if wait {
		snap, err = h.guard.ResolveActor(r.Context())
	} else {
		snap, err = h.guard.PeekActor(r.Context())
	}
	if err != nil {
		writeResolveError(w, err)
		return
	}

	resp := meResponse{
		ActorID:      snap.Claims.ActorID,
		Role:         snap.Claims.Role,
		TenantID:     snap.Claims.TenantID,
		IsSuperAdmin: snap.Claims.IsSuperAdmin,
		State:        snap.State,
		Permissions:  []string{},
		Dynamic:      snap.Dynamic.Strings(),
		Capabilities: snap.Capabilities(),
	}
	if !snap.Loading() {
		resp.Permissions = snap.Permissions().Strings()
	}
	httputil.WriteSuccess(w, resp)
}

// CheckRequest asks about permissions and optionally one action
type CheckRequest struct {
	Permissions []string     `json:"permissions"`
	Action      rbac.Action  `json:"action,omitempty"`
	Target      *auth.Target `json:"target,omitempty"`
}

// CheckResponse answers a CheckRequest
type CheckResponse struct {
	Permissions map[string]resolver.Decision `json:"permissions"`
	Action      *rbac.Verdict                `json:"action,omitempty"`
}

// Check evaluates permissions and an action for the calling actor without
// auditing. It answers "could I", not "let me".
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	snap, ok := SnapshotFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if (req.Action == "") != (req.Target == nil) {
		httputil.WriteBadRequest(w, "action and target must be given together")
		return
	}

	resp := CheckResponse{Permissions: make(map[string]resolver.Decision, len(req.Permissions))}
	for _, raw := range req.Permissions {
		perm, err := rbac.ParsePermission(raw)
		if err != nil || !rbac.Known(perm) {
			httputil.WriteDetailedError(w, http.StatusBadRequest, "unknown permission", map[string]string{"permission": raw})
			return
		}
		resp.Permissions[perm.String()] = snap.Check(perm)
	}

	if req.Target != nil {
		actor, err := snap.Actor()
		if err != nil {
			httputil.WriteForbidden(w, "inconsistent actor claims")
			return
		}
		verdict := h.guard.Evaluate(r.Context(), actor, *req.Target, req.Action)
		resp.Action = &verdict
	}

	httputil.WriteSuccess(w, resp)
}

// InvalidateRequest names the actor whose cached permissions are dropped.
// An empty ActorID means the caller. TenantID scopes another actor's
// invalidation and defaults to the caller's tenant.
type InvalidateRequest struct {
	ActorID  string        `json:"actor_id,omitempty"`
	TenantID rbac.TenantID `json:"tenant_id,omitempty"`
	All      bool          `json:"all,omitempty"`
}

// Invalidate drops cached permissions. Actors may always invalidate their
// own entries. Other actors need role:manage and only have their entries in
// one tenant dropped, which the authorizer must let the caller edit.
// Super-admins without a tenant drop the actor everywhere, and flushing
// everything needs super-admin.
func (h *Handlers) Invalidate(w http.ResponseWriter, r *http.Request) {
	snap, ok := SnapshotFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req InvalidateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	ctx := r.Context()

	scoped := false
	switch {
	case req.All:
		if !snap.Claims.IsSuperAdmin {
			httputil.WriteForbidden(w, "only super-admins can invalidate every actor")
			return
		}
	case req.ActorID == "" || req.ActorID == snap.Claims.ActorID:
		req.ActorID = snap.Claims.ActorID
		req.TenantID = rbac.NoTenant
	default:
		if err := h.guard.Assert(ctx, snap, rbac.PermRoleManage); err != nil {
			writeDenial(w, err)
			return
		}
		if req.TenantID == rbac.NoTenant {
			req.TenantID = snap.Claims.TenantID
		}
		if req.TenantID != rbac.NoTenant {
			actor, err := snap.Actor()
			if err != nil {
				writeResolveError(w, err)
				return
			}
			if err := h.guard.AssertAction(ctx, actor, auth.Target{TenantID: req.TenantID}, rbac.ActionEdit); err != nil {
				writeDenial(w, err)
				return
			}
			scoped = true
		}
	}

	var err error
	event := audit.NewEvent(ctx, audit.EventTypeCacheInvalidate, audit.EventStatusSuccess, snap.Claims)
	switch {
	case req.All:
		err = h.guard.resolver.InvalidateAll(ctx)
		event.Metadata = map[string]interface{}{"scope": "all"}
	case scoped:
		err = h.guard.resolver.InvalidateTenant(ctx, req.ActorID, req.TenantID)
		event.Metadata = map[string]interface{}{
			"scope":            "tenant",
			"target_actor_id":  req.ActorID,
			"target_tenant_id": string(req.TenantID),
		}
	default:
		err = h.guard.resolver.Invalidate(ctx, req.ActorID)
		event.Metadata = map[string]interface{}{"scope": "actor", "target_actor_id": req.ActorID}
	}
	if err != nil {
		// The local cache is already cleared; only the shared cache failed
		event.Status = audit.EventStatusFailure
		h.guard.record(ctx, event)
		httputil.WriteServiceUnavailable(w, "shared permission cache could not be invalidated")
		return
	}
	h.guard.record(ctx, event)
	httputil.WriteNoContent(w)
}

func writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrNoSession):
		httputil.WriteUnauthorized(w, "authentication required")
	case errors.Is(err, auth.ErrCorruptActor):
		httputil.WriteForbidden(w, "inconsistent actor claims")
	default:
		httputil.WriteServiceUnavailable(w, "actor resolution interrupted")
	}
}
