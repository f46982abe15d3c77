package resolver

import (
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// State is the resolution state of an actor snapshot
type State int

const (
	// StateUninitialized means no session has been resolved
	StateUninitialized State = iota
	// StateLoading means the dynamic permission fetch has not settled
	StateLoading
	// StateResolved means static and dynamic permissions are merged
	StateResolved
	// StateResolvedStaticOnly means the dynamic fetch failed and only the
	// role table applies
	StateResolvedStaticOnly
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateResolved:
		return "resolved"
	case StateResolvedStaticOnly:
		return "resolved_static_only"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Settled reports whether capability checks can be answered
func (s State) Settled() bool {
	return s == StateResolved || s == StateResolvedStaticOnly
}

// Decision is the outcome of a permission check against a snapshot
type Decision int

const (
	Deny Decision = iota
	Allow
	// Indeterminate is returned while permissions are loading. It is not a
	// denial and must not be rendered as one.
	Indeterminate
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Indeterminate:
		return "indeterminate"
	default:
		return "deny"
	}
}

// MarshalText implements encoding.TextMarshaler
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Allowed is true only for Allow. Indeterminate is treated like a denial
// by every caller that needs a boolean, so nothing is enabled while loading.
func (d Decision) Allowed() bool {
	return d == Allow
}

// Capabilities are the user-management flags guard surfaces render from
type Capabilities struct {
	CanCreateUsers    bool `json:"can_create_users"`
	CanEditUsers      bool `json:"can_edit_users"`
	CanDeleteUsers    bool `json:"can_delete_users"`
	CanManageRoles    bool `json:"can_manage_roles"`
	CanResetPasswords bool `json:"can_reset_passwords"`
	CanViewUserList   bool `json:"can_view_user_list"`
	HasAnyPermission  bool `json:"has_any_permission"`
	Loading           bool `json:"loading"`
}

// Snapshot is an immutable view of one actor's resolved permissions
type Snapshot struct {
	Claims  auth.Claims
	State   State
	Static  rbac.PermissionSet
	Dynamic rbac.PermissionSet

	merged rbac.PermissionSet
}

func newSnapshot(claims auth.Claims, state State, static, dynamic rbac.PermissionSet) Snapshot {
	if dynamic == nil {
		dynamic = rbac.PermissionSet{}
	}
	return Snapshot{
		Claims:  claims,
		State:   state,
		Static:  static,
		Dynamic: dynamic,
		merged:  static.Union(dynamic),
	}
}

// Loading reports whether the snapshot cannot answer checks yet
func (s Snapshot) Loading() bool {
	return !s.State.Settled()
}

// Permissions returns a copy of the merged permission set
func (s Snapshot) Permissions() rbac.PermissionSet {
	return s.merged.Clone()
}

// Check decides perm. Dynamic permissions only add to the role table.
func (s Snapshot) Check(perm rbac.Permission) Decision {
	if s.Loading() {
		return Indeterminate
	}
	if s.merged.Has(perm) {
		return Allow
	}
	return Deny
}

// Capabilities projects the merged permissions onto the user-management flags
func (s Snapshot) Capabilities() Capabilities {
	if s.Loading() {
		return Capabilities{Loading: true}
	}
	g := rbac.GuardFromSet(s.merged)
	return Capabilities{
		CanCreateUsers:    g.CanCreate,
		CanEditUsers:      g.CanEdit,
		CanDeleteUsers:    g.CanDelete,
		CanManageRoles:    g.CanManageRoles,
		CanResetPasswords: g.CanResetPassword,
		CanViewUserList:   g.CanViewList,
		HasAnyPermission:  g.HasAnyPermission,
	}
}

// Actor builds the auth.Actor for the snapshot, carrying its dynamic set
func (s Snapshot) Actor() (auth.Actor, error) {
	return auth.NewActor(s.Claims, s.Dynamic.Clone())
}
