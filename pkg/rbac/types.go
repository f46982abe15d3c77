package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Role represents a coarse-grained bundle of permissions assigned to an actor
type Role string

// Built-in roles. The set is closed: every switch over Role in this package
// must handle each of these values.
const (
	RoleSuperAdmin Role = "super-admin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleUser       Role = "user"
	RoleEngineer   Role = "engineer"
	RoleCustomer   Role = "customer"
	RoleGuest      Role = "guest"
)

// AllRoles returns every built-in role, most privileged first
func AllRoles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleAdmin,
		RoleManager,
		RoleUser,
		RoleEngineer,
		RoleCustomer,
		RoleGuest,
	}
}

// ParseRole normalizes a stored role name. The second return value reports
// whether the role is one of the built-in roles; unknown roles are returned
// unchanged and hold no permissions.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	return role, role.Valid()
}

// Valid reports whether r is a built-in role
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleManager, RoleUser, RoleEngineer, RoleCustomer, RoleGuest:
		return true
	}
	return false
}

// String returns the role name
func (r Role) String() string {
	return string(r)
}

// Resource represents a resource family in the CRM
type Resource string

const (
	ResourceUser       Resource = "user"
	ResourceRole       Resource = "role"
	ResourcePermission Resource = "permission"
	ResourceTenant     Resource = "tenant"
	ResourceCustomer   Resource = "customer"
	ResourceSales      Resource = "sales"
	ResourceTicket     Resource = "ticket"
	ResourceContract   Resource = "contract"
	ResourceProduct    Resource = "product"
	ResourceReport     Resource = "report"
	ResourceAudit      Resource = "audit"
)

// ResourceFamilies returns every resource that appears in the catalog
func ResourceFamilies() []Resource {
	return []Resource{
		ResourceUser,
		ResourceRole,
		ResourcePermission,
		ResourceTenant,
		ResourceCustomer,
		ResourceSales,
		ResourceTicket,
		ResourceContract,
		ResourceProduct,
		ResourceReport,
		ResourceAudit,
	}
}

// Action represents an operation. The first five values form the closed set
// accepted by the tenant authorizer; the rest only appear in catalog entries.
type Action string

const (
	ActionCreate        Action = "create"
	ActionEdit          Action = "edit"
	ActionDelete        Action = "delete"
	ActionResetPassword Action = "reset_password"
	ActionView          Action = "view"

	ActionList   Action = "list"
	ActionManage Action = "manage"
	ActionAssign Action = "assign"
	ActionExport Action = "export"
)

// TargetActions returns the actions CanPerformAction decides on
func TargetActions() []Action {
	return []Action{ActionCreate, ActionEdit, ActionDelete, ActionResetPassword, ActionView}
}

// IsTargetAction reports whether a is accepted by the tenant authorizer
func (a Action) IsTargetAction() bool {
	switch a {
	case ActionCreate, ActionEdit, ActionDelete, ActionResetPassword, ActionView:
		return true
	}
	return false
}

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// Perm is shorthand for building a Permission
func Perm(resource Resource, action Action) Permission {
	return Permission{Resource: resource, Action: action}
}

// String returns the canonical resource:action form
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// MarshalText encodes the permission as resource:action
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses resource:action
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePermission parses a resource:action string. It only checks the shape;
// use Known to check catalog membership.
func ParsePermission(s string) (Permission, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.Count(s, ":") != 1 {
		return Permission{}, fmt.Errorf("invalid permission %q: want resource:action", s)
	}
	resource, action, _ := strings.Cut(s, ":")
	if resource == "" || action == "" {
		return Permission{}, fmt.Errorf("invalid permission %q: empty resource or action", s)
	}
	return Permission{Resource: Resource(resource), Action: Action(action)}, nil
}

// PermissionSet is an unordered set of permissions
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether p is in the set. A nil set contains nothing.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Add inserts p into the set
func (s PermissionSet) Add(p Permission) {
	s[p] = struct{}{}
}

// Clone returns an independent copy
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Union returns a new set holding the permissions of both sets
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := s.Clone()
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// IsSubsetOf reports whether every permission of s is in other
func (s PermissionSet) IsSubsetOf(other PermissionSet) bool {
	for p := range s {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// ForResource returns the subset belonging to one resource family
func (s PermissionSet) ForResource(resource Resource) PermissionSet {
	out := make(PermissionSet)
	for p := range s {
		if p.Resource == resource {
			out[p] = struct{}{}
		}
	}
	return out
}

// Sorted returns the permissions ordered by their string form
func (s PermissionSet) Sorted() []Permission {
	perms := make([]Permission, 0, len(s))
	for p := range s {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool {
		return perms[i].String() < perms[j].String()
	})
	return perms
}

// Strings returns the sorted resource:action strings
func (s PermissionSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = p.String()
	}
	return out
}
