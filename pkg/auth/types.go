package auth

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

var (
	// ErrNoSession is returned when a request carries no session claims
	ErrNoSession = errors.New("auth: no session")

	// ErrCorruptActor is returned when the super-admin flag, role and tenant
	// of an identity disagree
	ErrCorruptActor = errors.New("auth: corrupt actor state")
)

// Claims is what the session layer asserts about the caller. The
// authorization core treats it as ground truth; token signatures and expiry
// are checked before claims reach this package.
type Claims struct {
	ActorID      string        `json:"actor_id"`
	Role         rbac.Role     `json:"role"`
	TenantID     rbac.TenantID `json:"tenant_id,omitempty"`
	IsSuperAdmin bool          `json:"is_super_admin"`
}

// Identity is the cache identity of the claims. A role change or tenant
// switch yields a different identity for the same actor.
func (c Claims) Identity() Identity {
	return Identity{ActorID: c.ActorID, Role: c.Role, TenantID: c.TenantID}
}

// Identity keys per-actor state such as cached dynamic permissions
type Identity struct {
	ActorID  string
	Role     rbac.Role
	TenantID rbac.TenantID
}

func (i Identity) String() string {
	return fmt.Sprintf("%s|%s|%s", i.ActorID, i.Role, i.TenantID)
}

// Actor is the identity performing an authorization check
type Actor struct {
	ID           string             `json:"id"`
	Role         rbac.Role          `json:"role"`
	TenantID     rbac.TenantID      `json:"tenant_id,omitempty"`
	IsSuperAdmin bool               `json:"is_super_admin"`
	Permissions  rbac.PermissionSet `json:"-"`
}

// NewActor validates claims and builds an Actor. IsSuperAdmin must be true
// exactly when TenantID is NoTenant, and exactly when Role is super-admin.
func NewActor(claims Claims, dynamic rbac.PermissionSet) (Actor, error) {
	if err := claims.Validate(); err != nil {
		return Actor{}, err
	}
	if dynamic == nil {
		dynamic = rbac.PermissionSet{}
	}
	return Actor{
		ID:           claims.ActorID,
		Role:         claims.Role,
		TenantID:     claims.TenantID,
		IsSuperAdmin: claims.IsSuperAdmin,
		Permissions:  dynamic,
	}, nil
}

// Validate checks the redundant super-admin fields agree
func (c Claims) Validate() error {
	if c.ActorID == "" {
		return fmt.Errorf("%w: missing actor id", ErrCorruptActor)
	}
	if c.IsSuperAdmin != c.TenantID.IsPlatform() {
		return fmt.Errorf("%w: is_super_admin=%t but tenant_id=%q", ErrCorruptActor, c.IsSuperAdmin, c.TenantID)
	}
	if c.IsSuperAdmin != (c.Role == rbac.RoleSuperAdmin) {
		return fmt.Errorf("%w: is_super_admin=%t but role=%q", ErrCorruptActor, c.IsSuperAdmin, c.Role)
	}
	return nil
}

// Claims returns the session claims the actor was built from
func (a Actor) Claims() Claims {
	return Claims{ActorID: a.ID, Role: a.Role, TenantID: a.TenantID, IsSuperAdmin: a.IsSuperAdmin}
}

// Target is the entity an action is performed against. It is built fresh for
// each check from the record being acted on.
type Target struct {
	Role     rbac.Role     `json:"role"`
	TenantID rbac.TenantID `json:"tenant_id,omitempty"`
}
