package rbac

// TenantID identifies a tenant. NoTenant marks platform-wide actors and
// records, and is only valid for super-admins.
type TenantID string

// NoTenant is the "no owning tenant" value
const NoTenant TenantID = ""

// IsPlatform reports whether t is NoTenant
func (t TenantID) IsPlatform() bool {
	return t == NoTenant
}

// Reason explains an authorizer verdict
type Reason string

const (
	ReasonInvalidAction  Reason = "invalid_action"
	ReasonCorruptActor   Reason = "corrupt_actor"
	ReasonTenantMismatch Reason = "tenant_mismatch"
	ReasonSuperAdmin     Reason = "super_admin"
	ReasonAdminElevation Reason = "admin_elevation"
	ReasonRoleCapability Reason = "role_capability"
	ReasonRoleLacks      Reason = "role_lacks_action"
)

// Verdict is the outcome of an authorization decision
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

// Authorizer decides whether an actor may perform an action on a target.
// All call sites must go through an Authorizer instead of comparing tenants
// themselves.
type Authorizer interface {
	CanPerformAction(actorRole Role, actorTenant TenantID, targetRole Role, targetTenant TenantID, action Action) bool
	Evaluate(actorRole Role, actorTenant TenantID, targetRole Role, targetTenant TenantID, action Action) Verdict
}

// TenantAuthorizer is the Authorizer used in production. It is stateless and
// safe for concurrent use.
type TenantAuthorizer struct{}

// NewAuthorizer returns the default Authorizer
func NewAuthorizer() TenantAuthorizer {
	return TenantAuthorizer{}
}

// CanPerformAction reports whether the action is allowed
func (TenantAuthorizer) CanPerformAction(actorRole Role, actorTenant TenantID, targetRole Role, targetTenant TenantID, action Action) bool {
	return evaluate(actorRole, actorTenant, targetRole, targetTenant, action).Allowed
}

// Evaluate returns the verdict together with the rule that produced it
func (TenantAuthorizer) Evaluate(actorRole Role, actorTenant TenantID, targetRole Role, targetTenant TenantID, action Action) Verdict {
	return evaluate(actorRole, actorTenant, targetRole, targetTenant, action)
}

// CanPerformAction evaluates with the default authorizer
func CanPerformAction(actorRole Role, actorTenant TenantID, targetRole Role, targetTenant TenantID, action Action) bool {
	return evaluate(actorRole, actorTenant, targetRole, targetTenant, action).Allowed
}

// evaluate applies the rules in order; the order is the tie-break policy.
func evaluate(actorRole Role, actorTenant TenantID, targetRole Role, targetTenant TenantID, action Action) Verdict {
	if !action.IsTargetAction() {
		return deny(ReasonInvalidAction)
	}

	// A platform-wide actor must be a super-admin and a super-admin must be
	// platform-wide. Anything else is a corrupt identity.
	platform := actorTenant.IsPlatform()
	if platform != (actorRole == RoleSuperAdmin) {
		return deny(ReasonCorruptActor)
	}

	// Tenant isolation runs before any role logic.
	if !platform && actorTenant != targetTenant {
		return deny(ReasonTenantMismatch)
	}

	if platform {
		return allow(ReasonSuperAdmin)
	}

	if actorRole == RoleAdmin && action == ActionDelete && targetRole == RoleAdmin {
		return deny(ReasonAdminElevation)
	}

	if roleCanAct(actorRole, action) {
		return allow(ReasonRoleCapability)
	}
	return deny(ReasonRoleLacks)
}

// roleCanAct is the capability-by-role table for tenant-scoped actors
func roleCanAct(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action == ActionEdit || action == ActionResetPassword
	case RoleUser, RoleEngineer:
		return action == ActionEdit
	case RoleSuperAdmin, RoleCustomer, RoleGuest:
		return false
	default:
		return false
	}
}

func allow(reason Reason) Verdict {
	return Verdict{Allowed: true, Reason: reason}
}

func deny(reason Reason) Verdict {
	return Verdict{Allowed: false, Reason: reason}
}
