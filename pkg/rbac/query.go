package rbac

// HasPermission reports whether role holds permission in the static table
func HasPermission(role Role, permission Permission) bool {
	perms, ok := roleTable[role]
	if !ok {
		return false
	}
	return perms.Has(permission)
}

// HasAnyPermission reports whether role holds at least one of permissions.
// An empty list yields false.
func HasAnyPermission(role Role, permissions ...Permission) bool {
	for _, p := range permissions {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether role holds every one of permissions.
// An empty list is vacuously satisfied.
func HasAllPermissions(role Role, permissions ...Permission) bool {
	for _, p := range permissions {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

// AssertPermission returns a *PermissionDeniedError when role lacks permission
func AssertPermission(role Role, permission Permission) error {
	if HasPermission(role, permission) {
		return nil
	}
	return &PermissionDeniedError{Role: role, Permission: permission}
}

// GuardResult is a precomputed projection of the user-management permissions
// that guard surfaces check most often
type GuardResult struct {
	CanCreate        bool `json:"can_create"`
	CanEdit          bool `json:"can_edit"`
	CanDelete        bool `json:"can_delete"`
	CanManageRoles   bool `json:"can_manage_roles"`
	CanResetPassword bool `json:"can_reset_password"`
	CanViewList      bool `json:"can_view_list"`
	HasAnyPermission bool `json:"has_any_permission"`
}

// GuardPermissions lists the catalog entries behind GuardResult, in field order
func GuardPermissions() []Permission {
	return []Permission{
		PermUserCreate,
		PermUserEdit,
		PermUserDelete,
		PermRoleManage,
		PermUserResetPassword,
		PermUserList,
	}
}

// RolePermissionGuard computes the GuardResult for role from the static table
func RolePermissionGuard(role Role) GuardResult {
	return GuardFromSet(PermissionsForRole(role))
}

// GuardFromSet computes a GuardResult from an arbitrary permission set
func GuardFromSet(perms PermissionSet) GuardResult {
	g := GuardResult{
		CanCreate:        perms.Has(PermUserCreate),
		CanEdit:          perms.Has(PermUserEdit),
		CanDelete:        perms.Has(PermUserDelete),
		CanManageRoles:   perms.Has(PermRoleManage),
		CanResetPassword: perms.Has(PermUserResetPassword),
		CanViewList:      perms.Has(PermUserList),
	}
	g.HasAnyPermission = g.CanCreate || g.CanEdit || g.CanDelete ||
		g.CanManageRoles || g.CanResetPassword || g.CanViewList
	return g
}
