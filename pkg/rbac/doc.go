// Package rbac holds the static authorization core of the CRM: the permission
// catalog, the role table, pure permission queries, and the tenant-scoped
// action authorizer.
//
// # Overview
//
// Everything in this package is a deterministic function of its inputs. There
// is no I/O, no shared mutable state, and every function is safe to call from
// any number of goroutines.
//
// # Permissions
//
// A permission is a resource plus an action, written "resource:action":
//
//	rbac.PermUserCreate.String() // "user:create"
//	rbac.PermRoleManage.String() // "role:manage"
//
// The catalog is closed. AllPermissions returns it, and every permission used
// anywhere in the system must be a member (see Known).
//
// # Roles
//
// Roles form a closed set:
//
//	RoleSuperAdmin - platform-wide, no owning tenant
//	RoleAdmin      - full access inside one tenant
//	RoleManager    - user and pipeline management inside one tenant
//	RoleUser       - day-to-day CRM work
//	RoleEngineer   - user plus ticket assignment
//	RoleCustomer   - external ticket submitter
//	RoleGuest      - product browsing only
//
// PermissionsForRole never fails: unknown roles simply hold no permissions.
// Higher roles are expected to hold a superset of lower roles' permissions
// within each resource family; this is checked by tests rather than by the
// data structure.
//
// # Queries
//
//	rbac.HasPermission(rbac.RoleManager, rbac.PermUserEdit)          // true
//	rbac.HasAllPermissions(rbac.RoleGuest)                            // true, vacuously
//	err := rbac.AssertPermission(rbac.RoleUser, rbac.PermUserDelete)  // *PermissionDeniedError
//	errors.Is(err, rbac.ErrPermissionDenied)                          // true
//
// RolePermissionGuard materializes the user-management flags guard surfaces
// need (create, edit, delete, manage roles, reset password, view list).
//
// # Tenant-scoped authorization
//
// CanPerformAction decides whether an actor may act on a target. Rules are
// applied in this order, and the first one that matches wins:
//
//  1. Actions outside TargetActions are denied.
//  2. An actor whose super-admin role and missing tenant disagree is denied.
//  3. Tenant isolation: different tenants are denied unless the actor is a
//     platform-wide super-admin.
//  4. Super-admins are allowed, including against other super-admins.
//  5. An admin may not delete another admin.
//  6. Capability table: admin any action, manager edit and reset_password,
//     user and engineer edit, everyone else nothing.
//
// Denial is a normal return value. Only AssertPermission returns an error.
package rbac
