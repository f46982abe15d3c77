package rbac

// Catalog entries. Every permission the system checks must be declared here.
var (
	PermUserList          = Perm(ResourceUser, ActionList)
	PermUserView          = Perm(ResourceUser, ActionView)
	PermUserCreate        = Perm(ResourceUser, ActionCreate)
	PermUserEdit          = Perm(ResourceUser, ActionEdit)
	PermUserDelete        = Perm(ResourceUser, ActionDelete)
	PermUserResetPassword = Perm(ResourceUser, ActionResetPassword)

	PermRoleView   = Perm(ResourceRole, ActionView)
	PermRoleManage = Perm(ResourceRole, ActionManage)

	PermPermissionView   = Perm(ResourcePermission, ActionView)
	PermPermissionManage = Perm(ResourcePermission, ActionManage)

	PermTenantList   = Perm(ResourceTenant, ActionList)
	PermTenantView   = Perm(ResourceTenant, ActionView)
	PermTenantCreate = Perm(ResourceTenant, ActionCreate)
	PermTenantEdit   = Perm(ResourceTenant, ActionEdit)
	PermTenantDelete = Perm(ResourceTenant, ActionDelete)

	PermCustomerList   = Perm(ResourceCustomer, ActionList)
	PermCustomerView   = Perm(ResourceCustomer, ActionView)
	PermCustomerCreate = Perm(ResourceCustomer, ActionCreate)
	PermCustomerEdit   = Perm(ResourceCustomer, ActionEdit)
	PermCustomerDelete = Perm(ResourceCustomer, ActionDelete)

	PermSalesList   = Perm(ResourceSales, ActionList)
	PermSalesView   = Perm(ResourceSales, ActionView)
	PermSalesCreate = Perm(ResourceSales, ActionCreate)
	PermSalesEdit   = Perm(ResourceSales, ActionEdit)
	PermSalesDelete = Perm(ResourceSales, ActionDelete)

	PermTicketList   = Perm(ResourceTicket, ActionList)
	PermTicketView   = Perm(ResourceTicket, ActionView)
	PermTicketCreate = Perm(ResourceTicket, ActionCreate)
	PermTicketEdit   = Perm(ResourceTicket, ActionEdit)
	PermTicketAssign = Perm(ResourceTicket, ActionAssign)
	PermTicketDelete = Perm(ResourceTicket, ActionDelete)

	PermContractList   = Perm(ResourceContract, ActionList)
	PermContractView   = Perm(ResourceContract, ActionView)
	PermContractCreate = Perm(ResourceContract, ActionCreate)
	PermContractEdit   = Perm(ResourceContract, ActionEdit)
	PermContractDelete = Perm(ResourceContract, ActionDelete)

	PermProductList   = Perm(ResourceProduct, ActionList)
	PermProductView   = Perm(ResourceProduct, ActionView)
	PermProductCreate = Perm(ResourceProduct, ActionCreate)
	PermProductEdit   = Perm(ResourceProduct, ActionEdit)
	PermProductDelete = Perm(ResourceProduct, ActionDelete)

	PermReportView   = Perm(ResourceReport, ActionView)
	PermReportExport = Perm(ResourceReport, ActionExport)

	PermAuditView = Perm(ResourceAudit, ActionView)
)

// RoleDescriptor describes a built-in role and its static permissions
type RoleDescriptor struct {
	Role        Role         `json:"role"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

var (
	catalog   PermissionSet
	roleTable map[Role]PermissionSet
)

func init() {
	catalog = NewPermissionSet(catalogEntries()...)
	roleTable = make(map[Role]PermissionSet, len(AllRoles()))
	for _, d := range BuiltInRoles() {
		roleTable[d.Role] = NewPermissionSet(d.Permissions...)
	}
}

func catalogEntries() []Permission {
	return []Permission{
		PermUserList, PermUserView, PermUserCreate, PermUserEdit, PermUserDelete, PermUserResetPassword,
		PermRoleView, PermRoleManage,
		PermPermissionView, PermPermissionManage,
		PermTenantList, PermTenantView, PermTenantCreate, PermTenantEdit, PermTenantDelete,
		PermCustomerList, PermCustomerView, PermCustomerCreate, PermCustomerEdit, PermCustomerDelete,
		PermSalesList, PermSalesView, PermSalesCreate, PermSalesEdit, PermSalesDelete,
		PermTicketList, PermTicketView, PermTicketCreate, PermTicketEdit, PermTicketAssign, PermTicketDelete,
		PermContractList, PermContractView, PermContractCreate, PermContractEdit, PermContractDelete,
		PermProductList, PermProductView, PermProductCreate, PermProductEdit, PermProductDelete,
		PermReportView, PermReportExport,
		PermAuditView,
	}
}

// AllPermissions returns a copy of the full permission catalog
func AllPermissions() PermissionSet {
	return catalog.Clone()
}

// Known reports whether p is declared in the catalog
func Known(p Permission) bool {
	return catalog.Has(p)
}

// PermissionsForRole returns a copy of the static permission set for role.
// Unknown roles get an empty set.
func PermissionsForRole(role Role) PermissionSet {
	perms, ok := roleTable[role]
	if !ok {
		return PermissionSet{}
	}
	return perms.Clone()
}

// BuiltInRoles returns the static role table
func BuiltInRoles() []RoleDescriptor {
	// Tenant administration stays with the platform operator.
	adminPerms := make([]Permission, 0, len(catalogEntries()))
	for _, p := range catalogEntries() {
		if p.Resource == ResourceTenant {
			continue
		}
		adminPerms = append(adminPerms, p)
	}

	userPerms := []Permission{
		PermUserView,
		PermCustomerList, PermCustomerView,
		PermSalesList, PermSalesView,
		PermTicketList, PermTicketView, PermTicketCreate, PermTicketEdit,
		PermContractList, PermContractView,
		PermProductList, PermProductView,
	}

	managerPerms := append([]Permission{
		PermUserList, PermUserEdit, PermUserResetPassword,
		PermRoleView,
		PermCustomerCreate, PermCustomerEdit,
		PermSalesCreate, PermSalesEdit,
		PermTicketAssign,
		PermContractCreate, PermContractEdit,
		PermReportView,
	}, userPerms...)

	return []RoleDescriptor{
		{
			Role:        RoleSuperAdmin,
			DisplayName: "Super Admin",
			Description: "Platform-wide operator with access to every tenant",
			Permissions: catalogEntries(),
		},
		{
			Role:        RoleAdmin,
			DisplayName: "Tenant Admin",
			Description: "Full access to the resources of one tenant",
			Permissions: adminPerms,
		},
		{
			Role:        RoleManager,
			DisplayName: "Manager",
			Description: "Manages users, customers and pipeline within a tenant",
			Permissions: managerPerms,
		},
		{
			Role:        RoleUser,
			DisplayName: "User",
			Description: "Works customer records and tickets",
			Permissions: userPerms,
		},
		{
			Role:        RoleEngineer,
			DisplayName: "Engineer",
			Description: "Resolves tickets and can reassign them",
			Permissions: append([]Permission{PermTicketAssign}, userPerms...),
		},
		{
			Role:        RoleCustomer,
			DisplayName: "Customer",
			Description: "External contact raising tickets",
			Permissions: []Permission{
				PermTicketList, PermTicketView, PermTicketCreate,
				PermContractView,
				PermProductList, PermProductView,
			},
		},
		{
			Role:        RoleGuest,
			DisplayName: "Guest",
			Description: "Read-only product browsing",
			Permissions: []Permission{
				PermProductList, PermProductView,
			},
		},
	}
}
