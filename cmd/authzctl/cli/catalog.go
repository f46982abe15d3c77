package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// errDenied makes denied checks exit non-zero so scripts can branch on them
var errDenied = errors.New("denied")

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseRole(s string) (rbac.Role, error) {
	role, ok := rbac.ParseRole(s)
	if !ok {
		return role, fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

// ---------- roles ----------

func newRolesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "roles [role]",
		Short: "List built-in roles or show one role's permissions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			roles := rbac.BuiltInRoles()

			if len(args) == 1 {
				role, err := parseRole(args[0])
				if err != nil {
					return err
				}
				for _, d := range roles {
					if d.Role == role {
						return showRole(out, d, opts.jsonOut)
					}
				}
				return fmt.Errorf("unknown role %q", args[0])
			}

			if opts.jsonOut {
				return writeJSON(out, roles)
			}
			fmt.Fprintf(out, "%-12s %-16s %-6s %s\n", "ROLE", "NAME", "PERMS", "DESCRIPTION")
			for _, d := range roles {
				fmt.Fprintf(out, "%-12s %-16s %-6d %s\n", d.Role, d.DisplayName, len(d.Permissions), d.Description)
			}
			return nil
		},
	}
}

func showRole(out io.Writer, d rbac.RoleDescriptor, jsonOut bool) error {
	if jsonOut {
		return writeJSON(out, d)
	}
	fmt.Fprintf(out, "%s (%s)\n%s\n\n", d.DisplayName, d.Role, d.Description)
	for _, p := range d.Permissions {
		fmt.Fprintf(out, "  %s\n", p)
	}
	return nil
}

// ---------- permissions ----------

func newPermissionsCmd(opts *options) *cobra.Command {
	var roleName, resource string

	cmd := &cobra.Command{
		Use:     "permissions",
		Aliases: []string{"perms"},
		Short:   "List catalogued permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			perms := rbac.AllPermissions()
			if roleName != "" {
				role, err := parseRole(roleName)
				if err != nil {
					return err
				}
				perms = rbac.PermissionsForRole(role)
			}
			if resource != "" {
				perms = perms.ForResource(rbac.Resource(strings.ToLower(resource)))
			}

			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), perms.Strings())
			}
			for _, p := range perms.Strings() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&roleName, "role", "", "only permissions held by this role")
	cmd.Flags().StringVar(&resource, "resource", "", "only permissions on this resource family")

	return cmd
}

// ---------- check ----------

func newCheckCmd(opts *options) *cobra.Command {
	var roleName string

	cmd := &cobra.Command{
		Use:   "check --role ROLE PERMISSION...",
		Short: "Check whether a role holds permissions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(roleName)
			if err != nil {
				return err
			}

			results := make(map[string]bool, len(args))
			var denied []string
			for _, arg := range args {
				perm, err := rbac.ParsePermission(arg)
				if err != nil {
					return err
				}
				if !rbac.Known(perm) {
					return fmt.Errorf("unknown permission %q", arg)
				}
				ok := rbac.HasPermission(role, perm)
				results[perm.String()] = ok
				if !ok {
					denied = append(denied, perm.String())
				}
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				if err := writeJSON(out, results); err != nil {
					return err
				}
			} else {
				for _, arg := range args {
					perm, _ := rbac.ParsePermission(arg)
					fmt.Fprintf(out, "%-28s %s\n", perm, outcome(results[perm.String()]))
				}
			}

			if len(denied) > 0 {
				return fmt.Errorf("%w: %s lacks %s", errDenied, role, strings.Join(denied, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&roleName, "role", "", "role to check")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

// ---------- can ----------

func newCanCmd(opts *options) *cobra.Command {
	var actorRole, actorTenant, targetRole, targetTenant, action string

	cmd := &cobra.Command{
		Use:   "can",
		Short: "Evaluate a tenant-scoped action against a target",
		Example: `  authzctl can --actor-role admin --actor-tenant acme \
    --target-role user --target-tenant acme --action delete`,
		RunE: func(cmd *cobra.Command, args []string) error {
			verdict := rbac.NewAuthorizer().Evaluate(
				rbac.Role(strings.ToLower(actorRole)), rbac.TenantID(actorTenant),
				rbac.Role(strings.ToLower(targetRole)), rbac.TenantID(targetTenant),
				rbac.Action(strings.ToLower(action)),
			)

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				if err := writeJSON(out, verdict); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "%s (%s)\n", outcome(verdict.Allowed), verdict.Reason)
			}

			if !verdict.Allowed {
				return fmt.Errorf("%w: %s", errDenied, verdict.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&actorRole, "actor-role", "", "acting role")
	cmd.Flags().StringVar(&actorTenant, "actor-tenant", "", "acting tenant, empty for platform actors")
	cmd.Flags().StringVar(&targetRole, "target-role", "", "target record's role")
	cmd.Flags().StringVar(&targetTenant, "target-tenant", "", "target record's tenant")
	cmd.Flags().StringVar(&action, "action", "", "one of create, edit, delete, reset_password, view")
	_ = cmd.MarkFlagRequired("actor-role")
	_ = cmd.MarkFlagRequired("target-role")
	_ = cmd.MarkFlagRequired("action")

	return cmd
}

// ---------- guard ----------

func newGuardCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "guard ROLE",
		Short: "Show the user-management guard projection for a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := parseRole(args[0])
			if err != nil {
				return err
			}
			g := rbac.RolePermissionGuard(role)

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, g)
			}
			rows := []struct {
				name string
				ok   bool
			}{
				{"create", g.CanCreate},
				{"edit", g.CanEdit},
				{"delete", g.CanDelete},
				{"manage roles", g.CanManageRoles},
				{"reset password", g.CanResetPassword},
				{"view list", g.CanViewList},
				{"any", g.HasAnyPermission},
			}
			for _, r := range rows {
				fmt.Fprintf(out, "%-16s %s\n", r.name, outcome(r.ok))
			}
			return nil
		},
	}
}

func outcome(ok bool) string {
	if ok {
		return "allow"
	}
	return "deny"
}
