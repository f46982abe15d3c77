package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/permstore"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func useSQLiteStore(t *testing.T) *permstore.SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, permstore.Migrate(context.Background(), db, nil))

	store := permstore.NewSQLStore(permstore.NewConnectionManager(db), nil)
	orig := openStore
	openStore = func(context.Context, string) (*permstore.SQLStore, func() error, error) {
		return store, func() error { return nil }, nil
	}
	t.Cleanup(func() {
		openStore = orig
		db.Close()
	})
	return store
}

func TestRoles(t *testing.T) {
	out, err := run(t, "roles")
	require.NoError(t, err)
	for _, role := range rbac.AllRoles() {
		assert.Contains(t, out, string(role))
	}

	out, err = run(t, "roles", "Admin")
	require.NoError(t, err)
	assert.Contains(t, out, "user:delete")
	assert.NotContains(t, out, "tenant:delete")

	_, err = run(t, "roles", "owner")
	assert.EqualError(t, err, `unknown role "owner"`)
}

func TestRoles_JSON(t *testing.T) {
	out, err := run(t, "roles", "--json")
	require.NoError(t, err)

	var roles []rbac.RoleDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &roles))
	assert.Len(t, roles, len(rbac.AllRoles()))
}

func TestPermissions_Filters(t *testing.T) {
	out, err := run(t, "permissions", "--role", "guest", "--resource", "product")
	require.NoError(t, err)

	want := rbac.PermissionsForRole(rbac.RoleGuest).ForResource(rbac.ResourceProduct).Strings()
	assert.Equal(t, want, strings.Fields(out))
}

func TestCheck(t *testing.T) {
	out, err := run(t, "check", "--role", "manager", "user:edit", "user:reset_password")
	require.NoError(t, err)
	assert.Contains(t, out, "user:edit")
	assert.NotContains(t, out, "deny")

	out, err = run(t, "check", "--role", "user", "ticket:create", "user:delete")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errDenied))
	assert.Contains(t, err.Error(), "user:delete")
	assert.Contains(t, out, "ticket:create                allow")

	_, err = run(t, "check", "--role", "user", "user:fly")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errDenied))

	_, err = run(t, "check", "user:edit")
	assert.Error(t, err, "--role is required")
}

func TestCan(t *testing.T) {
	out, err := run(t, "can",
		"--actor-role", "admin", "--actor-tenant", "acme",
		"--target-role", "user", "--target-tenant", "acme",
		"--action", "delete")
	require.NoError(t, err)
	assert.Equal(t, "allow (role_capability)\n", out)

	out, err = run(t, "can",
		"--actor-role", "admin", "--actor-tenant", "acme",
		"--target-role", "user", "--target-tenant", "globex",
		"--action", "view")
	assert.True(t, errors.Is(err, errDenied))
	assert.Equal(t, "deny (tenant_mismatch)\n", out)

	out, err = run(t, "can", "--json",
		"--actor-role", "super-admin",
		"--target-role", "admin", "--target-tenant", "acme",
		"--action", "delete")
	require.NoError(t, err)
	var verdict rbac.Verdict
	require.NoError(t, json.Unmarshal([]byte(out), &verdict))
	assert.Equal(t, rbac.Verdict{Allowed: true, Reason: rbac.ReasonSuperAdmin}, verdict)
}

func TestGuard(t *testing.T) {
	out, err := run(t, "guard", "manager", "--json")
	require.NoError(t, err)

	var got rbac.GuardResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, rbac.RolePermissionGuard(rbac.RoleManager), got)

	out, err = run(t, "guard", "guest")
	require.NoError(t, err)
	assert.NotContains(t, out, "allow")
}

func TestGrantLifecycle(t *testing.T) {
	store := useSQLiteStore(t)
	ctx := context.Background()

	out, err := run(t, "grant", "--actor", "a-1", "--tenant", "acme", "--by", "root", "user:create", "report:export")
	require.NoError(t, err)
	assert.Contains(t, out, "granted user:create to a-1")

	perms, err := store.FetchPermissions(ctx, "a-1", "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"report:export", "user:create"}, perms)

	out, err = run(t, "grants", "--actor", "a-1", "--tenant", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "report:export")
	assert.Contains(t, out, "root")

	_, err = run(t, "revoke", "--actor", "a-1", "--tenant", "acme", "report:export")
	require.NoError(t, err)
	perms, err = store.FetchPermissions(ctx, "a-1", "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:create"}, perms)

	_, err = run(t, "revoke", "--actor", "a-1", "--tenant", "acme", "report:export")
	assert.True(t, errors.Is(err, permstore.ErrGrantNotFound))

	out, err = run(t, "revoke", "--actor", "a-1", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "revoked 1 grants from a-1")

	out, err = run(t, "grants", "--actor", "a-1", "--tenant", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "No dynamic grants for a-1.")
}

func TestGrant_RejectsUnknownPermission(t *testing.T) {
	useSQLiteStore(t)

	_, err := run(t, "grant", "--actor", "a-1", "--tenant", "acme", "user:fly")
	assert.True(t, errors.Is(err, permstore.ErrUnknownPermission))
}

func TestGrant_InvalidatesSharedCache(t *testing.T) {
	useSQLiteStore(t)
	mr := miniredis.RunT(t)

	_, err := run(t, "grant", "--redis", "redis://"+mr.Addr(), "--actor", "a-1", "--tenant", "acme", "user:create")
	require.NoError(t, err)

	v, err := mr.Get(`tenantguard:permver:"a-1"`)
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestRevoke_ArgValidation(t *testing.T) {
	useSQLiteStore(t)

	_, err := run(t, "revoke", "--actor", "a-1")
	assert.EqualError(t, err, "pass either --all or at least one permission")

	_, err = run(t, "revoke", "--actor", "a-1", "--all", "user:create")
	assert.EqualError(t, err, "pass either --all or at least one permission")
}

func TestGrants_RequiresDatabase(t *testing.T) {
	t.Setenv("TENANTGUARD_POSTGRES_URL", "")

	_, err := run(t, "grants", "--actor", "a-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db or TENANTGUARD_POSTGRES_URL is required")
}
