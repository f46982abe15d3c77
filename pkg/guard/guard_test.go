package guard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/resolver"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.Event
	err    error
}

func (a *recordingAudit) Log(ctx context.Context, event *audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return a.err
}

func (a *recordingAudit) Close() error { return nil }

func (a *recordingAudit) recorded() []*audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*audit.Event(nil), a.events...)
}

// mapStore serves fixed dynamic grants, optionally blocking until release
type mapStore struct {
	perms   map[string][]string
	release chan struct{}
}

func (s *mapStore) FetchPermissions(ctx context.Context, actorID string, tenantID rbac.TenantID) ([]string, error) {
	if s.release != nil {
		<-s.release
	}
	return s.perms[actorID], nil
}

type spyAuthorizer struct {
	rbac.TenantAuthorizer
	calls []string
}

func (s *spyAuthorizer) Evaluate(actorRole rbac.Role, actorTenant rbac.TenantID, targetRole rbac.Role, targetTenant rbac.TenantID, action rbac.Action) rbac.Verdict {
	s.calls = append(s.calls, string(actorRole)+"@"+string(actorTenant)+">"+string(targetRole)+"@"+string(targetTenant)+":"+string(action))
	return rbac.Verdict{Allowed: true, Reason: rbac.ReasonRoleCapability}
}

type fixture struct {
	guard   *Guard
	audit   *recordingAudit
	metrics *observability.Metrics
}

func newFixture(t *testing.T, store resolver.DynamicStore) fixture {
	t.Helper()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	r, err := resolver.New(resolver.Options{Store: store, Metrics: metrics})
	require.NoError(t, err)
	t.Cleanup(r.Wait)

	rec := &recordingAudit{}
	g, err := New(Options{Resolver: r, Audit: rec, Metrics: metrics})
	require.NoError(t, err)
	return fixture{guard: g, audit: rec, metrics: metrics}
}

func claimsCtx(claims auth.Claims) context.Context {
	return auth.WithClaims(context.Background(), claims)
}

var (
	managerClaims = auth.Claims{ActorID: "m-1", Role: rbac.RoleManager, TenantID: "tenant-1"}
	guestClaims   = auth.Claims{ActorID: "g-1", Role: rbac.RoleGuest, TenantID: "tenant-1"}
	rootClaims    = auth.Claims{ActorID: "root", Role: rbac.RoleSuperAdmin, IsSuperAdmin: true}
)

func TestResolveActor(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.guard.ResolveActor(context.Background())
	assert.ErrorIs(t, err, auth.ErrNoSession)

	snap, err := f.guard.ResolveActor(claimsCtx(managerClaims))
	require.NoError(t, err)
	assert.Equal(t, resolver.StateResolved, snap.State)
	assert.Equal(t, managerClaims, snap.Claims)

	_, err = f.guard.ResolveActor(claimsCtx(auth.Claims{ActorID: "x", Role: rbac.RoleAdmin}))
	assert.ErrorIs(t, err, auth.ErrCorruptActor)
}

func TestCanPerform_DelegatesToAuthorizer(t *testing.T) {
	spy := &spyAuthorizer{}
	g, err := New(Options{Authorizer: spy})
	require.NoError(t, err)

	actor := auth.Actor{ID: "u-1", Role: rbac.RoleGuest, TenantID: "tenant-1"}
	target := auth.Target{Role: rbac.RoleAdmin, TenantID: "tenant-9"}

	assert.True(t, g.CanPerform(context.Background(), actor, target, rbac.ActionDelete))
	assert.Equal(t, []string{"guest@tenant-1>admin@tenant-9:delete"}, spy.calls)
}

func TestCanPerform_Scenarios(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	admin := auth.Actor{ID: "a-1", Role: rbac.RoleAdmin, TenantID: "tenant-1"}
	root := auth.Actor{ID: "root", Role: rbac.RoleSuperAdmin, IsSuperAdmin: true}

	assert.False(t, f.guard.CanPerform(ctx, admin, auth.Target{Role: rbac.RoleUser, TenantID: "tenant-2"}, rbac.ActionEdit))
	assert.True(t, f.guard.CanPerform(ctx, root, auth.Target{Role: rbac.RoleAdmin, TenantID: "tenant-1"}, rbac.ActionDelete))
	assert.False(t, f.guard.CanPerform(ctx, admin, auth.Target{Role: rbac.RoleAdmin, TenantID: "tenant-1"}, rbac.ActionDelete))

	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.DecisionsTotal.WithLabelValues("action", "deny")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DecisionsTotal.WithLabelValues("action", "allow")))
	assert.Empty(t, f.audit.recorded(), "CanPerform never audits")
}

func TestAssertAction(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := auth.Actor{ID: "a-1", Role: rbac.RoleAdmin, TenantID: "tenant-1"}
	target := auth.Target{Role: rbac.RoleUser, TenantID: "tenant-2"}

	err := f.guard.AssertAction(ctx, admin, target, rbac.ActionEdit)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActionDenied)

	var denied *ActionDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, rbac.ReasonTenantMismatch, denied.Reason)

	events := f.audit.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeActionDenied, events[0].EventType)
	assert.Equal(t, "a-1", events[0].ActorID)
	assert.Equal(t, rbac.TenantID("tenant-2"), events[0].TargetTenantID)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ActionDenialsTotal.WithLabelValues("tenant_mismatch")))

	assert.NoError(t, f.guard.AssertAction(ctx, admin, auth.Target{Role: rbac.RoleUser, TenantID: "tenant-1"}, rbac.ActionEdit))
	assert.Len(t, f.audit.recorded(), 1)
}

func TestAssert(t *testing.T) {
	f := newFixture(t, nil)
	ctx := claimsCtx(managerClaims)
	snap, err := f.guard.ResolveActor(ctx)
	require.NoError(t, err)

	assert.NoError(t, f.guard.Assert(ctx, snap, rbac.PermUserEdit))

	err = f.guard.Assert(ctx, snap, rbac.PermUserDelete)
	assert.ErrorIs(t, err, rbac.ErrPermissionDenied)
	denied, ok := rbac.IsPermissionDenied(err)
	require.True(t, ok)
	assert.Equal(t, rbac.RoleManager, denied.Role)
	assert.Equal(t, rbac.PermUserDelete, denied.Permission)

	events := f.audit.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeAccessDenied, events[0].EventType)
	assert.Equal(t, "m-1", events[0].ActorID)
	assert.Equal(t, rbac.RoleManager, events[0].Role)
	assert.Equal(t, rbac.TenantID("tenant-1"), events[0].TenantID)
	assert.Equal(t, "user:delete", events[0].DeniedPermission)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestAssert_DynamicGrant(t *testing.T) {
	f := newFixture(t, &mapStore{perms: map[string][]string{"g-1": {"user:create"}}})
	ctx := claimsCtx(guestClaims)

	snap, err := f.guard.ResolveActor(ctx)
	require.NoError(t, err)
	assert.NoError(t, f.guard.Assert(ctx, snap, rbac.PermUserCreate))
	assert.True(t, snap.Capabilities().CanCreateUsers)
}

func TestAssert_LoadingIsIndeterminate(t *testing.T) {
	store := &mapStore{release: make(chan struct{})}
	f := newFixture(t, store)
	defer close(store.release)
	ctx := claimsCtx(rootClaims)

	snap, err := f.guard.PeekActor(ctx)
	require.NoError(t, err)
	require.True(t, snap.Loading())

	err = f.guard.Assert(ctx, snap, rbac.PermTenantDelete)
	assert.ErrorIs(t, err, ErrIndeterminate)
	assert.NotErrorIs(t, err, rbac.ErrPermissionDenied)
	assert.ErrorIs(t, f.guard.AssertAny(ctx, snap, rbac.PermUserList), ErrIndeterminate)
	assert.ErrorIs(t, f.guard.AssertAll(ctx, snap), ErrIndeterminate)
	assert.Empty(t, f.audit.recorded(), "loading is not a denial")
}

func TestAssertAnyAndAll(t *testing.T) {
	f := newFixture(t, nil)
	ctx := claimsCtx(managerClaims)
	snap, err := f.guard.ResolveActor(ctx)
	require.NoError(t, err)

	assert.NoError(t, f.guard.AssertAny(ctx, snap, rbac.PermUserDelete, rbac.PermUserEdit))
	assert.ErrorIs(t, f.guard.AssertAny(ctx, snap, rbac.PermUserDelete, rbac.PermTenantDelete), rbac.ErrPermissionDenied)
	assert.ErrorIs(t, f.guard.AssertAny(ctx, snap), rbac.ErrPermissionDenied)

	assert.NoError(t, f.guard.AssertAll(ctx, snap, rbac.PermUserEdit, rbac.PermUserList))
	assert.NoError(t, f.guard.AssertAll(ctx, snap))
	err = f.guard.AssertAll(ctx, snap, rbac.PermUserEdit, rbac.PermUserCreate)
	denied, ok := rbac.IsPermissionDenied(err)
	require.True(t, ok)
	assert.Equal(t, rbac.PermUserCreate, denied.Permission)
}

func TestAssert_AuditFailureDoesNotChangeDecision(t *testing.T) {
	f := newFixture(t, nil)
	f.audit.err = errors.New("disk full")
	ctx := claimsCtx(managerClaims)
	snap, err := f.guard.ResolveActor(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, f.guard.Assert(ctx, snap, rbac.PermUserDelete), rbac.ErrPermissionDenied)
}
