package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/resolver"
)

var (
	// ErrIndeterminate is returned while an actor's permissions are loading.
	// It is not a denial: surfaces hide or disable the control and retry.
	ErrIndeterminate = errors.New("guard: permissions not yet resolved")

	// ErrActionDenied is matched by every *ActionDeniedError
	ErrActionDenied = errors.New("guard: action denied")
)

// ActionDeniedError is returned by AssertAction
type ActionDeniedError struct {
	Action rbac.Action
	Target auth.Target
	Reason rbac.Reason
}

func (e *ActionDeniedError) Error() string {
	return fmt.Sprintf("action %s on %s in tenant %q denied: %s", e.Action, e.Target.Role, e.Target.TenantID, e.Reason)
}

// Is lets errors.Is(err, ErrActionDenied) match
func (e *ActionDeniedError) Is(target error) bool {
	return target == ErrActionDenied
}

// Options configures a Guard
type Options struct {
	Authorizer rbac.Authorizer
	Resolver   *resolver.Resolver
	Audit      audit.Logger
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Guard is the single place request handlers ask authorization questions.
// Every tenant comparison goes through its Authorizer.
type Guard struct {
	authorizer rbac.Authorizer
	resolver   *resolver.Resolver
	audit      audit.Logger
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// New creates a Guard. Without a Resolver only static role permissions are
// used.
func New(opts Options) (*Guard, error) {
	if opts.Authorizer == nil {
		opts.Authorizer = rbac.NewAuthorizer()
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	if opts.Audit == nil {
		opts.Audit = audit.NopLogger()
	}
	if opts.Resolver == nil {
		r, err := resolver.New(resolver.Options{Logger: opts.Logger, Metrics: opts.Metrics})
		if err != nil {
			return nil, err
		}
		opts.Resolver = r
	}

	return &Guard{
		authorizer: opts.Authorizer,
		resolver:   opts.Resolver,
		audit:      opts.Audit,
		logger:     opts.Logger.WithField("component", "guard"),
		metrics:    opts.Metrics,
	}, nil
}

// Resolver returns the resolver backing the guard
func (g *Guard) Resolver() *resolver.Resolver {
	return g.resolver
}

// ResolveActor resolves the session claims stored in ctx, blocking until the
// dynamic permissions settle
func (g *Guard) ResolveActor(ctx context.Context) (resolver.Snapshot, error) {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return resolver.Snapshot{}, auth.ErrNoSession
	}
	return g.resolver.Resolve(ctx, claims)
}

// PeekActor is ResolveActor without blocking. The snapshot may be loading.
func (g *Guard) PeekActor(ctx context.Context) (resolver.Snapshot, error) {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return resolver.Snapshot{}, auth.ErrNoSession
	}
	return g.resolver.Peek(claims)
}

// Evaluate asks the authorizer whether actor may perform action on target
func (g *Guard) Evaluate(ctx context.Context, actor auth.Actor, target auth.Target, action rbac.Action) rbac.Verdict {
	verdict := g.authorizer.Evaluate(actor.Role, actor.TenantID, target.Role, target.TenantID, action)
	g.metrics.DecisionsTotal.WithLabelValues("action", outcome(verdict.Allowed)).Inc()
	return verdict
}

// CanPerform reports whether actor may perform action on target
func (g *Guard) CanPerform(ctx context.Context, actor auth.Actor, target auth.Target, action rbac.Action) bool {
	return g.Evaluate(ctx, actor, target, action).Allowed
}

// AssertAction is CanPerform for call sites that need an error. Denials are
// audited.
func (g *Guard) AssertAction(ctx context.Context, actor auth.Actor, target auth.Target, action rbac.Action) error {
	verdict := g.Evaluate(ctx, actor, target, action)
	if verdict.Allowed {
		return nil
	}

	g.metrics.ActionDenialsTotal.WithLabelValues(string(verdict.Reason)).Inc()
	g.record(ctx, audit.ActionDenied(ctx, actor.Claims(), target, action, verdict.Reason))
	return &ActionDeniedError{Action: action, Target: target, Reason: verdict.Reason}
}

// Assert checks perm against the merged static and dynamic permissions of
// snap. A denial is audited and returned as *rbac.PermissionDeniedError;
// a loading snapshot yields ErrIndeterminate.
func (g *Guard) Assert(ctx context.Context, snap resolver.Snapshot, perm rbac.Permission) error {
	switch snap.Check(perm) {
	case resolver.Allow:
		g.metrics.DecisionsTotal.WithLabelValues("permission", "allow").Inc()
		return nil
	case resolver.Indeterminate:
		g.metrics.DecisionsTotal.WithLabelValues("permission", "indeterminate").Inc()
		return ErrIndeterminate
	default:
		g.metrics.DecisionsTotal.WithLabelValues("permission", "deny").Inc()
		g.record(ctx, audit.AccessDenied(ctx, snap.Claims, perm))
		return &rbac.PermissionDeniedError{Role: snap.Claims.Role, Permission: perm}
	}
}

// AssertAny passes when snap holds at least one of perms. The audit event
// names the first permission.
func (g *Guard) AssertAny(ctx context.Context, snap resolver.Snapshot, perms ...rbac.Permission) error {
	if snap.Loading() {
		g.metrics.DecisionsTotal.WithLabelValues("permission", "indeterminate").Inc()
		return ErrIndeterminate
	}
	for _, p := range perms {
		if snap.Check(p).Allowed() {
			g.metrics.DecisionsTotal.WithLabelValues("permission", "allow").Inc()
			return nil
		}
	}
	if len(perms) == 0 {
		g.metrics.DecisionsTotal.WithLabelValues("permission", "deny").Inc()
		return &rbac.PermissionDeniedError{Role: snap.Claims.Role}
	}
	return g.Assert(ctx, snap, perms[0])
}

// AssertAll passes when snap holds every one of perms. An empty list passes.
func (g *Guard) AssertAll(ctx context.Context, snap resolver.Snapshot, perms ...rbac.Permission) error {
	if snap.Loading() {
		g.metrics.DecisionsTotal.WithLabelValues("permission", "indeterminate").Inc()
		return ErrIndeterminate
	}
	for _, p := range perms {
		if err := g.Assert(ctx, snap, p); err != nil {
			return err
		}
	}
	return nil
}

// record writes an audit event. Audit failures never change the decision.
func (g *Guard) record(ctx context.Context, event *audit.Event) {
	if err := g.audit.Log(ctx, event); err != nil {
		g.logger.WithError(err).WithField("event_type", string(event.EventType)).Error("failed to write audit event")
	}
}

func outcome(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
