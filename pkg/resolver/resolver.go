package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// DynamicStore returns the fine-grained permissions granted to one actor in
// one tenant. Returned strings use the resource:action form.
type DynamicStore interface {
	FetchPermissions(ctx context.Context, actorID string, tenantID rbac.TenantID) ([]string, error)
}

// Invalidator is implemented by stores that keep their own cache
type Invalidator interface {
	Invalidate(ctx context.Context, actorID string) error
	InvalidateAll(ctx context.Context) error
}

// TenantInvalidator is implemented by stores that can retire one actor's
// entries in a single tenant
type TenantInvalidator interface {
	InvalidateTenant(ctx context.Context, actorID string, tenantID rbac.TenantID) error
}

// Versioner is implemented by stores whose invalidations are shared between
// processes. Version changes whenever anything cached for the actor in the
// tenant is invalidated, by any process. The resolver compares it on every
// cache hit.
type Versioner interface {
	Version(ctx context.Context, actorID string, tenantID rbac.TenantID) (string, error)
}

const (
	DefaultCacheSize    = 10000
	DefaultFetchTimeout = 5 * time.Second

	// maxResolveAttempts bounds how often Resolve restarts a fetch that was
	// superseded by an invalidation
	maxResolveAttempts = 3

	// peekVersionTimeout bounds the version lookup Peek makes on a cache hit
	peekVersionTimeout = 250 * time.Millisecond
)

var errStale = errors.New("resolver: fetch superseded by invalidation")

// Options configures a Resolver. The zero value resolves static
// permissions only.
type Options struct {
	Store          DynamicStore
	CacheSize      int
	FetchTimeout   time.Duration
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	TracerProvider trace.TracerProvider
}

// Resolver assembles actor snapshots from session claims, the static role
// table and an optional dynamic permission store.
//
// Successful fetches are cached per identity (actor, role, tenant) until
// they are evicted or explicitly invalidated. There is no time-based expiry.
// Each actor has a generation that every invalidation advances; a fetch
// whose generation is no longer current is never cached. When the store is
// a Versioner, entries also carry the store version read before the fetch,
// and a hit whose version no longer matches is dropped, so invalidations
// made by other processes take effect on the next check.
type Resolver struct {
	store        DynamicStore
	versions     Versioner
	fetchTimeout time.Duration
	logger       *observability.Logger
	metrics      *observability.Metrics
	tracer       trace.Tracer

	cache  *lru.Cache[auth.Identity, cacheEntry]
	failed *lru.Cache[auth.Identity, uint64]
	group  singleflight.Group

	// actorGen is bounded; an evicted generation is folded into allGen so
	// fetches that started before it are still discarded
	mu       sync.Mutex
	seq      uint64
	allGen   uint64
	actorGen *lru.Cache[string, uint64]

	wg sync.WaitGroup
}

// New creates a Resolver
func New(opts Options) (*Resolver, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	cache, err := lru.New[auth.Identity, cacheEntry](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create permission cache: %w", err)
	}
	failed, err := lru.New[auth.Identity, uint64](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create failure cache: %w", err)
	}

	r := &Resolver{
		store:        opts.Store,
		fetchTimeout: opts.FetchTimeout,
		logger:       opts.Logger.WithField("component", "resolver"),
		metrics:      opts.Metrics,
		tracer:       observability.Tracer(opts.TracerProvider),
		cache:        cache,
		failed:       failed,
	}
	r.versions, _ = opts.Store.(Versioner)

	// The callback runs inside actorGen.Add and Purge, which are only
	// called with r.mu held
	r.actorGen, err = lru.NewWithEvict[string, uint64](opts.CacheSize, func(_ string, gen uint64) {
		if gen > r.allGen {
			r.allGen = gen
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create generation cache: %w", err)
	}
	return r, nil
}

// Resolve returns the settled snapshot for claims, fetching dynamic
// permissions if they are not cached. Fetch failures resolve to the static
// role table; the only errors are corrupt claims and ctx cancellation.
func (r *Resolver) Resolve(ctx context.Context, claims auth.Claims) (Snapshot, error) {
	if err := claims.Validate(); err != nil {
		return Snapshot{}, err
	}

	static := rbac.PermissionsForRole(claims.Role)
	if r.store == nil {
		return newSnapshot(claims, StateResolved, static, nil), nil
	}

	id := claims.Identity()
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		if dynamic, ok := r.cached(ctx, id); ok {
			return newSnapshot(claims, StateResolved, static, dynamic), nil
		}

		gen := r.generation(id.ActorID)
		ch := r.group.DoChan(flightKey(id, gen), func() (interface{}, error) {
			return r.load(id, gen)
		})

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case res := <-ch:
			if errors.Is(res.Err, errStale) {
				continue
			}
			out := res.Val.(fetchResult)
			return newSnapshot(claims, out.state, static, out.dynamic), nil
		}
	}

	r.logger.WithField("actor_id", id.ActorID).Warn("dynamic permissions kept changing during resolve, using role table only")
	return newSnapshot(claims, StateResolvedStaticOnly, static, nil), nil
}

// Peek returns the current snapshot without waiting for a fetch. If dynamic
// permissions are not cached it starts the single in-flight fetch for the
// identity and returns a loading snapshot, or a static-only snapshot when
// the last fetch for this generation failed. A cache hit against a
// Versioner costs one bounded version lookup.
func (r *Resolver) Peek(claims auth.Claims) (Snapshot, error) {
	if err := claims.Validate(); err != nil {
		return Snapshot{}, err
	}

	static := rbac.PermissionsForRole(claims.Role)
	if r.store == nil {
		return newSnapshot(claims, StateResolved, static, nil), nil
	}

	id := claims.Identity()
	ctx, cancel := context.WithTimeout(context.Background(), peekVersionTimeout)
	dynamic, ok := r.cached(ctx, id)
	cancel()
	if ok {
		return newSnapshot(claims, StateResolved, static, dynamic), nil
	}

	gen := r.generation(id.ActorID)
	r.fetchInBackground(id, gen)

	if failedGen, ok := r.failed.Get(id); ok && failedGen == gen {
		return newSnapshot(claims, StateResolvedStaticOnly, static, nil), nil
	}
	return newSnapshot(claims, StateLoading, static, nil), nil
}

func (r *Resolver) fetchInBackground(id auth.Identity, gen uint64) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer observability.RecoverPanic(r.logger, "background permission fetch")
		_, _, _ = r.group.Do(flightKey(id, gen), func() (interface{}, error) {
			return r.load(id, gen)
		})
	}()
}

// Wait blocks until background fetches started by Peek have finished
func (r *Resolver) Wait() {
	r.wg.Wait()
}

// Invalidate drops everything cached for actorID. It must be called on
// logout, role change and tenant switch. The store's own cache is cleared
// first so that a fetch started after this call cannot read stale data.
// The local cache is always cleared, even when the store returns an error.
func (r *Resolver) Invalidate(ctx context.Context, actorID string) error {
	var storeErr error
	if inv, ok := r.store.(Invalidator); ok {
		if err := inv.Invalidate(ctx, actorID); err != nil {
			storeErr = fmt.Errorf("invalidate store cache for %s: %w", actorID, err)
		}
	}

	r.dropLocal(actorID, func(auth.Identity) bool { return true })

	r.metrics.ResolverInvalidationsTotal.WithLabelValues("actor").Inc()
	r.logger.WithField("actor_id", actorID).Debug("invalidated cached permissions")
	return storeErr
}

// InvalidateTenant drops what is cached for actorID in tenantID only.
// Stores that cannot scope by tenant invalidate the whole actor.
func (r *Resolver) InvalidateTenant(ctx context.Context, actorID string, tenantID rbac.TenantID) error {
	var storeErr error
	switch inv := r.store.(type) {
	case TenantInvalidator:
		if err := inv.InvalidateTenant(ctx, actorID, tenantID); err != nil {
			storeErr = fmt.Errorf("invalidate store cache for %s in %q: %w", actorID, tenantID, err)
		}
	case Invalidator:
		if err := inv.Invalidate(ctx, actorID); err != nil {
			storeErr = fmt.Errorf("invalidate store cache for %s: %w", actorID, err)
		}
	}

	r.dropLocal(actorID, func(id auth.Identity) bool { return id.TenantID == tenantID })

	r.metrics.ResolverInvalidationsTotal.WithLabelValues("tenant").Inc()
	r.logger.WithFields(map[string]interface{}{
		"actor_id":  actorID,
		"tenant_id": string(tenantID),
	}).Debug("invalidated cached permissions in tenant")
	return storeErr
}

// dropLocal advances the actor's generation and removes the cached entries
// of actorID that match. The generation is per actor, so in-flight fetches
// for the actor's other tenants are discarded too and simply retried.
func (r *Resolver) dropLocal(actorID string, match func(auth.Identity) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.actorGen.Add(actorID, r.seq)
	for _, key := range r.cache.Keys() {
		if key.ActorID == actorID && match(key) {
			r.cache.Remove(key)
		}
	}
	for _, key := range r.failed.Keys() {
		if key.ActorID == actorID && match(key) {
			r.failed.Remove(key)
		}
	}
}

// InvalidateAll drops every cached entry
func (r *Resolver) InvalidateAll(ctx context.Context) error {
	var storeErr error
	if inv, ok := r.store.(Invalidator); ok {
		if err := inv.InvalidateAll(ctx); err != nil {
			storeErr = fmt.Errorf("invalidate store cache: %w", err)
		}
	}

	r.mu.Lock()
	r.seq++
	r.actorGen.Purge()
	r.allGen = r.seq
	r.cache.Purge()
	r.failed.Purge()
	r.mu.Unlock()

	r.metrics.ResolverInvalidationsTotal.WithLabelValues("all").Inc()
	r.logger.Info("invalidated all cached permissions")
	return storeErr
}

// Len returns the number of cached identities
func (r *Resolver) Len() int {
	return r.cache.Len()
}

type fetchResult struct {
	state   State
	dynamic rbac.PermissionSet
}

type cacheEntry struct {
	dynamic rbac.PermissionSet
	version string
}

// cached returns the cached dynamic permissions for id. Against a Versioner
// the entry only counts when the store version still matches; when the
// version cannot be read the entry is treated as missing.
func (r *Resolver) cached(ctx context.Context, id auth.Identity) (rbac.PermissionSet, bool) {
	entry, ok := r.cache.Get(id)
	if ok && r.versions != nil {
		current, err := r.versions.Version(ctx, id.ActorID, id.TenantID)
		switch {
		case err != nil:
			r.logger.WithError(err).WithField("actor_id", id.ActorID).Warn("permission version unavailable, refetching")
			ok = false
		case current != entry.version:
			r.logger.WithField("actor_id", id.ActorID).Debug("cached permissions invalidated elsewhere")
			r.cache.Remove(id)
			ok = false
		}
	}
	if ok {
		r.metrics.ResolverCacheHitsTotal.Inc()
		return entry.dynamic, true
	}
	r.metrics.ResolverCacheMissesTotal.Inc()
	return nil, false
}

func (r *Resolver) generation(actorID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generationLocked(actorID)
}

func (r *Resolver) generationLocked(actorID string) uint64 {
	if gen, ok := r.actorGen.Get(actorID); ok && gen > r.allGen {
		return gen
	}
	return r.allGen
}

// storeIfCurrent caches dynamic for id unless an invalidation happened
// after the fetch started
func (r *Resolver) storeIfCurrent(id auth.Identity, gen uint64, entry cacheEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generationLocked(id.ActorID) != gen {
		return false
	}
	r.cache.Add(id, entry)
	r.failed.Remove(id)
	return true
}

// recordFailure remembers that the fetch for gen failed so that Peek can
// report static-only instead of loading
func (r *Resolver) recordFailure(id auth.Identity, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generationLocked(id.ActorID) == gen {
		r.failed.Add(id, gen)
	}
}

// load runs one fetch. It is detached from the caller's context: the fetch
// is idempotent and its result serves every waiter.
func (r *Resolver) load(id auth.Identity, gen uint64) (fetchResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.fetchTimeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "resolver.FetchPermissions", trace.WithAttributes(
		attribute.String("actor.id", id.ActorID),
		attribute.String("actor.role", string(id.Role)),
		attribute.String("tenant.id", string(id.TenantID)),
	))
	defer span.End()

	log := r.logger.WithFields(map[string]interface{}{
		"actor_id":  id.ActorID,
		"role":      string(id.Role),
		"tenant_id": string(id.TenantID),
	})

	// The version is read before the fetch. If an invalidation lands in
	// between, the entry carries the old version and the next hit refetches.
	var version string
	if r.versions != nil {
		v, err := r.versions.Version(ctx, id.ActorID, id.TenantID)
		if err != nil {
			log.WithError(err).Warn("permission version unavailable")
		}
		version = v
	}

	start := time.Now()
	raw, err := r.store.FetchPermissions(ctx, id.ActorID, id.TenantID)
	r.metrics.ResolverFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dynamic permission fetch failed")
		r.metrics.ResolverFetchTotal.WithLabelValues("error").Inc()
		log.WithError(err).Warn("dynamic permission fetch failed, using role table only")
		// The failure is remembered but the permissions are not; the next
		// check retries the fetch
		r.recordFailure(id, gen)
		return fetchResult{state: StateResolvedStaticOnly}, nil
	}

	dynamic := r.parse(log, raw)
	span.SetAttributes(attribute.Int("permissions.dynamic", len(dynamic)))

	if !r.storeIfCurrent(id, gen, cacheEntry{dynamic: dynamic, version: version}) {
		r.metrics.ResolverFetchTotal.WithLabelValues("stale").Inc()
		log.Debug("discarding permissions fetched before an invalidation")
		return fetchResult{}, errStale
	}

	r.metrics.ResolverFetchTotal.WithLabelValues("success").Inc()
	return fetchResult{state: StateResolved, dynamic: dynamic}, nil
}

// parse keeps the catalogued permissions and drops everything else
func (r *Resolver) parse(log *observability.Logger, raw []string) rbac.PermissionSet {
	dynamic := make(rbac.PermissionSet, len(raw))
	for _, s := range raw {
		p, err := rbac.ParsePermission(s)
		if err != nil || !rbac.Known(p) {
			r.metrics.DroppedPermissionsTotal.Inc()
			log.WithField("permission", s).Warn("dropping unknown dynamic permission")
			continue
		}
		dynamic.Add(p)
	}
	return dynamic
}

func flightKey(id auth.Identity, gen uint64) string {
	return id.String() + "#" + strconv.FormatUint(gen, 10)
}
