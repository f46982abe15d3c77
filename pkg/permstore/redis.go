package permstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/resolver"
)

const (
	backendRedis = "redis"

	DefaultRedisPrefix = "tenantguard"
	DefaultRedisTTL    = 10 * time.Minute
)

// RedisOptions configures a RedisStore
type RedisOptions struct {
	Prefix  string
	TTL     time.Duration
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// RedisStore is a read-through cache shared by every replica of the service.
//
// Cache keys embed a global version, a per-actor version and a per-actor,
// per-tenant version. Invalidation increments a version instead of deleting
// keys, so a fetch that read the inner store before an invalidation writes
// under a key that is never read again. The same versions are exposed
// through Version, which lets every resolver process notice invalidations
// made elsewhere. The TTL only bounds memory; it is not a correctness
// mechanism.
type RedisStore struct {
	client  redis.UniversalClient
	inner   resolver.DynamicStore
	prefix  string
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRedisStore wraps inner with a Redis cache
func NewRedisStore(client redis.UniversalClient, inner resolver.DynamicStore, opts RedisOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = DefaultRedisPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultRedisTTL
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	return &RedisStore{
		client:  client,
		inner:   inner,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
		logger:  opts.Logger.WithField("component", "permstore.redis"),
		metrics: opts.Metrics,
	}
}

// FetchPermissions serves from Redis when possible. Redis errors are logged
// and the inner store is used directly.
func (s *RedisStore) FetchPermissions(ctx context.Context, actorID string, tenantID rbac.TenantID) ([]string, error) {
	log := s.logger.WithField("actor_id", actorID)

	key, err := s.cacheKey(ctx, actorID, tenantID)
	if err != nil {
		s.countCache("error")
		log.WithError(err).Warn("permission cache unavailable, reading store directly")
		return s.inner.FetchPermissions(ctx, actorID, tenantID)
	}

	start := time.Now()
	data, err := s.client.Get(ctx, key).Bytes()
	s.observe("get", start, ignoreNil(err))
	switch {
	case err == nil:
		var perms []string
		if jerr := json.Unmarshal(data, &perms); jerr == nil {
			s.countCache("hit")
			return perms, nil
		}
		log.Warn("dropping corrupt permission cache entry")
		s.client.Del(ctx, key)
	case err != redis.Nil:
		s.countCache("error")
		log.WithError(err).Warn("permission cache read failed, reading store directly")
		return s.inner.FetchPermissions(ctx, actorID, tenantID)
	}
	s.countCache("miss")

	perms, err := s.inner.FetchPermissions(ctx, actorID, tenantID)
	if err != nil {
		return nil, err
	}

	data, err = json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("failed to encode permissions: %w", err)
	}
	start = time.Now()
	err = s.client.Set(ctx, key, data, s.ttl).Err()
	s.observe("set", start, err)
	if err != nil {
		log.WithError(err).Warn("failed to cache permissions")
	}
	return perms, nil
}

// Version returns the combined version of actorID's entries in tenantID
func (s *RedisStore) Version(ctx context.Context, actorID string, tenantID rbac.TenantID) (string, error) {
	start := time.Now()
	vals, err := s.client.MGet(ctx, s.globalVersionKey(), s.actorVersionKey(actorID), s.tenantVersionKey(actorID, tenantID)).Result()
	s.observe("versions", start, err)
	if err != nil {
		return "", fmt.Errorf("redis mget failed: %w", err)
	}
	return version(vals[0]) + "." + version(vals[1]) + "." + version(vals[2]), nil
}

// InvalidateTenant retires actorID's cached entries in tenantID only
func (s *RedisStore) InvalidateTenant(ctx context.Context, actorID string, tenantID rbac.TenantID) error {
	start := time.Now()
	err := s.client.Incr(ctx, s.tenantVersionKey(actorID, tenantID)).Err()
	s.observe("invalidate_tenant", start, err)
	if err != nil {
		return fmt.Errorf("redis incr failed: %w", err)
	}
	return s.invalidateInner(ctx, actorID)
}

// Invalidate retires every cached entry for actorID
func (s *RedisStore) Invalidate(ctx context.Context, actorID string) error {
	start := time.Now()
	err := s.client.Incr(ctx, s.actorVersionKey(actorID)).Err()
	s.observe("invalidate", start, err)
	if err != nil {
		return fmt.Errorf("redis incr failed: %w", err)
	}
	return s.invalidateInner(ctx, actorID)
}

// InvalidateAll retires every cached entry
func (s *RedisStore) InvalidateAll(ctx context.Context) error {
	start := time.Now()
	err := s.client.Incr(ctx, s.globalVersionKey()).Err()
	s.observe("invalidate_all", start, err)
	if err != nil {
		return fmt.Errorf("redis incr failed: %w", err)
	}
	if inv, ok := s.inner.(resolver.Invalidator); ok {
		return inv.InvalidateAll(ctx)
	}
	return nil
}

func (s *RedisStore) invalidateInner(ctx context.Context, actorID string) error {
	if inv, ok := s.inner.(resolver.Invalidator); ok {
		return inv.Invalidate(ctx, actorID)
	}
	return nil
}

// cacheKey reads the versions and builds the entry key for them
func (s *RedisStore) cacheKey(ctx context.Context, actorID string, tenantID rbac.TenantID) (string, error) {
	v, err := s.Version(ctx, actorID, tenantID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:perms:%q:%q:%s", s.prefix, actorID, string(tenantID), v), nil
}

func (s *RedisStore) actorVersionKey(actorID string) string {
	return fmt.Sprintf("%s:permver:%q", s.prefix, actorID)
}

func (s *RedisStore) tenantVersionKey(actorID string, tenantID rbac.TenantID) string {
	return fmt.Sprintf("%s:permver:%q:%q", s.prefix, actorID, string(tenantID))
}

func (s *RedisStore) globalVersionKey() string {
	return s.prefix + ":permver:_all"
}

func (s *RedisStore) observe(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveStoreOperation(op, backendRedis, start, err)
	}
}

func (s *RedisStore) countCache(result string) {
	if s.metrics != nil {
		s.metrics.StoreCacheTotal.WithLabelValues(result).Inc()
	}
}

func version(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "0"
}

func ignoreNil(err error) error {
	if err == redis.Nil {
		return nil
	}
	return err
}
