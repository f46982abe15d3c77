// Package permstore persists dynamic permission grants.
//
// SQLStore keeps grants in PostgreSQL. RedisStore wraps any
// resolver.DynamicStore with a shared cache whose entries are retired by
// version bumps. It also implements resolver.Versioner, so every service
// replica's in-process cache notices an invalidation made anywhere on its
// next check. Without Redis, invalidations stay local to one process.
package permstore
