// Package middleware provides HTTP middleware for session extraction and
// rate limiting in front of the authorization handlers.
//
// # Middleware Components
//
// SessionMiddleware: reads claims through an auth.SessionSource
//
//	router.Use(middleware.NewSessionMiddleware(auth.HeaderSessionSource{}, false).Handler)
//	// Missing session -> 401, inconsistent claims -> 403
//
// RateLimitMiddleware: per-actor token bucket, client IP for anonymous callers
//
//	limits := middleware.NewRateLimitMiddleware(nil, nil)
//	router.Use(limits.Handler)
//
// DistributedRateLimiter: Redis fixed-window counter shared across replicas
//
//	actors := middleware.NewDistributedRateLimiter(redisClient, middleware.PerActorRateLimitConfig(), "")
//	limits := middleware.NewRateLimitMiddleware(actors, nil)
//
// # Related Packages
//
//   - pkg/auth: session claims
//   - pkg/guard: permission checks run after these middlewares
package middleware
