package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/httputil"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns limits for callers without a session
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// PerActorRateLimitConfig returns limits applied to each authenticated actor.
// Decision endpoints are called on every page render, so this is generous.
func PerActorRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
		BurstSize:         50,
	}
}

// Limiter is satisfied by the in-memory and Redis-backed limiters
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Config() *RateLimitConfig
}

// RateLimiter implements a token bucket per key held in process memory
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Config returns the limiter configuration
func (rl *RateLimiter) Config() *RateLimitConfig {
	return rl.config
}

// Allow consumes a token for key. It never returns an error.
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	maxTokens := rl.config.RequestsPerWindow + rl.config.BurstSize

	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: maxTokens, lastUpdate: now}
		rl.buckets[key] = b
	}

	elapsed := now.Sub(b.lastUpdate)
	tokensToAdd := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if tokensToAdd > 0 {
		b.tokens += tokensToAdd
		if b.tokens > maxTokens {
			b.tokens = maxTokens
		}
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Remaining returns the number of remaining tokens for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[key]
	if !exists {
		return rl.config.RequestsPerWindow + rl.config.BurstSize
	}
	return b.tokens
}

// Cleanup removes idle buckets
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup starts a background goroutine to cleanup old buckets
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimitMiddleware limits requests per actor, falling back to client IP
// for requests without a session
type RateLimitMiddleware struct {
	actorLimiter     Limiter
	anonymousLimiter Limiter
	failOpen         bool
}

// NewRateLimitMiddleware creates a rate limit middleware from two limiters
func NewRateLimitMiddleware(actorLimiter, anonymousLimiter Limiter) *RateLimitMiddleware {
	if actorLimiter == nil {
		actorLimiter = NewRateLimiter(PerActorRateLimitConfig())
	}
	if anonymousLimiter == nil {
		anonymousLimiter = NewRateLimiter(DefaultRateLimitConfig())
	}
	return &RateLimitMiddleware{
		actorLimiter:     actorLimiter,
		anonymousLimiter: anonymousLimiter,
		failOpen:         true,
	}
}

// SetFailOpen controls whether limiter errors let the request through
func (m *RateLimitMiddleware) SetFailOpen(enabled bool) {
	m.failOpen = enabled
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, limiter := m.keyFor(r)

		allowed, err := limiter.Allow(r.Context(), key)
		if err != nil {
			if m.failOpen {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "rate limiter unavailable")
			return
		}

		cfg := limiter.Config()
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RequestsPerWindow))
		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", cfg.WindowDuration.Seconds()))
			w.Header().Set("X-RateLimit-Remaining", "0")
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) keyFor(r *http.Request) (string, Limiter) {
	if claims, ok := GetClaims(r); ok {
		return "actor:" + claims.ActorID, m.actorLimiter
	}
	return "ip:" + getClientIP(r), m.anonymousLimiter
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
