package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/config"
	"github.com/platinummonkey/tenantguard/pkg/guard"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/permstore"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/resolver"
)

const (
	maxRequestBody       = 1 << 20
	replicaCheckInterval = 30 * time.Second
	rateLimitRedisPrefix = "tenantguard:ratelimit"
	tracingOperationName = "authzd"
)

// app owns every long-lived component of the decision service
type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	obsLogger *observability.Logger
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	tracing   *sdktrace.TracerProvider

	conns *permstore.ConnectionManager
	redis redis.UniversalClient

	resolver *resolver.Resolver
	guard    *guard.Guard
	audit    audit.Logger
	limits   *middleware.RateLimitMiddleware
	health   *observability.HealthChecker
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (_ *app, err error) {
	a := &app{
		cfg:       cfg,
		log:       logger,
		obsLogger: observability.NewLogger(cfg.Observability.Level(), os.Stdout),
		registry:  prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			if closeErr := a.close(context.Background()); closeErr != nil {
				logger.Warnf("Cleanup after failed start: %v", closeErr)
			}
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetrics(a.registry)

	a.tracing, err = observability.InitTracing(ctx, cfg.Observability.OTel(), a.obsLogger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	var tp trace.TracerProvider
	if a.tracing != nil {
		tp = a.tracing
	}
	a.resolver, err = resolver.New(resolver.Options{
		Store:          store,
		CacheSize:      cfg.Cache.Size,
		FetchTimeout:   cfg.Cache.FetchTimeout,
		Logger:         a.obsLogger,
		Metrics:        a.metrics,
		TracerProvider: tp,
	})
	if err != nil {
		return nil, fmt.Errorf("create resolver: %w", err)
	}

	a.audit, err = a.openAudit()
	if err != nil {
		return nil, err
	}

	a.guard, err = guard.New(guard.Options{
		Authorizer: rbac.NewAuthorizer(),
		Resolver:   a.resolver,
		Audit:      a.audit,
		Logger:     a.obsLogger,
		Metrics:    a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create guard: %w", err)
	}

	a.limits = a.rateLimits(ctx)

	a.health = observability.NewHealthChecker(a.primary(), a.redis, version)

	if a.conns != nil && len(cfg.Store.PostgresReplicaURLs) > 0 {
		go a.watchReplicas(ctx)
	}

	return a, nil
}

// openStore connects the dynamic permission store. Without a Postgres URL
// the resolver serves static role permissions only.
func (a *app) openStore(ctx context.Context) (resolver.DynamicStore, error) {
	sc := a.cfg.Store

	if sc.RedisURL != "" {
		opts, err := redis.ParseURL(sc.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		if sc.RedisPassword != "" {
			opts.Password = sc.RedisPassword
		}
		if sc.RedisDB > 0 {
			opts.DB = sc.RedisDB
		}
		if sc.RedisPoolSize > 0 {
			opts.PoolSize = sc.RedisPoolSize
		}
		a.redis = redis.NewClient(opts)
	}

	if sc.PostgresURL == "" {
		a.log.Warn("No postgres URL configured, serving static role permissions only")
		return nil, nil
	}

	conns, err := permstore.Connect(ctx, permstore.ConnectionConfig{
		PrimaryURL:  sc.PostgresURL,
		ReplicaURLs: sc.PostgresReplicaURLs,
		MaxConns:    sc.PostgresMaxConns,
		MinConns:    sc.PostgresMinConns,
		Timeout:     sc.PostgresTimeout,
	}, a.obsLogger)
	if err != nil {
		return nil, fmt.Errorf("connect permission store: %w", err)
	}
	a.conns = conns

	if err := permstore.Migrate(ctx, conns.Primary(), a.obsLogger); err != nil {
		return nil, fmt.Errorf("migrate permission store: %w", err)
	}

	var store resolver.DynamicStore = permstore.NewSQLStore(conns, a.metrics)
	if a.redis != nil {
		store = permstore.NewRedisStore(a.redis, store, permstore.RedisOptions{
			Prefix:  sc.RedisPrefix,
			TTL:     sc.RedisTTL,
			Logger:  a.obsLogger,
			Metrics: a.metrics,
		})
		a.log.Info("Dynamic permissions cached in redis")
	}
	return store, nil
}

func (a *app) openAudit() (audit.Logger, error) {
	sinks := []audit.Logger{audit.NewSlogLogger(a.obsLogger)}

	if dir := a.cfg.Audit.Directory; dir != "" {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: dir,
			Rotate:   true,
			MaxSize:  a.cfg.Audit.MaxFileSize,
			MaxFiles: a.cfg.Audit.MaxFiles,
		})
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		sinks = append(sinks, fileLogger)
		a.log.Infof("Writing audit events to %s", dir)
	}

	return audit.WithMetrics(audit.NewMultiLogger(sinks...), a.metrics), nil
}

// rateLimits builds per-actor and anonymous limiters. They share counters
// across replicas through redis when configured to.
func (a *app) rateLimits(ctx context.Context) *middleware.RateLimitMiddleware {
	rc := a.cfg.RateLimit
	if !rc.Enabled {
		return nil
	}

	actorCfg := &middleware.RateLimitConfig{
		RequestsPerWindow: rc.ActorPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         rc.Burst,
	}
	anonCfg := &middleware.RateLimitConfig{
		RequestsPerWindow: rc.AnonymousPerMin,
		WindowDuration:    time.Minute,
		BurstSize:         rc.Burst,
	}

	var actor, anonymous middleware.Limiter
	if rc.UseDistributed && a.redis != nil {
		actor = middleware.NewDistributedRateLimiter(a.redis, actorCfg, rateLimitRedisPrefix+":actor")
		anonymous = middleware.NewDistributedRateLimiter(a.redis, anonCfg, rateLimitRedisPrefix+":anon")
	} else {
		actorMem := middleware.NewRateLimiter(actorCfg)
		anonMem := middleware.NewRateLimiter(anonCfg)
		actorMem.StartCleanup(ctx)
		anonMem.StartCleanup(ctx)
		actor, anonymous = actorMem, anonMem
	}

	limits := middleware.NewRateLimitMiddleware(actor, anonymous)
	limits.SetFailOpen(rc.FailOpen)
	return limits
}

// handler builds the API router and its middleware chain
func (a *app) handler() http.Handler {
	router := mux.NewRouter()
	router.Use(observability.HTTPMetricsMiddleware(a.metrics, routeTemplate))
	guard.NewHandlers(a.guard).RegisterRoutes(router)

	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(a.log),
		httputil.RecoveryMiddleware(a.log),
		httputil.MaxBytesMiddleware(maxRequestBody),
		httputil.ContentTypeMiddleware,
		middleware.NewSessionMiddleware(nil, true).Handler,
	}
	if a.limits != nil {
		chain = append(chain, a.limits.Handler)
	}

	return otelhttp.NewHandler(httputil.Chain(chain...)(router), tracingOperationName)
}

// healthHandler serves probes and metrics on the health port
func (a *app) healthHandler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", a.health.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", a.health.Readiness).Methods(http.MethodGet)
	if a.cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.MetricsHandler(a.registry)).Methods(http.MethodGet)
	}
	return router
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

func (a *app) primary() *sql.DB {
	if a.conns == nil {
		return nil
	}
	return a.conns.Primary()
}

func (a *app) watchReplicas(ctx context.Context) {
	ticker := time.NewTicker(replicaCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := a.conns.RemoveUnhealthyReplicas(ctx); removed > 0 {
				a.log.Warnf("Removed %d unhealthy read replicas", removed)
			}
		}
	}
}

// close releases resources in reverse order of acquisition
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.resolver != nil {
		a.resolver.Wait()
	}
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.conns != nil {
		errs = append(errs, a.conns.Close())
	}
	if a.tracing != nil {
		errs = append(errs, observability.ShutdownTracing(ctx, a.tracing, a.obsLogger))
	}
	return errors.Join(errs...)
}
