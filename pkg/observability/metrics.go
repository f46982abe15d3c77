package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Decision metrics
	DecisionsTotal     *prometheus.CounterVec
	ActionDenialsTotal *prometheus.CounterVec

	// Resolver metrics
	ResolverFetchTotal         *prometheus.CounterVec
	ResolverFetchDuration      prometheus.Histogram
	ResolverCacheHitsTotal     prometheus.Counter
	ResolverCacheMissesTotal   prometheus.Counter
	ResolverInvalidationsTotal *prometheus.CounterVec
	DroppedPermissionsTotal    prometheus.Counter

	// Permission store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	StoreCacheTotal        *prometheus.CounterVec

	// Audit metrics
	AuditEventsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_decisions_total",
				Help: "Authorization decisions by surface and outcome",
			},
			[]string{"surface", "outcome"},
		),
		ActionDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_action_denials_total",
				Help: "Denied target actions by authorizer reason",
			},
			[]string{"reason"},
		),

		ResolverFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_resolver_fetch_total",
				Help: "Dynamic permission fetches by result",
			},
			[]string{"status"},
		),
		ResolverFetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenantguard_resolver_fetch_duration_seconds",
				Help:    "Dynamic permission fetch duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		ResolverCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantguard_resolver_cache_hits_total",
				Help: "Resolver snapshot cache hits",
			},
		),
		ResolverCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantguard_resolver_cache_misses_total",
				Help: "Resolver snapshot cache misses",
			},
		),
		ResolverInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_resolver_invalidations_total",
				Help: "Resolver cache invalidations by scope",
			},
			[]string{"scope"},
		),
		DroppedPermissionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantguard_dropped_permissions_total",
				Help: "Dynamic permission strings dropped because they are not in the catalog",
			},
		),

		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_store_operations_total",
				Help: "Permission store operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantguard_store_operation_duration_seconds",
				Help:    "Permission store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),
		StoreCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_store_cache_total",
				Help: "Redis permission cache lookups by result",
			},
			[]string{"result"},
		),

		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantguard_audit_events_total",
				Help: "Audit events emitted by type",
			},
			[]string{"event_type"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.ActionDenialsTotal,
		m.ResolverFetchTotal,
		m.ResolverFetchDuration,
		m.ResolverCacheHitsTotal,
		m.ResolverCacheMissesTotal,
		m.ResolverInvalidationsTotal,
		m.DroppedPermissionsTotal,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.StoreCacheTotal,
		m.AuditEventsTotal,
	)

	return m
}

// ObserveStoreOperation records one permission store call
func (m *Metrics) ObserveStoreOperation(operation, backend string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation, backend).Observe(time.Since(start).Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RouteLabel names the request path for metric labels. Routers that know the
// matched template should supply one so that IDs do not explode cardinality.
type RouteLabel func(r *http.Request) string

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics, route RouteLabel) func(http.Handler) http.Handler {
	if route == nil {
		route = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := route(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
