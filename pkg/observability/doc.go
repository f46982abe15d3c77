// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown for the
// authorization service.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("actor_id", id).WithError(err).Warn("dynamic permission fetch failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.DecisionsTotal.WithLabelValues("permission", "deny").Inc()
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// # OpenTelemetry
//
//	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "authzd",
//	}, logger)
//	defer observability.ShutdownTracing(ctx, tp, logger)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/resolver: fetch spans and cache metrics
package observability
