// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("role_id", id).Info("role assigned")
//
// Request handlers pick up the request-scoped logger with FromContext.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	backend = datasource.Instrument(backend, metrics)
//	store := rbac.NewUserRoleStore(..., rbac.WithMetrics(metrics))
//
// Metrics satisfies both datasource.Recorder and rbac.Recorder.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version).
//		Require("storage", backend).
//		Optional("cache", cache)
//
// A failing required dependency reports unhealthy (503); a failing optional
// one reports degraded (200).
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer providers.Shutdown(ctx)
package observability
