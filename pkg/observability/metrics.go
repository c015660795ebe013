package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	StorageErrorsTotal       *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// RBAC metrics
	PermissionChecksTotal *prometheus.CounterVec
	RoleAssignmentsTotal  *prometheus.CounterVec
	SweepRunsTotal        *prometheus.CounterVec
	SweepDeactivatedTotal prometheus.Counter
	SweepLastSuccess      prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qa_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qa_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation", "backend"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_storage_errors_total",
				Help: "Total number of storage errors by code",
			},
			[]string{"operation", "backend", "code"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),

		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_permission_checks_total",
				Help: "Total number of permission checks by result",
			},
			[]string{"result"},
		),
		RoleAssignmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_role_assignments_total",
				Help: "Total number of role assignment operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		SweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qa_expiry_sweep_runs_total",
				Help: "Total number of expiry sweep runs",
			},
			[]string{"status"},
		),
		SweepDeactivatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "qa_expiry_sweep_deactivated_total",
				Help: "Total number of assignments deactivated by the expiry sweep",
			},
		),
		SweepLastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "qa_expiry_sweep_last_success_timestamp_seconds",
				Help: "Unix time of the last successful expiry sweep",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.StorageErrorsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.PermissionChecksTotal,
		m.RoleAssignmentsTotal,
		m.SweepRunsTotal,
		m.SweepDeactivatedTotal,
		m.SweepLastSuccess,
	)

	return m
}

// ObserveStorage records one storage operation.
func (m *Metrics) ObserveStorage(operation, backend string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.StorageErrorsTotal.WithLabelValues(operation, backend, apperrors.FromError(err).Code).Inc()
	}
	m.StorageOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	m.StorageOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

func (m *Metrics) ObserveCache(name string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(name).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(name).Inc()
}

// ObservePermissionCheck records a check result: granted, denied or error.
func (m *Metrics) ObservePermissionCheck(result string) {
	m.PermissionChecksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveAssignment(operation, outcome string) {
	m.RoleAssignmentsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveSweep(deactivated int64, err error) {
	if err != nil {
		m.SweepRunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.SweepRunsTotal.WithLabelValues("success").Inc()
	m.SweepDeactivatedTotal.Add(float64(deactivated))
	m.SweepLastSuccess.SetToCurrentTime()
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

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the matched route template, not the raw path.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
