package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Access-control metrics
	RoleSwitchesTotal       *prometheus.CounterVec
	ImpersonationEvents     *prometheus.CounterVec
	ActiveImpersonations    prometheus.Gauge
	PermissionChecksTotal   *prometheus.CounterVec
	ExpiredSessionsSwept    prometheus.Counter
	AuditRecordsTotal       *prometheus.CounterVec
	AuditQueueDropsTotal    prometheus.Counter
	ClientContextsCached    prometheus.Gauge
	FeatureCatalogReloads   *prometheus.CounterVec
	PreferenceWriteFailures prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics. A fresh registry
// is created when registry is nil.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessor_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assessor_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessor_store_operations_total",
				Help: "Total number of session store operations",
			},
			[]string{"operation", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assessor_store_operation_duration_seconds",
				Help:    "Session store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RoleSwitchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessor_role_switches_total",
				Help: "Role switch attempts by audit action and outcome",
			},
			[]string{"action", "outcome"},
		),
		ImpersonationEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessor_impersonation_events_total",
				Help: "Impersonation start/end/refresh calls by outcome",
			},
			[]string{"event", "outcome"},
		),
		ActiveImpersonations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "assessor_impersonations_active",
				Help: "Impersonation sessions currently cached as active",
			},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessor_permission_checks_total",
				Help: "Permission checks by enforcement kind and result",
			},
			[]string{"enforcement", "result"},
		),
		ExpiredSessionsSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "assessor_expired_sessions_swept_total",
				Help: "Expired impersonation sessions closed by the janitor",
			},
		),
		AuditRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessor_audit_records_total",
				Help: "Audit record appends by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		AuditQueueDropsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "assessor_audit_queue_drops_total",
				Help: "Audit records dropped because the dispatch queue was full",
			},
		),
		ClientContextsCached: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "assessor_client_contexts_cached",
				Help: "Per-client role contexts held in memory",
			},
		),
		FeatureCatalogReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessor_feature_catalog_reloads_total",
				Help: "Feature catalog reloads by outcome",
			},
			[]string{"outcome"},
		),
		PreferenceWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "assessor_preference_write_failures_total",
				Help: "Failed writes of the persisted active-role preference",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.RoleSwitchesTotal,
		m.ImpersonationEvents,
		m.ActiveImpersonations,
		m.PermissionChecksTotal,
		m.ExpiredSessionsSwept,
		m.AuditRecordsTotal,
		m.AuditQueueDropsTotal,
		m.ClientContextsCached,
		m.FeatureCatalogReloads,
		m.PreferenceWriteFailures,
	)

	return m
}

// Registry returns the registry the metrics were registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStore records the outcome and latency of a store call
func (m *Metrics) ObserveStore(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Middleware records request counts and latency labelled by the mux route
// template so that path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := "unmatched"
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
