package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	bodySizeBuckets     = []float64{100, 1024, 10240, 102400, 1048576}
	resultCountBuckets  = []float64{0, 1, 2, 5, 10, 25, 50, 100}
)

// Metrics holds all Prometheus metric instruments for the engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Engine metrics
	WorkflowResolutionsTotal *prometheus.CounterVec
	ApprovalDecisionsTotal   *prometheus.CounterVec
	PendingFetchResults      prometheus.Histogram

	// Cache metrics
	ConfirmerCacheHitsTotal   prometheus.Counter
	ConfirmerCacheMissesTotal prometheus.Counter
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenko_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenko_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenko_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Engine
		WorkflowResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenko_workflow_resolutions_total",
			Help: "Total number of workflow state resolutions by resulting state.",
		}, []string{"state"}),
		ApprovalDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenko_approval_decisions_total",
			Help: "Total number of can-approve decisions.",
		}, []string{"decision"}),
		PendingFetchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tenko_pending_fetch_results",
			Help:    "Number of pending submissions returned per fetch.",
			Buckets: resultCountBuckets,
		}),

		// Cache
		ConfirmerCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenko_confirmer_cache_hits_total",
			Help: "Total eligible-confirmer cache hits.",
		}),
		ConfirmerCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenko_confirmer_cache_misses_total",
			Help: "Total eligible-confirmer cache misses.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSizeBytes,
		// Engine
		m.WorkflowResolutionsTotal,
		m.ApprovalDecisionsTotal,
		m.PendingFetchResults,
		// Cache
		m.ConfirmerCacheHitsTotal,
		m.ConfirmerCacheMissesTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordWorkflowResolution records one workflow state resolution.
func (m *Metrics) RecordWorkflowResolution(state string) {
	m.WorkflowResolutionsTotal.WithLabelValues(state).Inc()
}

// RecordApprovalDecision records one can-approve decision.
func (m *Metrics) RecordApprovalDecision(granted bool) {
	decision := "denied"
	if granted {
		decision = "granted"
	}
	m.ApprovalDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordPendingFetch records the size of a pending-submissions result.
func (m *Metrics) RecordPendingFetch(count int) {
	m.PendingFetchResults.Observe(float64(count))
}

// RecordConfirmerCacheHit records an eligible-confirmer cache hit.
func (m *Metrics) RecordConfirmerCacheHit() {
	m.ConfirmerCacheHitsTotal.Inc()
}

// RecordConfirmerCacheMiss records an eligible-confirmer cache miss.
func (m *Metrics) RecordConfirmerCacheMiss() {
	m.ConfirmerCacheMissesTotal.Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, duration, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
