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
	evalDurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1}
	bodySizeBuckets     = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the approval engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Vote metrics
	VotesCastTotal           *prometheus.CounterVec
	EligibilityChecksTotal   *prometheus.CounterVec
	IdempotentReplaysTotal   prometheus.Counter

	// Workflow metrics
	WorkflowEvaluationsTotal  *prometheus.CounterVec
	WorkflowEvaluationSeconds prometheus.Histogram
	OCCConflictsTotal         prometheus.Counter

	// Rule metrics
	RuleValidationFailures *prometheus.CounterVec

	// Template metrics
	TemplateTransitionsTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quorum_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quorum_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quorum_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Votes
		VotesCastTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_votes_cast_total",
			Help: "Total number of votes cast.",
		}, []string{"vote_type", "resulting_status"}),
		EligibilityChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_eligibility_checks_total",
			Help: "Total number of voting eligibility checks.",
		}, []string{"result", "reason_code"}),
		IdempotentReplaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quorum_idempotent_replays_total",
			Help: "Total vote submissions answered from the idempotency store.",
		}),

		// Workflows
		WorkflowEvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_workflow_evaluations_total",
			Help: "Total workflow status evaluations by resulting status.",
		}, []string{"status"}),
		WorkflowEvaluationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quorum_workflow_evaluation_duration_seconds",
			Help:    "Workflow status evaluation duration in seconds.",
			Buckets: evalDurationBuckets,
		}),
		OCCConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quorum_occ_conflicts_total",
			Help: "Total optimistic concurrency conflicts on workflow updates.",
		}),

		// Rules
		RuleValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_rule_validation_failures_total",
			Help: "Total approval rule validation failures.",
		}, []string{"code"}),

		// Templates
		TemplateTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_template_transitions_total",
			Help: "Total workflow template lifecycle transitions.",
		}, []string{"to_status"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Votes
		m.VotesCastTotal,
		m.EligibilityChecksTotal,
		m.IdempotentReplaysTotal,
		// Workflows
		m.WorkflowEvaluationsTotal,
		m.WorkflowEvaluationSeconds,
		m.OCCConflictsTotal,
		// Rules
		m.RuleValidationFailures,
		// Templates
		m.TemplateTransitionsTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordVoteCast records a vote and the status it produced.
func (m *Metrics) RecordVoteCast(voteType, resultingStatus string) {
	m.VotesCastTotal.WithLabelValues(voteType, resultingStatus).Inc()
}

// RecordEligibilityCheck records an eligibility verdict. The reason code
// is empty for eligible verdicts.
func (m *Metrics) RecordEligibilityCheck(eligible bool, reasonCode string) {
	result := "eligible"
	if !eligible {
		result = "ineligible"
	}
	m.EligibilityChecksTotal.WithLabelValues(result, reasonCode).Inc()
}

// RecordIdempotentReplay records a vote submission served from the
// idempotency store.
func (m *Metrics) RecordIdempotentReplay() {
	m.IdempotentReplaysTotal.Inc()
}

// RecordWorkflowEvaluation records a status evaluation.
func (m *Metrics) RecordWorkflowEvaluation(status string, duration time.Duration) {
	m.WorkflowEvaluationsTotal.WithLabelValues(status).Inc()
	m.WorkflowEvaluationSeconds.Observe(duration.Seconds())
}

// RecordOCCConflict records an optimistic concurrency conflict.
func (m *Metrics) RecordOCCConflict() {
	m.OCCConflictsTotal.Inc()
}

// RecordRuleValidationFailure records a rule validation failure by code.
func (m *Metrics) RecordRuleValidationFailure(code string) {
	m.RuleValidationFailures.WithLabelValues(code).Inc()
}

// RecordTemplateTransition records a template lifecycle transition.
func (m *Metrics) RecordTemplateTransition(toStatus string) {
	m.TemplateTransitionsTotal.WithLabelValues(toStatus).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics
// using chi's route pattern (not the actual URL path) to avoid label
// cardinality explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
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
