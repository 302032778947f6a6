package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Auth metrics
	signInsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sign_ins_total",
			Help: "Total number of sign-in attempts",
		},
		[]string{"result"},
	)

	roleResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_resolutions_total",
			Help: "Total number of role resolutions by source",
		},
		[]string{"source", "role"},
	)

	authorizationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authorization_decisions_total",
			Help: "Total number of route-guard authorization decisions",
		},
		[]string{"requirement", "decision"},
	)

	scopedGrantUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scoped_grant_updates_total",
			Help: "Total number of scoped visibility grant replacements",
		},
	)

	roleChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_changes_total",
			Help: "Total number of admin role changes",
		},
		[]string{"new_role"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
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

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordSignIn records a sign-in attempt outcome ("success", "invalid", "error")
func RecordSignIn(result string) {
	signInsTotal.WithLabelValues(result).Inc()
}

// RecordRoleResolution records a resolved role and the source that produced it
// ("primary", "legacy", "default", "cache")
func RecordRoleResolution(source, role string) {
	roleResolutionsTotal.WithLabelValues(source, role).Inc()
}

// RecordAuthorizationDecision records a route-guard decision
func RecordAuthorizationDecision(requirement string, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	authorizationDecisions.WithLabelValues(requirement, decision).Inc()
}

// RecordScopedGrantUpdate records a grant-set replacement
func RecordScopedGrantUpdate() {
	scopedGrantUpdates.Inc()
}

// RecordRoleChange records an admin role change
func RecordRoleChange(newRole string) {
	roleChangesTotal.WithLabelValues(newRole).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
