package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
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

	// Access control
	accessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Total number of route access decisions",
		},
		[]string{"decision"},
	)

	// Inventory
	inventoryAlertsSurfaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_alerts_surfaced_total",
			Help: "Total number of expiry alert notifications surfaced",
		},
		[]string{"level"},
	)

	inventorySnapshotFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_snapshot_failures_total",
			Help: "Total number of failed inventory snapshot fetches",
		},
	)

	inventorySummaryMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_summary_mismatches_total",
			Help: "Total number of server alert summaries that disagreed with local classification",
		},
	)

	inventoryAlertItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inventory_alert_items",
			Help: "Items per expiry alert level in the latest snapshot",
		},
		[]string{"level"},
	)

	stockAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_stock_adjustments_total",
			Help: "Total number of stock adjustments",
		},
		[]string{"direction"},
	)

	// Notifications
	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of owner notifications by channel and outcome",
		},
		[]string{"channel", "status"},
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

	// Outbound call metrics
	outboundRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_retries_total",
			Help: "Retried outbound calls by operation",
		},
		[]string{"operation"},
	)

	breakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_rejections_total",
			Help: "Calls refused by an open circuit breaker",
		},
		[]string{"operation"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state by operation (0 closed, 1 half-open, 2 open)",
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
		path := normalizePath(r)

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

// normalizePath prefers the matched chi route pattern so ids do not become labels.
func normalizePath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return strings.ReplaceAll(pattern, "/*/", "/")
		}
	}
	if len(r.URL.Path) > 100 {
		return "/api/..."
	}
	return r.URL.Path
}

// --- Business metric helpers ---

// RecordAccessDecision records a gate decision (allow, pending, login, role_home)
func RecordAccessDecision(decision string) {
	accessDecisions.WithLabelValues(decision).Inc()
}

// RecordAlertSurfaced records one surfaced expiry notification
func RecordAlertSurfaced(level string) {
	inventoryAlertsSurfaced.WithLabelValues(level).Inc()
}

// RecordSnapshotFailure records a failed inventory fetch
func RecordSnapshotFailure() {
	inventorySnapshotFailures.Inc()
}

// RecordSummaryMismatch records a server/local alert summary disagreement
func RecordSummaryMismatch() {
	inventorySummaryMismatches.Inc()
}

// SetAlertItems publishes bucket sizes of the latest snapshot
func SetAlertItems(level string, count int) {
	inventoryAlertItems.WithLabelValues(level).Set(float64(count))
}

// RecordStockAdjustment records a stock change
func RecordStockAdjustment(changeQty int) {
	direction := "in"
	if changeQty < 0 {
		direction = "out"
	}
	stockAdjustments.WithLabelValues(direction).Inc()
}

// RecordNotification records an owner notification attempt
func RecordNotification(channel, status string) {
	notificationsSent.WithLabelValues(channel, status).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRetry counts one retried outbound call
func RecordRetry(operation string) {
	outboundRetries.WithLabelValues(operation).Inc()
}

// RecordBreakerRejection counts a call refused by an open breaker
func RecordBreakerRejection(operation string) {
	breakerRejections.WithLabelValues(operation).Inc()
}

// SetBreakerState sets the current breaker state of an operation
func SetBreakerState(operation string, state int) {
	breakerState.WithLabelValues(operation).Set(float64(state))
}
