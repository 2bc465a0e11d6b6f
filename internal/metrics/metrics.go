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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_ticks_total",
			Help: "Campaign ticks by campaign type and result",
		},
		[]string{"campaign", "result"},
	)

	tickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_tick_duration_seconds",
			Help:    "Time to scan and process one campaign tick",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"campaign"},
	)

	stagesFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_stages_fired_total",
			Help: "Campaign stages dispatched and recorded, by stage index",
		},
		[]string{"campaign", "stage"},
	)

	advanceConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_advance_conflicts_total",
			Help: "Conditional advances lost to a concurrent process",
		},
		[]string{"campaign"},
	)

	deliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_delivery_failures_total",
			Help: "Failed stage dispatches by failure class (transient/permanent)",
		},
		[]string{"campaign", "class"},
	)

	subjectsEnrolled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_subjects_enrolled_total",
			Help: "Subjects enrolled into campaigns",
		},
		[]string{"campaign"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_rate_limit_rejections_total",
			Help: "Admin API requests rejected by the rate limiter",
		},
		[]string{"key"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTick records a completed (or aborted) campaign tick.
func RecordTick(campaignType, result string, duration time.Duration) {
	ticksTotal.WithLabelValues(campaignType, result).Inc()
	tickDuration.WithLabelValues(campaignType).Observe(duration.Seconds())
}

// RecordStageFired records a successfully fired stage.
func RecordStageFired(campaignType string, stageIndex int) {
	stagesFired.WithLabelValues(campaignType, strconv.Itoa(stageIndex)).Inc()
}

// RecordAdvanceConflict records an advance lost to a concurrent process.
func RecordAdvanceConflict(campaignType string) {
	advanceConflicts.WithLabelValues(campaignType).Inc()
}

// RecordDeliveryFailure records a failed dispatch by class.
func RecordDeliveryFailure(campaignType, class string) {
	deliveryFailures.WithLabelValues(campaignType, class).Inc()
}

// RecordSubjectEnrolled records a new enrollment.
func RecordSubjectEnrolled(campaignType string) {
	subjectsEnrolled.WithLabelValues(campaignType).Inc()
}

// RecordRateLimitRejection records an admin API rate limit rejection.
func RecordRateLimitRejection(key string) {
	rateLimitRejections.WithLabelValues(key).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
