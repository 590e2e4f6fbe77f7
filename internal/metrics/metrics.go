// Package metrics exposes Prometheus collectors for the HTTP layer, the
// submission pipeline and outbound calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	submissionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_outcomes_total",
			Help: "Submission attempts by outcome",
		},
		[]string{"outcome"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "submission_stage_duration_seconds",
			Help:    "Duration of each submission stage",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"stage", "result"},
	)

	externalCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_calls_total",
			Help: "Calls to external collaborators",
		},
		[]string{"service", "status"},
	)

	geocodeCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocode_cache_total",
			Help: "Reverse geocode cache lookups",
		},
		[]string{"cache_hit"},
	)
)

// Middleware records request counts and durations keyed by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordOutcome(outcome string) {
	submissionOutcomes.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, ok bool, d time.Duration) {
	stageDuration.WithLabelValues(stage, result(ok)).Observe(d.Seconds())
}

func RecordExternalCall(service string, ok bool) {
	externalCalls.WithLabelValues(service, result(ok)).Inc()
}

func RecordGeocodeCache(hit bool) {
	geocodeCache.WithLabelValues(strconv.FormatBool(hit)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
