package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	lockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Accounts locked after repeated failures.",
	})

	tokenReuseTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_token_reuse_total",
		Help: "Refresh token reuse detections.",
	})
)

// Init registers the collectors in the default registry.
func Init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, loginsTotal, lockoutsTotal, tokenReuseTotal)
}

// Handler exposes the scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Login outcomes reported to RecordLogin.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeLocked     = "locked"
	OutcomeMFAPending = "mfa_pending"
	OutcomeMFAFailure = "mfa_failure"
	OutcomeOAuthLogin = "oauth"
)

// RecordLogin counts one login attempt.
func RecordLogin(outcome string) {
	loginsTotal.WithLabelValues(outcome).Inc()
}

// RecordLockout counts one lockout activation.
func RecordLockout() {
	lockoutsTotal.Inc()
}

// RecordTokenReuse counts one refresh token reuse detection.
func RecordTokenReuse() {
	tokenReuseTotal.Inc()
}

// Instrument measures request counts and latency per route. The chi route
// pattern is used instead of the raw path to keep the label cardinality down.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		status := strconv.Itoa(wrapped.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}
