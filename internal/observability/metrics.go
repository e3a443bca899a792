package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Login attempts by outcome (success, invalid, locked, error).",
	}, []string{"outcome"})
	Lockouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockouts_total",
		Help: "Failed attempts that put a browser into a lockout window.",
	})
	TokenVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "token_verifications_total",
		Help: "Token verifications by token kind and result.",
	}, []string{"kind", "result"})
	CSRFRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csrf_rejections_total",
		Help: "State-mutating requests rejected for a missing or mismatched CSRF token.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "status"})
	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func observeRequest(method string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}
