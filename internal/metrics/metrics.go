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
			Name: "shopfront_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopfront_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	httpPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopfront_http_panics_total",
			Help: "Handler panics recovered, by request method",
		},
		[]string{"method"},
	)

	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopfront_logins_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"},
	)

	registrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shopfront_registrations_total",
			Help: "Total number of customer registrations",
		},
	)

	passwordResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopfront_password_resets_total",
			Help: "Password reset requests and completions",
		},
		[]string{"stage"},
	)

	emailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopfront_emails_sent_total",
			Help: "Customer emails by communication event code and delivery status",
		},
		[]string{"code", "status"},
	)
)

// RecordHTTPRequest records request count and latency. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordPanic counts a recovered handler panic
func RecordPanic(method string) {
	httpPanicsTotal.WithLabelValues(method).Inc()
}

// RecordLogin counts a login attempt; outcome is "success", "failed" or "locked"
func RecordLogin(outcome string) {
	loginsTotal.WithLabelValues(outcome).Inc()
}

// RecordRegistration increments the registration counter
func RecordRegistration() {
	registrationsTotal.Inc()
}

// RecordPasswordReset counts a reset; stage is "requested" or "completed"
func RecordPasswordReset(stage string) {
	passwordResetsTotal.WithLabelValues(stage).Inc()
}

// RecordEmail counts a dispatched email
func RecordEmail(code string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	emailsSentTotal.WithLabelValues(code, status).Inc()
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
