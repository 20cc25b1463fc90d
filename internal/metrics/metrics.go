// Package metrics exposes Prometheus collectors for the gateway.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Admission outcomes.
const (
	AdmissionGranted      = "granted"
	AdmissionNotReady     = "not_ready"
	AdmissionLimitReached = "limit_reached"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)

	admissionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_admission_total",
			Help: "Admission decisions, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	inFlightJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_inflight_jobs",
			Help: "Number of admitted jobs currently holding a slot.",
		},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_jobs_total",
			Help: "Dispatched jobs, labeled by mode and response code.",
		},
		[]string{"mode", "code"},
	)

	jobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_job_duration_seconds",
			Help:    "Handler execution time, labeled by mode.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"mode"},
	)

	browserReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_browser_ready",
			Help: "1 when the backing browser is launched and accepting tabs.",
		},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_rate_limit_delays_seconds",
			Help:    "Histogram of per-host rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveAdmission counts an admission decision.
func ObserveAdmission(outcome string) {
	admissionTotal.WithLabelValues(outcome).Inc()
}

// IncInFlight increments the in-flight gauge.
func IncInFlight() {
	inFlightJobs.Inc()
}

// DecInFlight decrements the in-flight gauge.
func DecInFlight() {
	inFlightJobs.Dec()
}

// ObserveJob records a dispatched job's outcome and duration.
func ObserveJob(mode string, code int, duration time.Duration) {
	jobsTotal.WithLabelValues(mode, strconv.Itoa(code)).Inc()
	jobDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// SetBrowserReady flips the browser readiness gauge.
func SetBrowserReady(ready bool) {
	if ready {
		browserReady.Set(1)
		return
	}
	browserReady.Set(0)
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
