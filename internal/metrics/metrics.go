// Package metrics exposes Prometheus collectors for the release tracker.
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

var (
	refreshRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_refresh_runs_total",
			Help: "Total number of refresh cycles, labeled by overall status.",
		},
		[]string{"status"},
	)

	refreshDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracker_refresh_duration_seconds",
			Help:    "Histogram of refresh cycle durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	refreshInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_refresh_in_flight",
			Help: "Number of refresh cycles currently running.",
		},
	)

	refreshPhaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_refresh_phase_transitions_total",
			Help: "Total number of refresh phase entries, labeled by phase.",
		},
		[]string{"phase"},
	)

	sourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_source_fetches_total",
			Help: "Total number of source fetches, labeled by source and status.",
		},
		[]string{"source", "status"},
	)

	sourceReleases = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracker_source_releases",
			Help: "Number of candidate releases produced by the last fetch of each source.",
		},
		[]string{"source"},
	)

	reconcileOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_reconcile_outcomes_total",
			Help: "Total number of reconciled candidates, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	webhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_webhook_deliveries_total",
			Help: "Total number of webhook deliveries, labeled by event and result.",
		},
		[]string{"event", "result"},
	)

	snapshotWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_snapshot_writes_total",
			Help: "Total number of upstream snapshot writes, labeled by result.",
		},
		[]string{"result"},
	)

	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_upstream_requests_total",
			Help: "Total number of upstream HTTP requests, labeled by host and code.",
		},
		[]string{"host", "code"},
	)

	upstreamRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_upstream_request_duration_seconds",
			Help:    "Histogram of upstream HTTP request latencies, labeled by host.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		},
		[]string{"host"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_rate_limit_delay_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)
)

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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRefresh records a finished refresh cycle.
func ObserveRefresh(status string, duration time.Duration) {
	refreshRunsTotal.WithLabelValues(status).Inc()
	refreshDurationSeconds.Observe(duration.Seconds())
}

// IncRefreshInFlight increments the in-flight refresh gauge.
func IncRefreshInFlight() {
	refreshInFlight.Inc()
}

// DecRefreshInFlight decrements the in-flight refresh gauge.
func DecRefreshInFlight() {
	refreshInFlight.Dec()
}

// ObservePhase counts entry into a refresh phase.
func ObservePhase(phase string) {
	refreshPhaseTotal.WithLabelValues(phase).Inc()
}

// ObserveSourceFetch records the status and size of one source batch.
func ObserveSourceFetch(source, status string, releases int) {
	sourceFetchesTotal.WithLabelValues(source, status).Inc()
	sourceReleases.WithLabelValues(source).Set(float64(releases))
}

// ObserveReconcile counts one reconcile outcome.
func ObserveReconcile(source, outcome string) {
	reconcileOutcomesTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveWebhookDelivery counts one webhook delivery attempt.
func ObserveWebhookDelivery(event, result string) {
	webhookDeliveriesTotal.WithLabelValues(event, result).Inc()
}

// ObserveSnapshotWrite counts one snapshot persistence attempt.
func ObserveSnapshotWrite(result string) {
	snapshotWritesTotal.WithLabelValues(result).Inc()
}

// ObserveUpstreamRequest records one upstream HTTP exchange. A code of 0
// means no response was received.
func ObserveUpstreamRequest(rawURL string, code int, duration time.Duration) {
	host := SanitizeSite(rawURL)
	upstreamRequestsTotal.WithLabelValues(host, strconv.Itoa(code)).Inc()
	upstreamRequestDurationSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}
