// Package metrics exposes Prometheus collectors for the directory crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the detail and export collectors.
const (
	OutcomeSuccess = "success"
	OutcomeMissing = "missing"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

var (
	entriesCollectedTotal *prometheus.CounterVec
	resultPagesTotal      *prometheus.CounterVec
	detailFetchesTotal    *prometheus.CounterVec
	detailFieldsTotal     *prometheus.CounterVec
	detailFetchSeconds    prometheus.Histogram
	rateLimitDelaySeconds *prometheus.HistogramVec
	activeSessions        prometheus.Gauge
	exportsTotal          *prometheus.CounterVec
	httpRequestsTotal     *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		entriesCollectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_entries_collected_total",
				Help: "Search result entries collected, labeled by site.",
			},
			[]string{"site"},
		)

		resultPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_result_pages_total",
				Help: "Search result pages visited, labeled by site.",
			},
			[]string{"site"},
		)

		detailFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_detail_fetches_total",
				Help: "Detail page fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		detailFieldsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_detail_fields_total",
				Help: "Detail field extractions, labeled by field and outcome.",
			},
			[]string{"field", "outcome"},
		)

		detailFetchSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "directory_detail_fetch_duration_seconds",
				Help:    "Histogram of detail fetch latencies including browser start-up.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "directory_rate_limit_delay_seconds",
				Help:    "Time detail tasks spent waiting for a rate limit slot, labeled by site.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"site"},
		)

		activeSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "directory_browser_sessions_active",
				Help: "Number of browser sessions currently open.",
			},
		)

		exportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_exports_total",
				Help: "Result exports, labeled by format and outcome.",
			},
			[]string{"format", "outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_http_requests_total",
				Help: "Requests served by the metrics listener, labeled by route and code.",
			},
			[]string{"route", "code"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
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
	Init()
	return promhttp.Handler()
}

// ObserveResultPage records one visited result page and the entries found on it.
func ObserveResultPage(site string, entries int) {
	Init()
	sanitized := SanitizeSite(site)
	resultPagesTotal.WithLabelValues(sanitized).Inc()
	if entries > 0 {
		entriesCollectedTotal.WithLabelValues(sanitized).Add(float64(entries))
	}
}

// ObserveDetailFetch records a finished detail task.
func ObserveDetailFetch(outcome string, duration time.Duration) {
	Init()
	detailFetchesTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		detailFetchSeconds.Observe(duration.Seconds())
	}
}

// ObserveRateLimitDelay records the time spent waiting on the detail rate limiter.
func ObserveRateLimitDelay(site string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(site)).Observe(delay.Seconds())
}

// ObserveDetailField records whether a single detail field was extracted.
func ObserveDetailField(field string, found bool) {
	Init()
	outcome := OutcomeMissing
	if found {
		outcome = OutcomeSuccess
	}
	detailFieldsTotal.WithLabelValues(field, outcome).Inc()
}

// ObserveExport records an export attempt.
func ObserveExport(format, outcome string) {
	Init()
	exportsTotal.WithLabelValues(format, outcome).Inc()
}

// ObserveHTTPRequest records a request served by the metrics listener.
func ObserveHTTPRequest(route, code string) {
	Init()
	httpRequestsTotal.WithLabelValues(route, code).Inc()
}

// SessionOpened increments the active browser sessions gauge.
func SessionOpened() {
	Init()
	activeSessions.Inc()
}

// SessionClosed decrements the active browser sessions gauge.
func SessionClosed() {
	Init()
	activeSessions.Dec()
}
