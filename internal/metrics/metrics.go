// Package metrics exposes Prometheus collectors for the crawl service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerJobsTotal           *prometheus.CounterVec
	crawlerJobDurationSeconds  *prometheus.HistogramVec
	crawlerArticlesTotal       *prometheus.CounterVec
	crawlerURLsDiscoveredTotal *prometheus.CounterVec
	crawlerFetchBytesTotal     *prometheus.CounterVec
	crawlerRetriesTotal        prometheus.Counter
	crawlerActiveWorkers       prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_jobs_total",
				Help: "Total number of jobs processed, labeled by outcome and crawl type.",
			},
			[]string{"status", "crawl_type"},
		)

		crawlerJobDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_job_duration_seconds",
				Help:    "Histogram of job execution durations, labeled by crawl type.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"crawl_type"},
		)

		crawlerArticlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_articles_total",
				Help: "Total number of articles persisted, labeled by dedup result.",
			},
			[]string{"result"},
		)

		crawlerURLsDiscoveredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_urls_discovered_total",
				Help: "Total number of candidate URLs discovered, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_retries_total",
				Help: "Total number of retry reschedules.",
			},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently processing a job.",
			},
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
	})
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob records one finished job with its outcome and duration.
func ObserveJob(status, crawlType string, duration time.Duration) {
	crawlerJobsTotal.WithLabelValues(status, crawlType).Inc()
	crawlerJobDurationSeconds.WithLabelValues(crawlType).Observe(duration.Seconds())
}

// ObserveArticle increments the article counter for the dedup result.
func ObserveArticle(duplicate bool) {
	result := "created"
	if duplicate {
		result = "duplicate"
	}
	crawlerArticlesTotal.WithLabelValues(result).Inc()
}

// ObserveDiscovery records candidate URLs discovered from a seed.
func ObserveDiscovery(seedURL string, count int) {
	if count > 0 {
		crawlerURLsDiscoveredTotal.WithLabelValues(SanitizeSite(seedURL)).Add(float64(count))
	}
}

// ObserveFetch records bytes fetched for a site.
func ObserveFetch(site string, bytesFetched int) {
	if bytesFetched > 0 {
		crawlerFetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveRetry increments the retry counter.
func ObserveRetry() {
	crawlerRetriesTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlerActiveWorkers.Dec()
}
