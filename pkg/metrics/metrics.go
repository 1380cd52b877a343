package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ScrapesTotal    *prometheus.CounterVec
	ScrapeDuration  prometheus.Histogram
	RateLimitHits   prometheus.Counter
	AdaptiveDelay   prometheus.Gauge
	URLsPending     prometheus.Gauge
	CaptchaSolves   *prometheus.CounterVec
	PagesWalked     prometheus.Counter
	ProfileURLsSeen prometheus.Gauge
)

func Init() {
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests to the status endpoint.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests to the status endpoint.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ScrapesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapes_total",
			Help: "Total number of profile scrape attempts.",
		},
		[]string{"status", "error_type"}, // status: success, failure, deferred
	)

	ScrapeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scrape_duration_seconds",
			Help:    "Duration of full per-profile pipelines.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_hits_total",
			Help: "Total number of rate-limit wall detections.",
		},
	)

	AdaptiveDelay = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adaptive_delay_seconds",
			Help: "Current shared inter-request delay.",
		},
	)

	URLsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "urls_pending",
			Help: "Profile URLs still pending in the current run.",
		},
	)

	CaptchaSolves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captcha_solves_total",
			Help: "Total number of CAPTCHA solve attempts.",
		},
		[]string{"status"}, // solved, failed, timeout
	)

	PagesWalked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_pages_walked_total",
			Help: "Search result pages processed by the finder.",
		},
	)

	ProfileURLsSeen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "profile_urls_collected",
			Help: "Unique profile URLs collected by the finder.",
		},
	)
}
