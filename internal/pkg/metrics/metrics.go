package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan pipeline metrics.
var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vintscout",
		Name:      "scans_total",
		Help:      "Completed alert scans by outcome (success, failed).",
	}, []string{"status"})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vintscout",
		Name:      "scan_duration_seconds",
		Help:      "End-to-end duration of a single alert scan.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	NewItemsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vintscout",
		Name:      "new_items_total",
		Help:      "Listings discovered for the first time across all alerts.",
	})

	ScanLockContention = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vintscout",
		Name:      "scan_lock_contention_total",
		Help:      "Scans skipped or delayed because the alert was already being scanned.",
	})
)

// Upstream client metrics.
var (
	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vintscout",
		Name:      "upstream_requests_total",
		Help:      "Requests issued against the marketplace API by final status.",
	}, []string{"status"})

	UpstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vintscout",
		Name:      "upstream_errors_total",
		Help:      "Terminal upstream failures by error kind.",
	}, []string{"kind"})

	UpstreamRetryAfter = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vintscout",
		Name:      "upstream_retry_after_seconds",
		Help:      "Retry-After delays imposed by the upstream rate limiter.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})
)

// Dispatch metrics.
var (
	SchedulerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vintscout",
		Name:      "scheduler_queue_depth",
		Help:      "Scan jobs waiting in the worker pool queue.",
	})

	AlertsDue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vintscout",
		Name:      "alerts_due",
		Help:      "Alerts found due on the last scheduler tick.",
	})

	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vintscout",
		Name:      "ratelimit_wait_seconds",
		Help:      "Time spent waiting for an outbound request token.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	RateLimitTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vintscout",
		Name:      "ratelimit_timeout_total",
		Help:      "Token waits abandoned due to context cancellation.",
	})
)
