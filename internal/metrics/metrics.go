// Package metrics exposes the runtime's Prometheus instrumentation.
// All collectors are registered here; of them, only EndpointScore is
// currently updated (by internal/throttle), so the others stay at zero.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqsprint_requests_total",
			Help: "Requests processed by the pipeline, by outcome",
		},
		[]string{"outcome"}, // success, error, aborted
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reqsprint_request_duration_seconds",
			Help:    "End-to-end pipeline latency per request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqsprint_cache_hits_total",
			Help: "RequestCache lookups, by hit or miss",
		},
		[]string{"result"}, // hit, miss
	)

	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reqsprint_cache_size",
			Help: "Current number of entries held by the request cache",
		},
	)

	SerialQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reqsprint_serial_queue_depth",
			Help: "Pending tasks waiting on a serial queue, by key",
		},
		[]string{"key"},
	)

	SerialQueueCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reqsprint_serial_queue_count",
			Help: "Number of live serial queues managed by the SerialManager",
		},
	)

	ExecutorConcurrencyUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reqsprint_executor_max_concurrency_used",
			Help: "High-water mark of concurrently running tasks in the last batch",
		},
		[]string{"batch"},
	)

	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqsprint_retry_attempts_total",
			Help: "Retry attempts made by the retry interceptor, by terminal outcome",
		},
		[]string{"outcome"}, // success, exhausted, circuit_open
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reqsprint_rate_limit_rejections_total",
			Help: "Requests rejected by the rate-limit interceptor, by key",
		},
		[]string{"key"},
	)

	EndpointScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reqsprint_endpoint_score",
			Help: "Computed health score for a throttled endpoint",
		},
		[]string{"url"},
	)
)
