// Package metrics provides Prometheus instrumentation for the generation
// core: cache efficiency, inflight coordination, backend invocation, audit
// delivery, and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Generation cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_cache_hits_total",
			Help: "Total number of generation cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_cache_misses_total",
			Help: "Total number of generation cache misses",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_cache_evictions_total",
			Help: "Total number of generation cache evictions (expiry and invalidation)",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inkwell_cache_entries",
			Help: "Current number of live generation cache entries",
		},
	)

	CacheStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_cache_store_errors_total",
			Help: "Total number of durable cache store errors absorbed by the fail-open policy",
		},
		[]string{"operation"},
	)

	// Inflight coordinator metrics
	InflightTickets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inkwell_inflight_tickets",
			Help: "Current number of inflight generation tickets",
		},
	)

	InflightWaiters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inkwell_inflight_waiters",
			Help: "Current number of callers awaiting an inflight generation",
		},
	)

	InflightCollapsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_inflight_collapsed_total",
			Help: "Total number of requests collapsed into an existing inflight generation",
		},
	)

	// Model invoker metrics
	InvokerAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_invoker_attempts_total",
			Help: "Total number of generation backend attempts",
		},
		[]string{"kind", "outcome"}, // outcome: success, transient, rejected
	)

	InvokerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inkwell_invoker_duration_seconds",
			Help:    "Duration of generation backend calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inkwell_backend_breaker_state",
			Help: "Generation backend circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Audit relay metrics
	AuditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inkwell_audit_queue_depth",
			Help: "Current number of audit records awaiting delivery",
		},
	)

	AuditDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_audit_delivered_total",
			Help: "Total number of audit records delivered to the shared service",
		},
	)

	AuditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_audit_dropped_total",
			Help: "Total number of audit records dropped because the buffer was full",
		},
	)

	AuditSpilled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_audit_spilled_total",
			Help: "Total number of audit records spilled to local storage after delivery retries were exhausted",
		},
	)

	// Authorization gate metrics
	AuthCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inkwell_auth_cache_hits_total",
			Help: "Total number of credential validations served from the local cache",
		},
	)

	AuthRemoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_auth_remote_calls_total",
			Help: "Total number of credential validations against the shared identity service",
		},
		[]string{"outcome"}, // outcome: success, invalid, unavailable
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inkwell_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)
)
