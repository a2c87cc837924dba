package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cab_dispatch"

var (
	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "batch_runs_total", Help: "Batch matching passes by outcome"},
		[]string{"outcome"},
	)
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Wall time of one batch matching pass",
		Buckets:   prometheus.DefBuckets,
	})
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "assignments_created_total", Help: "Assignments created by source"},
		[]string{"source"},
	)
	DeferredRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deferred_requests_total",
		Help:      "Waiting requests left unmatched by a batch pass",
	})
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "assignment_transitions_total", Help: "Assignment status transitions by target status"},
		[]string{"status"},
	)

	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_decisions_total", Help: "Rate limiter admission decisions"},
		[]string{"decision"},
	)
	RateLimitTrackedKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rate_limit_tracked_keys",
		Help:      "Number of client keys currently holding a token bucket",
	})
	RateLimitDrainingEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_draining_evictions_total",
		Help:      "Client keys evicted at the key bound while their bucket was not yet full",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
