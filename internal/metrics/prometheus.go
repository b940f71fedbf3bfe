package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the sync client
type Metrics struct {
	// Cache metrics
	CacheHitsTotal          prometheus.Counter
	CacheMissesTotal        prometheus.Counter
	CacheInvalidationsTotal prometheus.Counter
	CacheEntriesTotal       prometheus.Gauge

	// Single-flight metrics
	FlightLoadsTotal  prometheus.Counter
	FlightSharedTotal prometheus.Counter

	// Retry metrics
	RetryAttemptsTotal    prometheus.Counter
	RetryExhaustionsTotal prometheus.Counter

	// Batch metrics
	BatchCommitsTotal   prometheus.Counter
	BatchFallbacksTotal prometheus.Counter
	BatchSizeOps        prometheus.Histogram

	// Remote metrics
	RemoteRequestsTotal   *prometheus.CounterVec
	RemoteFailuresTotal   *prometheus.CounterVec
	RemoteRequestDuration prometheus.Histogram

	// Fallback metrics
	FallbackReadsServedTotal prometheus.Counter
	FallbackWritesTotal      prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses, expirations included",
		}),
		CacheInvalidationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of entries dropped by explicit invalidation",
		}),
		CacheEntriesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "daybook",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of cache entries",
		}),

		FlightLoadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "flight",
			Name:      "loads_total",
			Help:      "Total number of load calls through the single-flight loader",
		}),
		FlightSharedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "flight",
			Name:      "shared_total",
			Help:      "Load calls that attached to an already in-flight fetch",
		}),

		RetryAttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total number of remote operation attempts",
		}),
		RetryExhaustionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "retry",
			Name:      "exhaustions_total",
			Help:      "Operations that failed every attempt",
		}),

		BatchCommitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "batch",
			Name:      "commits_total",
			Help:      "Total number of atomic batch commits attempted",
		}),
		BatchFallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "batch",
			Name:      "fallbacks_total",
			Help:      "Batches replayed as individual commits after a rejected atomic commit",
		}),
		BatchSizeOps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "daybook",
			Subsystem: "batch",
			Name:      "size_ops",
			Help:      "Histogram of operations per committed batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),

		RemoteRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Total number of remote store requests",
		}, []string{"operation"}),
		RemoteFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "remote",
			Name:      "failures_total",
			Help:      "Total number of failed remote store requests",
		}, []string{"operation"}),
		RemoteRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "daybook",
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Histogram of remote request durations",
			Buckets:   prometheus.DefBuckets,
		}),

		FallbackReadsServedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "fallback",
			Name:      "reads_served_total",
			Help:      "Reads answered from the fallback store after remote failure",
		}),
		FallbackWritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "fallback",
			Name:      "writes_total",
			Help:      "Total number of fallback store writes",
		}),
	}
}
