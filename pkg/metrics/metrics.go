// Package metrics provides Prometheus metrics for the entity resolution
// toolkit.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ComparisonsTotal tracks record comparisons by classification
	ComparisonsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "havewemet",
			Subsystem: "matching",
			Name:      "comparisons_total",
			Help:      "Total number of record comparisons by classification",
		},
		[]string{"classification"},
	)

	// ComparisonDuration tracks how long a pairwise comparison takes
	ComparisonDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "havewemet",
			Subsystem: "matching",
			Name:      "comparison_duration_seconds",
			Help:      "Duration of pairwise record comparisons in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	// MergesTotal tracks merge executions by outcome
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "havewemet",
			Subsystem: "merging",
			Name:      "merges_total",
			Help:      "Total number of merge executions by outcome",
		},
		[]string{"status"},
	)

	// MergeDuration tracks merge execution duration in seconds
	MergeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "havewemet",
			Subsystem: "merging",
			Name:      "duration_seconds",
			Help:      "Duration of merge executions in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// MergeConflicts tracks conflicts detected per merge
	MergeConflicts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "havewemet",
			Subsystem: "merging",
			Name:      "conflicts",
			Help:      "Number of field conflicts detected per merge",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	// UnmergesTotal tracks unmerge executions by mode
	UnmergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "havewemet",
			Subsystem: "merging",
			Name:      "unmerges_total",
			Help:      "Total number of unmerge executions by mode",
		},
		[]string{"mode", "status"},
	)

	// CacheOperationsTotal tracks cache hits, misses, and evictions
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "havewemet",
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Total number of cache hits, misses, and evictions",
		},
		[]string{"result"},
	)

	// BreakerTransitionsTotal tracks circuit breaker state transitions
	BreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "havewemet",
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"service", "from", "to"},
	)

	// RetryAttemptsTotal tracks retry attempts by service
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "havewemet",
			Subsystem: "resilience",
			Name:      "retry_attempts_total",
			Help:      "Total number of retry attempts by service",
		},
		[]string{"service"},
	)

	// QueueDecisionsTotal tracks review queue decisions by action
	QueueDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "havewemet",
			Subsystem: "reviewqueue",
			Name:      "decisions_total",
			Help:      "Total number of review queue decisions by action",
		},
		[]string{"action"},
	)

	// QueueDepth tracks items currently waiting for review
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "havewemet",
			Subsystem: "reviewqueue",
			Name:      "depth",
			Help:      "Number of items currently waiting for review",
		},
	)

	// ServiceExecutionsTotal tracks external service executions by outcome
	ServiceExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "havewemet",
			Subsystem: "services",
			Name:      "executions_total",
			Help:      "Total number of external service executions by outcome",
		},
		[]string{"service", "outcome"},
	)

	// ServiceExecutionDuration tracks external service execution duration
	ServiceExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "havewemet",
			Subsystem: "services",
			Name:      "execution_duration_seconds",
			Help:      "Duration of external service executions in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service"},
	)
)

// RecordComparison records one pairwise comparison
func RecordComparison(classification string, durationSeconds float64) {
	ComparisonsTotal.WithLabelValues(classification).Inc()
	ComparisonDuration.Observe(durationSeconds)
}

// RecordMerge records one merge execution
func RecordMerge(status string, conflicts int, durationSeconds float64) {
	MergesTotal.WithLabelValues(status).Inc()
	MergeConflicts.Observe(float64(conflicts))
	MergeDuration.Observe(durationSeconds)
}

// RecordUnmerge records one unmerge execution
func RecordUnmerge(mode, status string) {
	UnmergesTotal.WithLabelValues(mode, status).Inc()
}

// RecordCacheHit records a cache hit
func RecordCacheHit() {
	CacheOperationsTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss() {
	CacheOperationsTotal.WithLabelValues("miss").Inc()
}

// RecordCacheEviction records a cache eviction by reason
func RecordCacheEviction(reason string) {
	CacheOperationsTotal.WithLabelValues("eviction_" + reason).Inc()
}

// RecordBreakerTransition records a circuit breaker state change
func RecordBreakerTransition(service, from, to string) {
	BreakerTransitionsTotal.WithLabelValues(service, from, to).Inc()
}

// RecordRetryAttempt records one retry attempt for a service
func RecordRetryAttempt(service string) {
	RetryAttemptsTotal.WithLabelValues(service).Inc()
}

// RecordQueueDecision records a review queue decision
func RecordQueueDecision(action string) {
	QueueDecisionsTotal.WithLabelValues(action).Inc()
}

// RecordServiceExecution records one external service execution
func RecordServiceExecution(service, outcome string, durationSeconds float64) {
	ServiceExecutionsTotal.WithLabelValues(service, outcome).Inc()
	ServiceExecutionDuration.WithLabelValues(service).Observe(durationSeconds)
}
