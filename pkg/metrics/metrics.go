// Package metrics provides Prometheus metrics for the registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ramsey-B/sortinghat/pkg/models"
)

var (
	// OperationsTotal counts committed audit operations
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sortinghat",
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Total number of committed operations by type and entity",
		},
		[]string{"op_type", "entity_type"},
	)

	// CallsTotal counts top-level registry calls by outcome
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sortinghat",
			Subsystem: "registry",
			Name:      "calls_total",
			Help:      "Total number of registry calls by name and status",
		},
		[]string{"name", "status"},
	)

	// MergesTotal counts individual merges
	MergesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sortinghat",
			Subsystem: "registry",
			Name:      "merges_total",
			Help:      "Total number of individuals merged into another",
		},
	)

	// UnifyClassesTotal counts equivalence classes handled by unification
	UnifyClassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sortinghat",
			Subsystem: "unify",
			Name:      "classes_total",
			Help:      "Total number of equivalence classes by status",
		},
		[]string{"status"},
	)

	// UnifyDuration tracks unification run duration in seconds
	UnifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sortinghat",
			Subsystem: "unify",
			Name:      "run_duration_seconds",
			Help:      "Duration of unification runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
	)

	// RecommendationsTotal counts recommendations produced by engine
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sortinghat",
			Subsystem: "recommendation",
			Name:      "produced_total",
			Help:      "Total number of recommendations produced by engine",
		},
		[]string{"engine"},
	)

	// TaskExecutionsTotal counts scheduled task executions by outcome
	TaskExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sortinghat",
			Subsystem: "scheduler",
			Name:      "executions_total",
			Help:      "Total number of scheduled task executions by job type and status",
		},
		[]string{"job_type", "status"},
	)

	// EventsPublishedTotal counts operation events sent to kafka
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sortinghat",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of operation events published by status",
		},
		[]string{"status"},
	)
)

// ObserveOperations counts a committed batch of operations.
func ObserveOperations(ops []models.Operation) {
	for _, op := range ops {
		OperationsTotal.WithLabelValues(string(op.OpType), op.EntityType).Inc()
	}
}

// HTTPRequestDuration tracks API latency by method, route and status
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sortinghat",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of API requests in seconds",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)
