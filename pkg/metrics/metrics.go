// Package metrics provides Prometheus metrics for the linkage engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LinksAcceptedTotal tracks links accepted by linkers
	LinksAcceptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "linkage",
			Name:      "links_accepted_total",
			Help:      "Total number of links accepted by linkers",
		},
		[]string{"link_type", "strategy"},
	)

	// LinkageProgress tracks percentage completion of the running linkage
	LinkageProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "linkage",
			Name:      "progress_percent",
			Help:      "Percentage completion of the running linkage",
		},
		[]string{"link_type"},
	)

	// IndexBuildAttempts tracks pivot index build attempts by outcome
	IndexBuildAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "search",
			Name:      "index_build_attempts_total",
			Help:      "Total number of pivot index build attempts by outcome",
		},
		[]string{"outcome"},
	)

	// QueryDuration tracks search structure query duration
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "search",
			Name:      "query_duration_seconds",
			Help:      "Duration of search structure queries in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"structure", "query"},
	)

	// CandidatesPruned tracks the share of objects excluded by pivots per query
	CandidatesPruned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "search",
			Name:      "candidates_pruned_ratio",
			Help:      "Fraction of indexed objects excluded without a distance computation",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// ResolverActionsTotal tracks resolver classifications and actions
	ResolverActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolver",
			Name:      "actions_total",
			Help:      "Total number of triangle classifications by action",
		},
		[]string{"link_type", "action"},
	)

	// LinkEventsPublished tracks link events written to Kafka
	LinkEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of link events published by status",
		},
		[]string{"event_type", "status"},
	)
)

// RecordLinkAccepted records an accepted link
func RecordLinkAccepted(linkType, strategy string) {
	LinksAcceptedTotal.WithLabelValues(linkType, strategy).Inc()
}

// RecordProgress records linkage progress
func RecordProgress(linkType string, percent float64) {
	LinkageProgress.WithLabelValues(linkType).Set(percent)
}

// RecordIndexBuild records a pivot index build attempt
func RecordIndexBuild(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	IndexBuildAttempts.WithLabelValues(outcome).Inc()
}

// RecordQuery records a search query duration
func RecordQuery(structure, query string, durationSeconds float64) {
	QueryDuration.WithLabelValues(structure, query).Observe(durationSeconds)
}

// RecordPruning records the fraction of candidates excluded for one query
func RecordPruning(excluded, total int) {
	if total == 0 {
		return
	}
	CandidatesPruned.Observe(float64(excluded) / float64(total))
}

// RecordResolverAction records a triangle classification
func RecordResolverAction(linkType, action string) {
	ResolverActionsTotal.WithLabelValues(linkType, action).Inc()
}

// RecordLinkEvent records a published link event
func RecordLinkEvent(eventType, status string) {
	LinkEventsPublished.WithLabelValues(eventType, status).Inc()
}
