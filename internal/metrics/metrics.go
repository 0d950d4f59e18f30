// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "git_sleuth"

//nolint:gochecknoglobals
var (
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Webhook deliveries by event name and outcome.",
	}, []string{"event", "outcome"})

	ProbeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mergeability_probes_total",
		Help:      "Mergeability probe results.",
	}, []string{"result"})

	HeuristicRules = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "heuristic_rule_hits_total",
		Help:      "Marker triples settled by each heuristic rule.",
	}, []string{"rule"})

	FallbackCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ai_fallback_calls_total",
		Help:      "AI fallback invocations by outcome.",
	}, []string{"outcome"})

	FallbackDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ai_fallback_duration_seconds",
		Help:      "Latency of AI fallback calls.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	Supersessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_supersessions_total",
		Help:      "Tasks terminated because newer information arrived.",
	})

	ConflictTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merge_conflict_transitions_total",
		Help:      "Merge conflict status transitions by target status.",
	}, []string{"status"})

	StaleTasks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_tasks_failed_total",
		Help:      "Tasks failed by the stale task sweep.",
	})
)
