// Package metrics provides Prometheus metrics for the pipeline stages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "articlepipe"

// Message outcomes recorded by the consumer.
const (
	OutcomeAcked        = "acked"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeAbandoned    = "abandoned"
)

var (
	// PublishTotal counts publish operations by topic and status.
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Total number of publish operations",
		},
		[]string{"topic", "status"},
	)

	// PublishDuration measures publish latency.
	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Duration of publish operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	// FetchDuration measures article fetch latency.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of article fetches in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"status"},
	)

	// MessagesTotal counts handled deliveries by outcome.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of consumed messages by outcome",
		},
		[]string{"outcome"},
	)

	// StepAttempts counts summarize/persist attempts.
	StepAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_attempts_total",
			Help:      "Total number of processing step attempts",
		},
		[]string{"step", "status"},
	)
)

// RecordPublish records a publish operation.
func RecordPublish(topic, status string, duration float64) {
	PublishTotal.WithLabelValues(topic, status).Inc()
	PublishDuration.WithLabelValues(topic).Observe(duration)
}

// RecordFetch records an article fetch.
func RecordFetch(status string, duration float64) {
	FetchDuration.WithLabelValues(status).Observe(duration)
}

// RecordMessage records the final outcome of a delivery.
func RecordMessage(outcome string) {
	MessagesTotal.WithLabelValues(outcome).Inc()
}

// RecordAttempt records one attempt of a processing step.
func RecordAttempt(step, status string) {
	StepAttempts.WithLabelValues(step, status).Inc()
}
