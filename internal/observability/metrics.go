// Package observability wires OpenTelemetry tracing and exposes the
// Prometheus collectors for jobs, ingress throttling, and event streaming.
//
// Label sets are kept small and bounded: entity kind, terminal status, and
// limiter name. Repository names and entity numbers are never labels.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// JobsStarted counts admitted jobs by entity kind.
	JobsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_jobs_started_total",
			Help: "Jobs admitted by the registry.",
		},
		[]string{"kind"},
	)

	// JobsRejected counts start attempts refused because the entity already has a live job.
	JobsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_jobs_rejected_total",
			Help: "Start attempts rejected by single-flight admission.",
		},
		[]string{"kind"},
	)

	// JobsFinished counts terminal jobs by entity kind and status.
	JobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_jobs_finished_total",
			Help: "Jobs that reached a terminal status.",
		},
		[]string{"kind", "status"},
	)

	// JobDuration observes wall time from admission to terminal status.
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_job_duration_seconds",
			Help:    "Time from admission to terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"kind", "status"},
	)

	// JobsLive gauges jobs currently queued or running.
	JobsLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_jobs_live",
			Help: "Jobs currently queued or running.",
		},
		[]string{"status"},
	)

	// ThrottleDenied counts commands denied by the ingress limiter.
	ThrottleDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_throttle_denied_total",
			Help: "Inbound commands denied by the ingress rate limiter.",
		},
		[]string{"limiter"},
	)

	// StreamSubscribers gauges connected event-bus subscribers.
	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_stream_subscribers",
			Help: "Clients currently subscribed to the event bus.",
		},
	)

	// StreamDeliveryFailures counts subscribers pruned after a failed or overflowing delivery.
	StreamDeliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_stream_delivery_failures_total",
			Help: "Event deliveries that failed and pruned their subscriber.",
		},
		[]string{"reason"},
	)

	// WSCommands counts command frames by command and result.
	WSCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_ws_commands_total",
			Help: "WebSocket command frames handled, by command and result code.",
		},
		[]string{"command", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		JobsStarted, JobsRejected, JobsFinished, JobDuration, JobsLive,
		ThrottleDenied, StreamSubscribers, StreamDeliveryFailures, WSCommands,
	)
}
