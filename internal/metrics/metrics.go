package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "waclaw"

var (
	// MessagesInbound counts normalized messages received from channels.
	MessagesInbound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_inbound_total",
		Help:      "Normalized inbound messages per channel and kind.",
	}, []string{"channel", "kind"})

	// CommandsProcessed counts dispatched commands by terminal status.
	CommandsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_processed_total",
		Help:      "Commands dispatched, by command name and status.",
	}, []string{"command", "status"})

	// GateRejections counts dispatch gate short-circuits.
	GateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_rejections_total",
		Help:      "Dispatch pipeline rejections per gate.",
	}, []string{"gate"})

	// SpamDetections counts anti-spam verdicts by enforcement action.
	SpamDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spam_detections_total",
		Help:      "Spam detections per enforcement action.",
	}, []string{"action"})

	// RateLimitChecks counts limiter decisions.
	RateLimitChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_checks_total",
		Help:      "Rate limiter decisions per category.",
	}, []string{"category", "allowed"})

	// CommandDuration records handler execution time.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "command_duration_seconds",
		Help:      "Command handler execution time in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"command"})

	// QueuePending tracks queued (not in-flight) messages per named queue.
	QueuePending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_pending",
		Help:      "Messages waiting in a named queue.",
	}, []string{"queue"})

	// QueueInflight tracks messages currently being executed per named queue.
	QueueInflight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_inflight",
		Help:      "Messages currently executing in a named queue.",
	}, []string{"queue"})

	// QueueBacklogged flags queues whose pending count exceeds the backlog limit.
	QueueBacklogged = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_backlogged",
		Help:      "1 when a queue's pending count exceeds the backlog limit.",
	}, []string{"queue"})

	// CacheDegraded is 1 while the persistent cache tier is unavailable.
	CacheDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_degraded",
		Help:      "1 while the persistent cache tier is unavailable.",
	})
)
