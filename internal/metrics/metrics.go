package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "comfyq"

var (
	ToolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Total number of tool invocations, labeled by outcome (ok or error kind).",
		},
		[]string{"tool", "outcome"},
	)

	EngineSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_submissions_total",
			Help:      "Total number of workflow submissions sent to the engine, labeled by outcome.",
		},
		[]string{"tool", "outcome"},
	)

	ToolInvocationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_invocation_duration_seconds",
			Help:      "End-to-end latency of a tool invocation, from bind to resolved URL (seconds).",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 900},
		},
		[]string{"tool", "outcome"},
	)

	EnginePollAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_poll_attempts",
			Help:      "History polls needed before a submission reached a terminal state.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
		},
		[]string{"tool"},
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Total number of completion webhook deliveries, labeled by outcome.",
		},
		[]string{"tool", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		ToolInvocationsTotal,
		EngineSubmissionsTotal,
		ToolInvocationDurationSeconds,
		EnginePollAttempts,
		WebhookDeliveriesTotal,
	)
}
