package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// persistenceFailures counts swallowed persistence errors by operation.
	persistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbobro_persistence_failures_total",
			Help: "Persistence errors swallowed during session and turn recording.",
		},
		[]string{"op"},
	)

	// chatTurns counts orchestrated user turns by outcome (ok, error, canned).
	chatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbobro_chat_turns_total",
			Help: "Chat turns handled, by outcome.",
		},
		[]string{"outcome"},
	)

	// llmLatency records the duration of completion calls.
	llmLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cbobro_llm_request_duration_seconds",
			Help:    "Duration of LLM completion calls in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
	)

	// metricsRecorded counts metrics extracted from user turns and stored.
	metricsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbobro_flow_metrics_recorded_total",
			Help: "Flow metrics recorded, by flow type.",
		},
		[]string{"flow"},
	)
)

func init() {
	prometheus.MustRegister(persistenceFailures, chatTurns, llmLatency, metricsRecorded)
}
