package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindred_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kindred_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TurnsHandledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kindred_turns_handled_total",
			Help: "Total number of conversation turns answered by generation.",
		},
	)

	DegradedResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kindred_degraded_responses_total",
			Help: "Total number of turns answered with the fixed apology after an external failure.",
		},
	)

	TriggerMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindred_trigger_matches_total",
			Help: "Total number of canned-context trigger matches.",
		},
		[]string{"label"},
	)

	ContextEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindred_context_evictions_total",
			Help: "Total number of turns evicted from active context windows.",
		},
		[]string{"reason"},
	)

	HistoryPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kindred_history_pruned_total",
			Help: "Total number of history entries removed by the retention sweep.",
		},
	)

	ImagePromptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindred_image_prompts_total",
			Help: "Total number of image generation requests.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TurnsHandledTotal,
		DegradedResponsesTotal,
		TriggerMatchesTotal,
		ContextEvictionsTotal,
		HistoryPrunedTotal,
		ImagePromptsTotal,
	)
}
