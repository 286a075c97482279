// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMStreamDuration tracks LLM response duration.
	LLMStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_stream_duration_seconds",
			Help:    "LLM response duration",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks estimated LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// FallbackCompletionsTotal counts requests re-served by the fallback responder.
	FallbackCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_fallback_completions_total",
			Help: "Completions served by the fallback responder after a provider failure",
		},
		[]string{"provider"},
	)

	// ImageGenerationsTotal counts image directive outcomes.
	ImageGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_generations_total",
			Help: "Image generation attempts",
		},
		[]string{"status"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// SessionsActive tracks signed-in sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of live sessions",
		},
	)

	// SignInsTotal counts sign-in attempts by outcome.
	SignInsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sign_ins_total",
			Help: "Sign-in attempts",
		},
		[]string{"result"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// MessagesTotal tracks total messages appended.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"role"},
	)

	// UsageMembers tracks member accounts, refreshed by the usage job.
	UsageMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "usage_members",
			Help: "Member accounts by activity",
		},
		[]string{"state"},
	)

	// UsagePrompts tracks the system-wide prompt count.
	UsagePrompts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "usage_prompts",
			Help: "Prompts sent across all conversations",
		},
	)

	// UsageEstimatedTokens tracks the chars/4 token estimate.
	UsageEstimatedTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "usage_estimated_tokens",
			Help: "Estimated tokens across all conversations",
		},
	)

	// JournalPublishFailures counts journal writes that failed.
	JournalPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_publish_failures_total",
			Help: "Failed publishes to the event journal",
		},
		[]string{"kind"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMStream records metrics for an LLM response.
func RecordLLMStream(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMStreamDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordUsage publishes the aggregate usage figures.
func RecordUsage(members, activeMembers, prompts, tokens int) {
	UsageMembers.WithLabelValues("total").Set(float64(members))
	UsageMembers.WithLabelValues("active").Set(float64(activeMembers))
	UsagePrompts.Set(float64(prompts))
	UsageEstimatedTokens.Set(float64(tokens))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
