// Package metrics provides internal Prometheus metrics collection.
// Internal: not meant to be imported outside this module.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every metric the runtime exports, scoped to the core's
// own surface (task lifecycle, provider selection, breaker trips, MCP
// tool calls, conversation summarisation) — grounded on
// internal/metrics/collector.go's promauto vector construction style, but
// dropping its HTTP/DB counters since transport and storage drivers are
// out of scope here.
type Collector struct {
	TasksTotal        *prometheus.CounterVec
	TaskDuration      *prometheus.HistogramVec
	TasksQueued       prometheus.Gauge
	TasksActive       prometheus.Gauge

	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	ProviderTokensUsed      *prometheus.CounterVec
	ProviderSelected        *prometheus.CounterVec

	BreakerTripsTotal *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec

	MCPToolCallsTotal   *prometheus.CounterVec
	MCPToolCallDuration *prometheus.HistogramVec
	MCPReconnectsTotal  *prometheus.CounterVec

	ConversationSummariesTotal *prometheus.CounterVec
	ConversationSearchTotal    prometheus.Counter

	logger *zap.Logger
}

// NewCollector registers every metric under namespace (e.g. "agentcore").
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Total number of tasks processed by the orchestrator",
	}, []string{"task_type", "status"})

	c.TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"task_type"})

	c.TasksQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_queued",
		Help:      "Current number of tasks waiting in the priority queue",
	})

	c.TasksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_active",
		Help:      "Current number of tasks in progress",
	})

	c.ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Total LLM provider requests",
	}, []string{"provider", "model", "status"})

	c.ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "LLM provider request duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider", "model"})

	c.ProviderTokensUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_tokens_used_total",
		Help:      "Total tokens used per provider",
	}, []string{"provider", "model", "type"})

	c.ProviderSelected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_selected_total",
		Help:      "Total times a provider was chosen by the routing strategy",
	}, []string{"provider", "strategy"})

	c.BreakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "breaker_trips_total",
		Help:      "Total circuit breaker open transitions",
	}, []string{"op"})

	c.BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "breaker_state",
		Help:      "Current circuit breaker state (0=closed, 1=half_open, 2=open)",
	}, []string{"op"})

	c.MCPToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mcp_tool_calls_total",
		Help:      "Total MCP tool invocations",
	}, []string{"server", "tool", "status"})

	c.MCPToolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "mcp_tool_call_duration_seconds",
		Help:      "MCP tool call duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"server", "tool"})

	c.MCPReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mcp_reconnects_total",
		Help:      "Total MCP transport reconnect attempts",
	}, []string{"server", "outcome"})

	c.ConversationSummariesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversation_summaries_total",
		Help:      "Total conversation summarisation passes",
	}, []string{"trigger"})

	c.ConversationSearchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversation_search_total",
		Help:      "Total conversation search calls",
	})

	return c
}
