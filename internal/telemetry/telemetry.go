// Package telemetry registers the process metrics and serves them over
// the standard Prometheus text exposition.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors incremented by the chat and workflow paths.
type Metrics struct {
	registry *prometheus.Registry

	ChatTurns      *prometheus.CounterVec
	ModelCalls     *prometheus.CounterVec
	ModelLatency   prometheus.Histogram
	ToolExecutions *prometheus.CounterVec
	NodeExecutions *prometheus.CounterVec
}

// New builds a registry with the service collectors plus the Go runtime
// and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		ChatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_chat_turns_total",
			Help: "Completed chat turns by outcome.",
		}, []string{"outcome"}),
		ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_model_calls_total",
			Help: "Model completion calls by outcome.",
		}, []string{"outcome"}),
		ModelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentd_model_call_seconds",
			Help:    "Model completion latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_tool_executions_total",
			Help: "Tool executions by action type.",
		}, []string{"action_type"}),
		NodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_workflow_node_executions_total",
			Help: "Workflow node executions by node type.",
		}, []string{"node_type"}),
	}
	registry.MustRegister(
		m.ChatTurns, m.ModelCalls, m.ModelLatency, m.ToolExecutions, m.NodeExecutions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry for the /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveModelCall records one completion call.
func (m *Metrics) ObserveModelCall(start time.Time, err error) {
	if m == nil {
		return
	}
	m.ModelLatency.Observe(time.Since(start).Seconds())
	m.ModelCalls.WithLabelValues(outcome(err)).Inc()
}

// CountChatTurn records one finished chat turn.
func (m *Metrics) CountChatTurn(err error) {
	if m == nil {
		return
	}
	m.ChatTurns.WithLabelValues(outcome(err)).Inc()
}

// CountTool records one tool execution.
func (m *Metrics) CountTool(actionType string) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(actionType).Inc()
}

// CountNode records one workflow node execution.
func (m *Metrics) CountNode(nodeType string) {
	if m == nil {
		return
	}
	m.NodeExecutions.WithLabelValues(nodeType).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
