package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions   prometheus.Gauge
	sessionEvictions prometheus.Counter
	sessionExpiries  prometheus.Counter

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	modelCallTotal    *prometheus.CounterVec
	modelCallDuration *prometheus.HistogramVec

	agentRunTotal      *prometheus.CounterVec
	agentRunDuration   *prometheus.HistogramVec
	agentRunIterations prometheus.Histogram

	chatRequestTotal    *prometheus.CounterVec
	chatRequestDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active session count.",
				},
			),
			sessionEvictions: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "session_evictions_total",
					Help: "Sessions evicted to enforce the session count cap.",
				},
			),
			sessionExpiries: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "session_expiries_total",
					Help: "Sessions removed after exceeding the idle TTL.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			modelCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "model_call_total",
					Help: "Total model boundary calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			modelCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "model_call_duration_seconds",
					Help:    "Model boundary call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_run_total",
					Help: "Total agent runs by status.",
				},
				[]string{"status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Agent run duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"status"},
			),
			agentRunIterations: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agent_run_iterations",
					Help:    "Model round-trips per agent run.",
					Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
				},
			),
			chatRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_request_total",
					Help: "Total chat turns served by status.",
				},
				[]string{"status"},
			),
			chatRequestDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "chat_request_duration_seconds",
					Help:    "End-to-end chat turn duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionEvictions,
			m.sessionExpiries,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.modelCallTotal,
			m.modelCallDuration,
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentRunIterations,
			m.chatRequestTotal,
			m.chatRequestDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionEviction() {
	getMetrics().sessionEvictions.Inc()
}

func RecordSessionExpiry() {
	getMetrics().sessionExpiries.Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordModelCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.modelCallTotal.WithLabelValues(provider, status).Inc()
	m.modelCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordAgentRun(duration time.Duration, iterations int, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.agentRunTotal.WithLabelValues(status).Inc()
	m.agentRunDuration.WithLabelValues(status).Observe(duration.Seconds())
	if success {
		m.agentRunIterations.Observe(float64(iterations))
	}
}

func RecordChatRequest(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.chatRequestTotal.WithLabelValues(status).Inc()
	m.chatRequestDuration.Observe(duration.Seconds())
}
