// Package metrics exposes Prometheus instrumentation for the agent runtime.
// All record methods are nil-safe so call sites never have to guard against
// a disabled metrics setup.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	toolInvocations *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	runIterations   prometheus.Histogram
	runTokens       *prometheus.CounterVec
	runCostCents    prometheus.Counter
	contextTokens   prometheus.Histogram
	contextSkipped  *prometheus.CounterVec
	providerErrors  *prometheus.CounterVec
	pendingDecided  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftwise_tool_invocations_total",
			Help: "Tool dispatch outcomes by tool and status.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shiftwise_tool_duration_seconds",
			Help:    "Wall time of tool executions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"tool"}),
		runIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shiftwise_run_iterations",
			Help:    "Model round trips per agent run.",
			Buckets: prometheus.LinearBuckets(1, 1, 12),
		}),
		runTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftwise_run_tokens_total",
			Help: "Tokens consumed by agent runs, by direction.",
		}, []string{"direction"}),
		runCostCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shiftwise_run_cost_cents_total",
			Help: "Estimated provider spend across all runs, in cents.",
		}),
		contextTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shiftwise_context_tokens",
			Help:    "Assembled context size per run, in estimated tokens.",
			Buckets: prometheus.ExponentialBuckets(256, 2, 8),
		}),
		contextSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftwise_context_modules_skipped_total",
			Help: "Context modules skipped for exceeding the remaining budget.",
		}, []string{"module"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftwise_provider_errors_total",
			Help: "Completion calls that returned an error, by provider.",
		}, []string{"provider"}),
		pendingDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftwise_pending_decisions_total",
			Help: "Confirmation and approval decisions, by kind and verdict.",
		}, []string{"kind", "verdict"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.toolInvocations, m.toolDuration,
		m.runIterations, m.runTokens, m.runCostCents,
		m.contextTokens, m.contextSkipped,
		m.providerErrors, m.pendingDecided,
	)
	return m
}

// Handler serves the scrape endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ToolInvocation(tool, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.toolInvocations.WithLabelValues(tool, status).Inc()
	if dur > 0 {
		m.toolDuration.WithLabelValues(tool).Observe(dur.Seconds())
	}
}

func (m *Metrics) RunFinished(iterations, inputTokens, outputTokens int, costCents float64) {
	if m == nil {
		return
	}
	m.runIterations.Observe(float64(iterations))
	m.runTokens.WithLabelValues("input").Add(float64(inputTokens))
	m.runTokens.WithLabelValues("output").Add(float64(outputTokens))
	m.runCostCents.Add(costCents)
}

func (m *Metrics) ContextAssembled(totalTokens int, skippedModules []string) {
	if m == nil {
		return
	}
	m.contextTokens.Observe(float64(totalTokens))
	for _, id := range skippedModules {
		m.contextSkipped.WithLabelValues(id).Inc()
	}
}

func (m *Metrics) ProviderError(provider string) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider).Inc()
}

func (m *Metrics) PendingDecision(kind, verdict string) {
	if m == nil {
		return
	}
	m.pendingDecided.WithLabelValues(kind, verdict).Inc()
}
