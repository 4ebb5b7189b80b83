package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the gateway (spec §6's
// ambient observability surface): request volume, provider call latency and
// token usage, MCP tool invocations, and router retry/fallback behavior.
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokensInput  *prometheus.CounterVec
	llmTokensOutput *prometheus.CounterVec
	llmErrors       *prometheus.CounterVec
	llmCostTotal    *prometheus.CounterVec

	routerRetries   *prometheus.CounterVec
	routerFallbacks *prometheus.CounterVec

	mcpCalls        *prometheus.CounterVec
	mcpCallDuration *prometheus.HistogramVec
	mcpErrors       *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance from configuration.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	m := &Metrics{config: cfg, registry: prometheus.NewRegistry()}
	m.initHTTPMetrics()
	m.initLLMMetrics()
	m.initRouterMetrics()
	m.initMCPMetrics()
	return m, nil
}

func (m *Metrics) initHTTPMetrics() {
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "http", Name: "requests_total",
		Help: "Total number of HTTP requests", ConstLabels: m.config.ConstLabels,
	}, []string{"method", "path", "status"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help: "HTTP request duration in seconds", Buckets: prometheus.DefBuckets, ConstLabels: m.config.ConstLabels,
	}, []string{"method", "path"})

	m.registry.MustRegister(m.httpRequests, m.httpDuration)
}

func (m *Metrics) initLLMMetrics() {
	labels := []string{"model_group", "provider"}

	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "llm", Name: "calls_total",
		Help: "Total number of provider chat completion calls", ConstLabels: m.config.ConstLabels,
	}, labels)

	m.llmCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace, Subsystem: "llm", Name: "call_duration_seconds",
		Help: "Provider call duration in seconds", Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), ConstLabels: m.config.ConstLabels,
	}, labels)

	m.llmTokensInput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "llm", Name: "tokens_prompt_total",
		Help: "Total prompt tokens consumed", ConstLabels: m.config.ConstLabels,
	}, labels)

	m.llmTokensOutput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "llm", Name: "tokens_completion_total",
		Help: "Total completion tokens generated", ConstLabels: m.config.ConstLabels,
	}, labels)

	m.llmErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "llm", Name: "errors_total",
		Help: "Total provider call errors", ConstLabels: m.config.ConstLabels,
	}, append(labels, "error_type"))

	m.llmCostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "llm", Name: "cost_usd_total",
		Help: "Total computed spend in USD", ConstLabels: m.config.ConstLabels,
	}, labels)

	m.registry.MustRegister(m.llmCalls, m.llmCallDuration, m.llmTokensInput, m.llmTokensOutput, m.llmErrors, m.llmCostTotal)
}

func (m *Metrics) initRouterMetrics() {
	m.routerRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "router", Name: "retries_total",
		Help: "Total number of retried provider attempts", ConstLabels: m.config.ConstLabels,
	}, []string{"model_group"})

	m.routerFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "router", Name: "fallbacks_total",
		Help: "Total number of model-group fallbacks taken", ConstLabels: m.config.ConstLabels,
	}, []string{"from_model_group", "to_model_group"})

	m.registry.MustRegister(m.routerRetries, m.routerFallbacks)
}

func (m *Metrics) initMCPMetrics() {
	labels := []string{"server_id", "tool_name"}

	m.mcpCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "mcp", Name: "calls_total",
		Help: "Total number of MCP tool invocations", ConstLabels: m.config.ConstLabels,
	}, labels)

	m.mcpCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace, Subsystem: "mcp", Name: "call_duration_seconds",
		Help: "MCP tool call duration in seconds", Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), ConstLabels: m.config.ConstLabels,
	}, labels)

	m.mcpErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "mcp", Name: "errors_total",
		Help: "Total number of MCP tool call errors", ConstLabels: m.config.ConstLabels,
	}, labels)

	m.registry.MustRegister(m.mcpCalls, m.mcpCallDuration, m.mcpErrors)
}

// RecordHTTPRequest records one HTTP request/response.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	status := statusCodeLabel(statusCode)
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLLMCall records one provider chat/completion call.
func (m *Metrics) RecordLLMCall(modelGroup, provider string, duration time.Duration, promptTokens, completionTokens int, costUSD float64) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(modelGroup, provider).Inc()
	m.llmCallDuration.WithLabelValues(modelGroup, provider).Observe(duration.Seconds())
	m.llmTokensInput.WithLabelValues(modelGroup, provider).Add(float64(promptTokens))
	m.llmTokensOutput.WithLabelValues(modelGroup, provider).Add(float64(completionTokens))
	m.llmCostTotal.WithLabelValues(modelGroup, provider).Add(costUSD)
}

// RecordLLMError records a failed provider call.
func (m *Metrics) RecordLLMError(modelGroup, provider, errorType string) {
	if m == nil {
		return
	}
	m.llmErrors.WithLabelValues(modelGroup, provider, errorType).Inc()
}

// RecordRouterRetry records one retried attempt within a model group.
func (m *Metrics) RecordRouterRetry(modelGroup string) {
	if m == nil {
		return
	}
	m.routerRetries.WithLabelValues(modelGroup).Inc()
}

// RecordRouterFallback records one fallback from one model group to another.
func (m *Metrics) RecordRouterFallback(from, to string) {
	if m == nil {
		return
	}
	m.routerFallbacks.WithLabelValues(from, to).Inc()
}

// RecordMCPCall records one MCP tool invocation.
func (m *Metrics) RecordMCPCall(serverID, toolName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.mcpCalls.WithLabelValues(serverID, toolName).Inc()
	m.mcpCallDuration.WithLabelValues(serverID, toolName).Observe(duration.Seconds())
}

// RecordMCPError records a failed MCP tool invocation.
func (m *Metrics) RecordMCPError(serverID, toolName string) {
	if m == nil {
		return
	}
	m.mcpErrors.WithLabelValues(serverID, toolName).Inc()
}

func statusCodeLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
