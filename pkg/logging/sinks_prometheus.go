package logging

import (
	"context"

	"github.com/litellm-go/gateway/pkg/observability"
)

// PrometheusSink records call outcomes into the gateway's observability
// Metrics, the LoggingSink spec §5 calls "Prometheus (metrics only)": unlike
// the other sinks it never stores call payloads, only aggregates. It adapts
// a LoggingRecord onto the RecordLLMCall/RecordLLMError/RecordRouterRetry/
// RecordMCPCall instruments pkg/observability.Metrics already exposes.
type PrometheusSink struct {
	metrics *observability.Metrics
}

// NewPrometheusSink builds a PrometheusSink over m. A nil m (observability
// disabled) yields a sink whose Emit is a no-op.
func NewPrometheusSink(m *observability.Metrics) *PrometheusSink {
	return &PrometheusSink{metrics: m}
}

// Emit records rec's duration, token usage, cost, and retry count, and
// increments the error counter when rec carries a terminal error.
func (s *PrometheusSink) Emit(ctx context.Context, rec *Record) {
	if s == nil || s.metrics == nil {
		return
	}

	s.metrics.RecordLLMCall(rec.ModelGroup, rec.Provider, rec.Latency,
		rec.Usage.PromptTokens, rec.Usage.CompletionTokens, rec.Cost.Total)

	if rec.Retries > 0 {
		s.metrics.RecordRouterRetry(rec.ModelGroup)
	}
	if rec.Error != "" {
		s.metrics.RecordLLMError(rec.ModelGroup, rec.Provider, rec.Error)
	}
	if rec.MCPServerID != "" || rec.MCPToolName != "" {
		s.metrics.RecordMCPCall(rec.MCPServerID, rec.MCPToolName, rec.Latency)
	}
}
