// Package logging implements the gateway's per-call LoggingRecord (spec
// §3/§4.4): an immutable snapshot of one call's inputs, outputs, cost, and
// guardrail verdicts, emitted exactly once to every configured LoggingSink.
// This is a distinct concern from the ambient slog-based process logging in
// pkg/logger — that package logs gateway operational events, this one
// records call outcomes for billing, audit, and observability backends.
package logging

import (
	"time"

	"github.com/litellm-go/gateway/pkg/cost"
	"github.com/litellm-go/gateway/pkg/llm"
)

// GuardrailResult records one hook's verdict for inclusion in a
// LoggingRecord (spec §3's guardrail_results[{name, mode, action,
// confidence, entities}]).
type GuardrailResult struct {
	Name       string
	Mode       string // "pre_call", "during_call", "post_call_success", ...
	Action     string // "allowed", "blocked", "mutated"
	Confidence float64
	Entities   map[string]any
}

// Cost is the billed-cost summary attached to a LoggingRecord, mirroring
// cost.Breakdown but collapsed to the buckets spec §3 names explicitly.
type Cost struct {
	Input     float64
	Output    float64
	ToolCalls float64
	Total     float64
}

// FromBreakdown collapses a cost.Breakdown into the Cost shape a
// LoggingRecord reports.
func FromBreakdown(b cost.Breakdown) Cost {
	return Cost{
		Input:     b.UncachedInputCost + b.CachedReadCost + b.CachedWriteCost,
		Output:    b.OutputCost + b.ReasoningCost,
		ToolCalls: b.ServerToolCost + b.MCPToolCost,
		Total:     b.Total,
	}
}

// Record is the immutable snapshot emitted once per call (spec §3). It is
// created at call entry, mutated only by the code running inside the
// pipeline for that call, and must not be touched after it is handed to
// Emit.
type Record struct {
	CallID    string
	TraceID   string
	ParentIDs []string

	RequestTime  time.Time
	ResponseTime time.Time
	Latency      time.Duration

	Model        string
	ModelGroup   string
	DeploymentID string
	Provider     string
	APIBase      string

	User    string
	Team    string
	KeyHash string
	Tags    []string

	Request  *llm.Request
	Response *llm.Response
	Usage    llm.Usage

	Cost Cost

	CacheHit         bool
	Retries          int
	FallbackChain    []string
	GuardrailResults []GuardrailResult

	MCPServerID string
	MCPToolName string
	MCPCost     float64

	ServerToolUse llm.ServerToolUse

	// Error is the taxonomy Kind string (e.g. "Timeout", "ClientCancelled")
	// for a terminal failure, empty on success.
	Error string
}

// New starts a Record at call entry, stamping RequestTime. Callers fill in
// the remaining fields as the call progresses and finalize with Finish.
func New(callID, traceID string) *Record {
	return &Record{
		CallID:      callID,
		TraceID:     traceID,
		RequestTime: time.Now(),
	}
}

// Finish stamps ResponseTime and Latency; call this exactly once, right
// before handing the Record to a sink.
func (r *Record) Finish() {
	r.ResponseTime = time.Now()
	r.Latency = r.ResponseTime.Sub(r.RequestTime)
}
