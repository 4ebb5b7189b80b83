// Package cost implements the Cost Engine (spec §4.6): per-call pricing
// across usage buckets, tiered overage pricing, a tokenizer-based fallback
// for streams that end without a terminal usage payload, and MCP tool cost
// resolution. Token counting is grounded directly on kadirpekel/hector's
// pkg/utils.TokenCounter (tiktoken-go with cl100k_base fallback) — this
// package calls it when a stream never surfaces provider-reported usage.
package cost

import (
	"context"
	"sort"

	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/utils"
)

// Breakdown is the per-bucket cost computation result (spec §4.6's
// "cost = Σ(tokens_in_bucket × price_in_bucket)").
type Breakdown struct {
	UncachedInputCost float64
	CachedReadCost    float64
	CachedWriteCost   float64
	ReasoningCost     float64
	OutputCost        float64
	ServerToolCost    float64
	MCPToolCost       float64
	Total             float64
}

// Engine computes per-call cost from usage and deployment pricing.
type Engine struct {
	// serverToolCostPerCall prices provider-side tool invocations (web
	// search, tool search) that don't fit the token-bucket model.
	serverToolCostPerCall float64

	// mcpTool and mcpServer resolve (server_id, tool_name) -> cost, with
	// tool-level entries taking precedence over server-level ones, per spec §4.6.
	mcpTool   map[mcpKey]float64
	mcpServer map[string]float64
}

type mcpKey struct {
	serverID string
	toolName string
}

// New builds an Engine with no MCP cost overrides configured.
func New() *Engine {
	return &Engine{
		mcpTool:   make(map[mcpKey]float64),
		mcpServer: make(map[string]float64),
	}
}

// SetServerToolCostPerCall configures the flat per-invocation cost applied
// to each ServerToolUse count in Usage (spec §3/§4.6).
func (e *Engine) SetServerToolCostPerCall(cost float64) {
	e.serverToolCostPerCall = cost
}

// SetMCPToolCost registers a tool-level MCP cost override, which takes
// precedence over any server-level default for the same tool.
func (e *Engine) SetMCPToolCost(serverID, toolName string, cost float64) {
	e.mcpTool[mcpKey{serverID, toolName}] = cost
}

// SetMCPServerCost registers a server-level default cost for every tool on
// that MCP server that has no tool-level override.
func (e *Engine) SetMCPServerCost(serverID string, cost float64) {
	e.mcpServer[serverID] = cost
}

// MCPToolCost resolves (server_id, tool_name) by tool-level > server-level >
// zero precedence (spec §4.6).
func (e *Engine) MCPToolCost(serverID, toolName string) float64 {
	if cost, ok := e.mcpTool[mcpKey{serverID, toolName}]; ok {
		return cost
	}
	if cost, ok := e.mcpServer[serverID]; ok {
		return cost
	}
	return 0
}

// Compute prices one call's usage against a deployment's declared pricing,
// applying tiered overage rates once prompt tokens cross a configured
// above_Nk_tokens threshold (spec §4.6). mcpToolCalls lists every MCP
// invocation made during the call so their resolved costs can be summed in;
// a nil slice means no MCP tools were called.
func (e *Engine) Compute(info llm.ModelInfo, usage llm.Usage, mcpToolCalls []MCPInvocation) Breakdown {
	uncachedInput := usage.PromptTokens - usage.CachedReadTokens - usage.CachedWriteTokens
	if uncachedInput < 0 {
		uncachedInput = 0
	}

	b := Breakdown{
		UncachedInputCost: e.tieredInputCost(info, uncachedInput),
		CachedReadCost:    float64(usage.CachedReadTokens) * info.CacheReadCostPerToken,
		CachedWriteCost:   float64(usage.CachedWriteTokens) * info.CacheWriteCostPerToken,
		ReasoningCost:     float64(usage.ReasoningTokens) * info.ReasoningCostPerToken,
		OutputCost:        float64(usage.CompletionTokens) * e.outputRate(info, usage.PromptTokens),
		ServerToolCost:    float64(usage.ServerToolUse.WebSearchRequests+usage.ServerToolUse.ToolSearchRequests) * e.serverToolCostPerCall,
	}
	for _, call := range mcpToolCalls {
		b.MCPToolCost += call.EffectiveCost(e)
	}
	b.Total = b.UncachedInputCost + b.CachedReadCost + b.CachedWriteCost + b.ReasoningCost + b.OutputCost + b.ServerToolCost + b.MCPToolCost
	return b
}

// tieredInputCost prices the uncached input bucket across every configured
// above_Nk_tokens threshold (spec §4.6): the base rate prices the first
// threshold*1000 tokens, and each subsequent tier prices only the tokens
// between its threshold and the next (or, for the highest tier crossed,
// everything above it). Tiers compose by ascending threshold — a request
// that crosses two thresholds is billed in three segments, not at a single
// flat rate for the whole count.
func (e *Engine) tieredInputCost(info llm.ModelInfo, uncachedInput int) float64 {
	if len(info.Tiers) == 0 || uncachedInput == 0 {
		return float64(uncachedInput) * info.InputCostPerToken
	}

	thresholds := make([]int, 0, len(info.Tiers))
	for k := range info.Tiers {
		thresholds = append(thresholds, k)
	}
	sort.Ints(thresholds)

	var cost float64
	rate := info.InputCostPerToken
	lower := 0
	for _, thresholdK := range thresholds {
		boundary := thresholdK * 1000
		if uncachedInput <= boundary {
			break
		}
		cost += float64(boundary-lower) * rate
		lower = boundary
		rate = info.Tiers[thresholdK].InputCostPerToken
	}
	cost += float64(uncachedInput-lower) * rate
	return cost
}

// outputRate selects the output per-token rate in effect for a call with
// the given prompt token count: the base rate, or the highest
// above_Nk_tokens tier crossed. Output tokens aren't split across brackets
// the way the input bucket is — the threshold is measured in prompt
// tokens, so once it's crossed the whole response is billed at that
// tier's output rate (spec §4.6).
func (e *Engine) outputRate(info llm.ModelInfo, promptTokens int) float64 {
	rate := info.OutputCostPerToken
	if len(info.Tiers) == 0 {
		return rate
	}

	thresholds := make([]int, 0, len(info.Tiers))
	for k := range info.Tiers {
		thresholds = append(thresholds, k)
	}
	sort.Ints(thresholds)

	for _, thresholdK := range thresholds {
		if promptTokens > thresholdK*1000 {
			rate = info.Tiers[thresholdK].OutputCostPerToken
		}
	}
	return rate
}

// MCPInvocation records one MCP tool call made during a request, for cost
// resolution and for a post-MCP-call hook to override (spec §4.6: "a
// custom post-MCP-call hook may override cost based on the response
// payload, e.g. per-row pricing").
type MCPInvocation struct {
	ServerID     string
	ToolName     string
	OverrideCost *float64 // set by a post-MCP-call hook; takes precedence when non-nil
}

// EffectiveCost returns the invocation's hook override if set, else the
// Engine's resolved (server_id, tool_name) cost.
func (inv MCPInvocation) EffectiveCost(e *Engine) float64 {
	if inv.OverrideCost != nil {
		return *inv.OverrideCost
	}
	return e.MCPToolCost(inv.ServerID, inv.ToolName)
}

// FallbackTokenCount implements spec §4.6's streaming fallback: when a
// stream ends without a terminal usage payload, count tokens locally over
// the concatenated content using a model-appropriate tokenizer, falling
// back to a generic BPE (cl100k_base) when the model isn't recognized —
// exactly what utils.NewTokenCounter already does internally.
func FallbackTokenCount(ctx context.Context, model, content string) (int, error) {
	counter, err := utils.NewTokenCounter(model)
	if err != nil {
		return 0, err
	}
	return counter.Count(content), nil
}
