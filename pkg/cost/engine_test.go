package cost

import (
	"context"
	"testing"

	"github.com/litellm-go/gateway/pkg/llm"
)

func TestComputeAppliesBaseRatesBelowTier(t *testing.T) {
	e := New()
	info := llm.ModelInfo{
		InputCostPerToken:  1e-6,
		OutputCostPerToken: 2e-6,
		Tiers: map[int]llm.PriceTier{
			200: {InputCostPerToken: 6e-6, OutputCostPerToken: 8e-6},
		},
	}
	usage := llm.Usage{PromptTokens: 1000, CompletionTokens: 500}

	b := e.Compute(info, usage, nil)
	wantInput := 1000 * 1e-6
	wantOutput := 500 * 2e-6
	if b.UncachedInputCost != wantInput {
		t.Errorf("UncachedInputCost = %v, want %v", b.UncachedInputCost, wantInput)
	}
	if b.OutputCost != wantOutput {
		t.Errorf("OutputCost = %v, want %v", b.OutputCost, wantOutput)
	}
}

// TestComputeSplitsInputAcrossTierThreshold is the spec §4.6 /
// §8-scenario-5 worked example: a model priced $3/M below 200k input
// tokens and $6/M above, given a 250,000 token prompt, bills the first
// 200,000 tokens at the base rate and only the remaining 50,000 at the
// tier rate — not the whole count at the tier rate.
func TestComputeSplitsInputAcrossTierThreshold(t *testing.T) {
	e := New()
	info := llm.ModelInfo{
		InputCostPerToken:  3e-6,
		OutputCostPerToken: 15e-6,
		Tiers: map[int]llm.PriceTier{
			200: {InputCostPerToken: 6e-6, OutputCostPerToken: 15e-6},
		},
	}
	usage := llm.Usage{PromptTokens: 250_000, CompletionTokens: 1_000}

	b := e.Compute(info, usage, nil)
	wantInput := 200_000*3e-6 + 50_000*6e-6
	wantOutput := 1_000 * 15e-6
	wantTotal := 0.915
	if b.UncachedInputCost != wantInput {
		t.Errorf("UncachedInputCost = %v, want %v (base rate below threshold, tier rate only on overage)", b.UncachedInputCost, wantInput)
	}
	if b.OutputCost != wantOutput {
		t.Errorf("OutputCost = %v, want %v", b.OutputCost, wantOutput)
	}
	if b.Total != wantTotal {
		t.Errorf("Total = %v, want %v", b.Total, wantTotal)
	}
}

func TestComputeSubtractsCachedTokensFromUncachedInput(t *testing.T) {
	e := New()
	info := llm.ModelInfo{InputCostPerToken: 1e-6, CacheReadCostPerToken: 1e-7}
	usage := llm.Usage{PromptTokens: 1000, CachedReadTokens: 400}

	b := e.Compute(info, usage, nil)
	wantUncached := 600 * 1e-6
	wantCached := 400 * 1e-7
	if b.UncachedInputCost != wantUncached {
		t.Errorf("UncachedInputCost = %v, want %v", b.UncachedInputCost, wantUncached)
	}
	if b.CachedReadCost != wantCached {
		t.Errorf("CachedReadCost = %v, want %v", b.CachedReadCost, wantCached)
	}
}

func TestMCPToolCostPrecedenceToolOverServerOverZero(t *testing.T) {
	e := New()
	e.SetMCPServerCost("srv-1", 0.01)
	e.SetMCPToolCost("srv-1", "search", 0.05)

	if got := e.MCPToolCost("srv-1", "search"); got != 0.05 {
		t.Errorf("tool-level cost = %v, want 0.05", got)
	}
	if got := e.MCPToolCost("srv-1", "other-tool"); got != 0.01 {
		t.Errorf("server-level fallback = %v, want 0.01", got)
	}
	if got := e.MCPToolCost("srv-unknown", "tool"); got != 0 {
		t.Errorf("unconfigured server cost = %v, want 0", got)
	}
}

func TestMCPInvocationOverrideTakesPrecedence(t *testing.T) {
	e := New()
	e.SetMCPToolCost("srv-1", "search", 0.05)
	override := 0.99
	inv := MCPInvocation{ServerID: "srv-1", ToolName: "search", OverrideCost: &override}

	if got := inv.EffectiveCost(e); got != 0.99 {
		t.Errorf("EffectiveCost = %v, want 0.99 (override)", got)
	}
}

func TestFallbackTokenCountUsesGenericBPEForUnknownModel(t *testing.T) {
	count, err := FallbackTokenCount(context.Background(), "some-unrecognized-model", "hello world")
	if err != nil {
		t.Fatalf("FallbackTokenCount() error = %v", err)
	}
	if count <= 0 {
		t.Errorf("count = %d, want > 0", count)
	}
}
