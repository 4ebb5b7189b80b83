package mcp

import "github.com/litellm-go/gateway/pkg/cost"

// RegisterCosts loads every server's configured MCP pricing into e, so the
// Cost Engine's tool-level > server-level > zero precedence (spec §4.6)
// resolves correctly for calls this Gateway dispatches.
func (g *Gateway) RegisterCosts(e *cost.Engine) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, s := range g.servers {
		if s.cfg.ToolCostPerCall > 0 {
			e.SetMCPServerCost(s.cfg.ID, s.cfg.ToolCostPerCall)
		}
		for tool, c := range s.cfg.ToolCosts {
			e.SetMCPToolCost(s.cfg.ID, tool, c)
		}
	}
}

// ToInvocation converts a completed MCP call into the cost.MCPInvocation
// the Cost Engine and LoggingRecord consume (spec §4.6/§4.7 step 6).
// overrideCost is a post-call hook's cost override, if one ran; nil means
// no hook overrode the resolved server/tool-level price.
func ToInvocation(inv *Invocation, overrideCost *float64) cost.MCPInvocation {
	return cost.MCPInvocation{
		ServerID:     inv.ServerID,
		ToolName:     inv.RawName,
		OverrideCost: overrideCost,
	}
}
