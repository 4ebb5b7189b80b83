package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/litellm-go/gateway/pkg/config"
	"github.com/litellm-go/gateway/pkg/cost"
	"github.com/litellm-go/gateway/pkg/hooks"
	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/logging"
	"github.com/litellm-go/gateway/pkg/mcp"
	"github.com/litellm-go/gateway/pkg/observability"
	"github.com/litellm-go/gateway/pkg/providers"
	"github.com/litellm-go/gateway/pkg/providers/anthropic"
	"github.com/litellm-go/gateway/pkg/providers/bedrock"
	"github.com/litellm-go/gateway/pkg/providers/cohere"
	"github.com/litellm-go/gateway/pkg/providers/gemini"
	"github.com/litellm-go/gateway/pkg/providers/openai"
	"github.com/litellm-go/gateway/pkg/providers/sap"
	"github.com/litellm-go/gateway/pkg/router"
)

// BuildDeps wires every gateway component from a validated, defaulted
// Config, the way cmd/gateway's serve command bootstraps a Gateway and the
// way Reload rebuilds one whole on a config hot-reload signal.
func BuildDeps(ctx context.Context, cfg *config.Config) (*Deps, error) {
	obs, err := observability.NewManager(ctx, &cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}

	registry := providers.NewRegistry()
	registerAdapters(registry)

	for i := range cfg.ModelList {
		dep, err := deploymentFromEntry(&cfg.ModelList[i], i)
		if err != nil {
			return nil, fmt.Errorf("model_list[%d]: %w", i, err)
		}
		if err := registry.RegisterDeployment(dep); err != nil {
			return nil, fmt.Errorf("model_list[%d]: %w", i, err)
		}
	}

	rt := router.New(registry, router.NewMemoryCooldownStore(), buildLimiter(cfg))
	rt.SetNumRetries(cfg.RouterSettings.NumRetries)
	for group := range cfg.ModelGroups() {
		rt.SetAlgorithm(group, router.SelectionAlgorithm(cfg.RouterSettings.RoutingStrategy))
	}
	for _, fb := range cfg.RouterSettings.Fallbacks {
		for model, chain := range fb {
			rt.SetFallbacks(model, chain)
		}
	}

	costEngine := cost.New()
	mcpGateway := mcp.NewGateway()
	for _, srv := range cfg.MCPServers {
		mcpGateway.AddServer(mcpServerConfig(srv))
		if srv.ServerCostPerCall > 0 {
			costEngine.SetMCPServerCost(srv.ServerName, srv.ServerCostPerCall)
		}
		for _, tc := range srv.ToolCost {
			costEngine.SetMCPToolCost(srv.ServerName, tc.ToolName, tc.Cost)
		}
	}

	dispatcher := logging.NewDispatcher()
	dispatcher.Register("stdout", &logging.StdoutSink{Redact: cfg.GeneralSettings.DisableSpendLogs}, 256)
	if obs.MetricsEnabled() {
		dispatcher.Register("prometheus", logging.NewPrometheusSink(obs.Metrics()), 256)
	}
	if cfg.GeneralSettings.SpendLogDir != "" {
		fileSink, err := logging.NewFileSink(cfg.GeneralSettings.SpendLogDir, cfg.GeneralSettings.DisableSpendLogs)
		if err != nil {
			return nil, fmt.Errorf("spend log dir: %w", err)
		}
		dispatcher.Register("file", fileSink, 256)
	}

	keys := NewKeyStore(cfg.GeneralSettings.MasterKey)

	pipeline := hooks.New()
	for _, entry := range cfg.Guardrails {
		pipeline.Register(hooks.NewGuardrail(guardrailConfig(entry)))
	}

	return &Deps{
		Config:     cfg,
		Registry:   registry,
		Router:     rt,
		Pipeline:   pipeline,
		Cost:       costEngine,
		Dispatcher: dispatcher,
		MCP:        mcpGateway,
		Keys:       keys,
		Obs:        obs,
	}, nil
}

// guardrailConfig converts one guardrails[] YAML entry into the hooks
// package's config shape, mapping its litellm_params.mode string onto the
// pipeline Stages the guardrail registers for.
func guardrailConfig(entry config.GuardrailEntry) hooks.GuardrailConfig {
	return hooks.GuardrailConfig{
		Name:        entry.GuardrailName,
		Kind:        entry.LiteLLMParams.Guardrail,
		Modes:       guardrailStages(entry.LiteLLMParams.Mode),
		Keywords:    entry.LiteLLMParams.Keywords,
		PIIEntities: entry.LiteLLMParams.PIIEntities,
		DefaultOn:   entry.LiteLLMParams.DefaultOn,
	}
}

// guardrailStages parses a (possibly comma-separated) litellm_params.mode
// string into Pipeline stages (spec §4.4: pre_call, during_call, post_call).
func guardrailStages(mode string) []hooks.Stage {
	var stages []hooks.Stage
	for _, m := range strings.Split(mode, ",") {
		switch strings.TrimSpace(m) {
		case "pre_call":
			stages = append(stages, hooks.StagePreCall)
		case "during_call":
			stages = append(stages, hooks.StageDuringCall)
		case "post_call":
			stages = append(stages, hooks.StagePostCallSuccess)
		}
	}
	return stages
}

// registerAdapters makes every pack-sourced provider available for
// resolution. Azure is registered as its own provider name since its
// request/response shape and auth are OpenAI's, just routed differently.
func registerAdapters(registry *providers.Registry) {
	registry.RegisterAdapter("openai", func() providers.Adapter { return openai.New(false) })
	registry.RegisterAdapter("azure", func() providers.Adapter { return openai.New(true) })
	registry.RegisterAdapter("anthropic", func() providers.Adapter { return anthropic.New() })
	registry.RegisterAdapter("gemini", func() providers.Adapter { return gemini.New() })
	registry.RegisterAdapter("cohere", func() providers.Adapter { return cohere.New() })
	registry.RegisterAdapter("bedrock", func() providers.Adapter { return bedrock.New(nil) })
	registry.RegisterAdapter("sap", func() providers.Adapter {
		return sap.New(map[string]sap.Delegate{
			"anthropic": anthropic.New(),
			"gemini":    gemini.New(),
		})
	})
}

// deploymentFromEntry converts one model_list[] YAML entry into the
// registry's runtime Deployment shape, splitting the litellm-convention
// "<provider>/<model-id>" string (spec §3 item 3, §6).
func deploymentFromEntry(entry *config.ModelListEntry, index int) (*llm.Deployment, error) {
	providerName, modelID, ok := strings.Cut(entry.LiteLLMParams.Model, "/")
	if !ok {
		return nil, fmt.Errorf("litellm_params.model %q must be \"<provider>/<model-id>\"", entry.LiteLLMParams.Model)
	}

	dep := &llm.Deployment{
		ID:         entry.ModelName + "-" + strconv.Itoa(index),
		ModelName:  entry.ModelName,
		Provider:   providerName,
		Model:      modelID,
		APIKey:     entry.LiteLLMParams.APIKey,
		APIBase:    entry.LiteLLMParams.APIBase,
		Region:     entry.LiteLLMParams.Region,
		Info:       modelInfoFromEntry(entry.ModelInfo),
		ExtraParams: map[string]any{},
	}
	if entry.LiteLLMParams.RPM > 0 {
		dep.ExtraParams["rpm"] = entry.LiteLLMParams.RPM
	}
	return dep, nil
}

func modelInfoFromEntry(m config.ModelInfo) llm.ModelInfo {
	info := llm.ModelInfo{
		MaxInputTokens:         m.MaxInputTokens,
		MaxOutputTokens:        m.MaxOutputTokens,
		InputCostPerToken:      m.InputCostPerToken,
		OutputCostPerToken:     m.OutputCostPerToken,
		ReasoningCostPerToken:  m.ReasoningCostPerToken,
		CacheReadCostPerToken:  m.CacheReadCostPerToken,
		CacheWriteCostPerToken: m.CacheWriteCostPerToken,
		SupportsVision:         m.SupportsVision,
		SupportsToolChoice:     m.SupportsToolChoice,
		SupportsStreaming:      m.SupportsStreaming,
	}
	if len(m.Tiers) > 0 {
		info.Tiers = make(map[int]llm.PriceTier, len(m.Tiers))
		for k, v := range m.Tiers {
			info.Tiers[k] = llm.PriceTier{InputCostPerToken: v.InputCostPerToken, OutputCostPerToken: v.OutputCostPerToken}
		}
	}
	return info
}

// buildLimiter composes the parallel/dynamic/budget limiters spec §4.5
// describes into the single Limiter the Router consults. None are capped
// by default; PolicyStore-sourced per-key/per-team limits are applied by
// calling SetCap/SetBudget/SetModelGroupRPM once that collaborator exists.
func buildLimiter(cfg *config.Config) router.Limiter {
	parallel := router.NewParallelLimiter()
	dynamic := router.NewDynamicLimiter()
	budget := router.NewBudgetLimiter(24 * time.Hour)
	return router.NewCompositeLimiter(parallel, dynamic, budget)
}

// mcpServerConfig converts one mcp_servers[] YAML entry into mcp.ServerConfig.
func mcpServerConfig(e config.MCPServerEntry) mcp.ServerConfig {
	toolCosts := make(map[string]float64, len(e.ToolCost))
	for _, tc := range e.ToolCost {
		toolCosts[tc.ToolName] = tc.Cost
	}
	return mcp.ServerConfig{
		ID:                 e.ServerName,
		Transport:           mcp.Transport(e.Transport),
		URL:                e.URL,
		Command:            e.Command,
		Args:               e.Args,
		AccessGroups:       e.AccessGroups,
		ForwardableHeaders: e.ForwardableHeaders,
		ToolCostPerCall:    e.ServerCostPerCall,
		ToolCosts:          toolCosts,
	}
}
