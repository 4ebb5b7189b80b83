// Package config loads the gateway's YAML configuration file (spec §6):
// model_list, router_settings, litellm_settings, general_settings,
// guardrails, mcp_servers, and environment_variables. The overall
// load-then-decode-then-default-then-validate shape, and the
// map[string]*T-keyed top level, are grounded on kadirpekel/hector's
// pkg/config.Config / Loader — this file replaces hector's agent/RAG
// schema with the gateway's deployment/routing/guardrail schema while
// keeping its SetDefaults/Validate/accessor conventions.
package config

import (
	"fmt"
	"strings"

	"github.com/litellm-go/gateway/pkg/observability"
)

// ModelInfo is the model_list[].model_info block: pricing and capability
// metadata for one deployment (spec §6, §4.6).
type ModelInfo struct {
	Mode                  string         `yaml:"mode,omitempty"`
	InputCostPerToken     float64        `yaml:"input_cost_per_token,omitempty"`
	OutputCostPerToken    float64        `yaml:"output_cost_per_token,omitempty"`
	CacheReadCostPerToken float64        `yaml:"cache_read_cost_per_token,omitempty"`
	CacheWriteCostPerToken float64       `yaml:"cache_write_cost_per_token,omitempty"`
	ReasoningCostPerToken float64        `yaml:"reasoning_cost_per_token,omitempty"`
	SupportsVision        bool           `yaml:"supports_vision,omitempty"`
	SupportsToolChoice    bool           `yaml:"supports_tool_choice,omitempty"`
	SupportsStreaming     bool           `yaml:"supports_streaming,omitempty"`
	MaxInputTokens        int            `yaml:"max_input_tokens,omitempty"`
	MaxOutputTokens       int            `yaml:"max_output_tokens,omitempty"`
	Tiers                 map[int]Tier   `yaml:"tiers,omitempty"`
}

// Tier is one above_Nk_tokens pricing tier (spec §4.6).
type Tier struct {
	InputCostPerToken  float64 `yaml:"input_cost_per_token"`
	OutputCostPerToken float64 `yaml:"output_cost_per_token"`
}

// LiteLLMParams is the model_list[].litellm_params block: the provider
// adapter connection details for one deployment.
type LiteLLMParams struct {
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`
	APIBase  string `yaml:"api_base,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Timeout  string `yaml:"timeout,omitempty"`
	RPM      int    `yaml:"rpm,omitempty"`
	TPM      int    `yaml:"tpm,omitempty"`
}

// ModelListEntry is one element of model_list[] (spec §6).
type ModelListEntry struct {
	ModelName     string        `yaml:"model_name"`
	LiteLLMParams LiteLLMParams `yaml:"litellm_params"`
	ModelInfo     ModelInfo     `yaml:"model_info,omitempty"`
}

func (m *ModelListEntry) Validate() error {
	if m.ModelName == "" {
		return fmt.Errorf("model_name is required")
	}
	if m.LiteLLMParams.Model == "" {
		return fmt.Errorf("litellm_params.model is required")
	}
	return nil
}

// RouterSettings is the router_settings block (spec §4.5, §6).
type RouterSettings struct {
	RoutingStrategy string              `yaml:"routing_strategy,omitempty"`
	NumRetries      int                 `yaml:"num_retries,omitempty"`
	RequestTimeout  string              `yaml:"request_timeout,omitempty"`
	CooldownTime    string              `yaml:"cooldown_time,omitempty"`
	Fallbacks       []map[string][]string `yaml:"fallbacks,omitempty"`
	AllowedFails    int                 `yaml:"allowed_fails,omitempty"`
}

func (r *RouterSettings) SetDefaults() {
	if r.RoutingStrategy == "" {
		r.RoutingStrategy = "simple-shuffle"
	}
	if r.NumRetries == 0 {
		r.NumRetries = 2
	}
	if r.RequestTimeout == "" {
		r.RequestTimeout = "600s"
	}
	if r.CooldownTime == "" {
		r.CooldownTime = "60s"
	}
}

var validRoutingStrategies = map[string]bool{
	"simple-shuffle":          true,
	"least-busy":              true,
	"usage-based-routing-v2":  true,
	"latency-based-routing":   true,
	"lowest-cost":             true,
}

func (r *RouterSettings) Validate() error {
	if r.RoutingStrategy != "" && !validRoutingStrategies[r.RoutingStrategy] {
		return fmt.Errorf("unknown routing_strategy %q", r.RoutingStrategy)
	}
	return nil
}

// LiteLLMSettings is the litellm_settings block (spec §6).
type LiteLLMSettings struct {
	DropParams                  bool     `yaml:"drop_params,omitempty"`
	SetVerbose                  bool     `yaml:"set_verbose,omitempty"`
	ForwardClientHeadersToLLMAPI []string `yaml:"forward_client_headers_to_llm_api,omitempty"`
	ModifyParams                bool     `yaml:"modify_params,omitempty"`
}

// GeneralSettings is the general_settings block (spec §6).
type GeneralSettings struct {
	MasterKey         string   `yaml:"master_key,omitempty"`
	DatabaseURL       string   `yaml:"database_url,omitempty"`
	Alerting          []string `yaml:"alerting,omitempty"`
	DisableSpendLogs  bool     `yaml:"disable_spend_logs,omitempty"`
	MaxRequestSizeMB  int      `yaml:"max_request_size_mb,omitempty"`
	SpendLogDir       string   `yaml:"spend_log_dir,omitempty"` // enables the local JSONL file LoggingSink
}

func (g *GeneralSettings) SetDefaults() {
	if g.MaxRequestSizeMB == 0 {
		g.MaxRequestSizeMB = 50
	}
}

// GuardrailLiteLLMParams is guardrails[].litellm_params (spec §4.4, §6).
// Guardrail names the backend kind; this gateway ships two built-in
// content-filter kinds ("pii", "keyword") and treats any other name as an
// externally-specified backend the hook contract describes but this
// module doesn't implement (spec's Non-goals: "only the hook contract is
// specified" for concrete third-party guardrail backends).
type GuardrailLiteLLMParams struct {
	Guardrail   string   `yaml:"guardrail"`
	Mode        string   `yaml:"mode"` // pre_call, during_call, post_call (comma-separated for multiple)
	APIKey      string   `yaml:"api_key,omitempty"`
	APIBase     string   `yaml:"api_base,omitempty"`
	DefaultOn   bool     `yaml:"default_on,omitempty"`
	Keywords    []string `yaml:"keywords,omitempty"`     // guardrail: keyword
	PIIEntities []string `yaml:"pii_entities,omitempty"` // guardrail: pii; empty enables every built-in pattern
}

// GuardrailEntry is one element of guardrails[] (spec §6).
type GuardrailEntry struct {
	GuardrailName string                 `yaml:"guardrail_name"`
	LiteLLMParams GuardrailLiteLLMParams `yaml:"litellm_params"`
}

func (g *GuardrailEntry) Validate() error {
	if g.GuardrailName == "" {
		return fmt.Errorf("guardrail_name is required")
	}
	if g.LiteLLMParams.Mode == "" {
		return fmt.Errorf("guardrail %q: litellm_params.mode is required", g.GuardrailName)
	}
	return nil
}

// ToolCostEntry is one mcp_servers[].tool_cost[] element: a per-tool price
// override (spec §4.6, §6).
type ToolCostEntry struct {
	ToolName string  `yaml:"tool_name"`
	Cost     float64 `yaml:"cost"`
}

// MCPServerEntry is one element of mcp_servers[] (spec §4.7, §6).
type MCPServerEntry struct {
	ServerName         string          `yaml:"server_name"`
	Transport          string          `yaml:"transport"` // sse, streamable-http, stdio
	URL                string          `yaml:"url,omitempty"`
	Command            string          `yaml:"command,omitempty"`
	Args               []string        `yaml:"args,omitempty"`
	Auth               string          `yaml:"auth,omitempty"`
	AllowedTools       []string        `yaml:"allowed_tools,omitempty"`
	AccessGroups       []string        `yaml:"access_groups,omitempty"`
	ForwardableHeaders []string        `yaml:"forwardable_headers,omitempty"`
	ToolCost           []ToolCostEntry `yaml:"tool_cost,omitempty"`
	ServerCostPerCall  float64         `yaml:"server_cost_per_call,omitempty"`
}

func (m *MCPServerEntry) Validate() error {
	if m.ServerName == "" {
		return fmt.Errorf("server_name is required")
	}
	if strings.Contains(m.ServerName, "-") {
		return fmt.Errorf("mcp server %q: server_name must not contain '-' (reserved as the tool namespace separator)", m.ServerName)
	}
	if m.URL == "" && m.Command == "" {
		return fmt.Errorf("mcp server %q: either url or command is required", m.ServerName)
	}
	return nil
}

// Config is the root gateway configuration (spec §6).
type Config struct {
	ModelList            []ModelListEntry  `yaml:"model_list,omitempty"`
	RouterSettings       RouterSettings    `yaml:"router_settings,omitempty"`
	LiteLLMSettings      LiteLLMSettings   `yaml:"litellm_settings,omitempty"`
	GeneralSettings      GeneralSettings   `yaml:"general_settings,omitempty"`
	Guardrails           []GuardrailEntry      `yaml:"guardrails,omitempty"`
	MCPServers           []MCPServerEntry      `yaml:"mcp_servers,omitempty"`
	EnvironmentVariables map[string]string     `yaml:"environment_variables,omitempty"`
	Observability        observability.Config  `yaml:"observability,omitempty"`
}

// SetDefaults fills in every section's defaults.
func (c *Config) SetDefaults() {
	c.RouterSettings.SetDefaults()
	c.GeneralSettings.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks every section and cross-references model groups named in
// router_settings.fallbacks against model_list.
func (c *Config) Validate() error {
	var errs []string

	modelNames := make(map[string]bool, len(c.ModelList))
	for i := range c.ModelList {
		if err := c.ModelList[i].Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("model_list[%d]: %v", i, err))
			continue
		}
		modelNames[c.ModelList[i].ModelName] = true
	}

	if err := c.RouterSettings.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("router_settings: %v", err))
	}

	for _, fallback := range c.RouterSettings.Fallbacks {
		for model, chain := range fallback {
			if !modelNames[model] {
				errs = append(errs, fmt.Sprintf("router_settings.fallbacks references undefined model %q", model))
			}
			for _, fb := range chain {
				if !modelNames[fb] {
					errs = append(errs, fmt.Sprintf("router_settings.fallbacks[%q] references undefined fallback model %q", model, fb))
				}
			}
		}
	}

	for i := range c.Guardrails {
		if err := c.Guardrails[i].Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("guardrails[%d]: %v", i, err))
		}
	}

	seenServerNames := make(map[string]bool, len(c.MCPServers))
	for i := range c.MCPServers {
		if err := c.MCPServers[i].Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("mcp_servers[%d]: %v", i, err))
			continue
		}
		name := c.MCPServers[i].ServerName
		if seenServerNames[name] {
			errs = append(errs, fmt.Sprintf("mcp_servers: duplicate server_name %q", name))
		}
		seenServerNames[name] = true
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("observability: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ModelGroups groups model_list entries by ModelName, the shape the Router
// needs to build a deployment pool per model group.
func (c *Config) ModelGroups() map[string][]ModelListEntry {
	groups := make(map[string][]ModelListEntry)
	for _, m := range c.ModelList {
		groups[m.ModelName] = append(groups[m.ModelName], m)
	}
	return groups
}

// GetMCPServer returns the named mcp_servers[] entry, or false.
func (c *Config) GetMCPServer(name string) (*MCPServerEntry, bool) {
	for i := range c.MCPServers {
		if c.MCPServers[i].ServerName == name {
			return &c.MCPServers[i], true
		}
	}
	return nil, false
}
