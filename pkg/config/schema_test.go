package config

import "testing"

func TestValidateRejectsModelListEntryMissingModelName(t *testing.T) {
	cfg := &Config{ModelList: []ModelListEntry{{LiteLLMParams: LiteLLMParams{Model: "gpt-4o"}}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing model_name")
	}
}

func TestValidateRejectsUnknownRoutingStrategy(t *testing.T) {
	cfg := &Config{RouterSettings: RouterSettings{RoutingStrategy: "bogus-strategy"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown routing_strategy")
	}
}

func TestValidateRejectsFallbackReferencingUndefinedModel(t *testing.T) {
	cfg := &Config{
		ModelList: []ModelListEntry{
			{ModelName: "gpt-4o", LiteLLMParams: LiteLLMParams{Model: "openai/gpt-4o"}},
		},
		RouterSettings: RouterSettings{
			Fallbacks: []map[string][]string{
				{"gpt-4o": {"azure/gpt-4o-eastus"}},
			},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for fallback referencing undefined model")
	}
}

func TestValidateRejectsMCPServerNameWithHyphen(t *testing.T) {
	cfg := &Config{MCPServers: []MCPServerEntry{{ServerName: "deep-wiki", URL: "http://example.invalid"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for server_name containing '-'")
	}
}

func TestValidateRejectsDuplicateMCPServerNames(t *testing.T) {
	cfg := &Config{MCPServers: []MCPServerEntry{
		{ServerName: "deepwiki", URL: "http://a.invalid"},
		{ServerName: "deepwiki", URL: "http://b.invalid"},
	}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate server_name")
	}
}

func TestSetDefaultsFillsRouterAndGeneralSettings(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.RouterSettings.RoutingStrategy != "simple-shuffle" {
		t.Errorf("RoutingStrategy = %q, want simple-shuffle", cfg.RouterSettings.RoutingStrategy)
	}
	if cfg.RouterSettings.NumRetries != 2 {
		t.Errorf("NumRetries = %d, want 2", cfg.RouterSettings.NumRetries)
	}
	if cfg.GeneralSettings.MaxRequestSizeMB != 50 {
		t.Errorf("MaxRequestSizeMB = %d, want 50", cfg.GeneralSettings.MaxRequestSizeMB)
	}
}

func TestModelGroupsGroupsByModelName(t *testing.T) {
	cfg := &Config{ModelList: []ModelListEntry{
		{ModelName: "gpt-4o", LiteLLMParams: LiteLLMParams{Model: "openai/gpt-4o"}},
		{ModelName: "gpt-4o", LiteLLMParams: LiteLLMParams{Model: "azure/gpt-4o-eastus"}},
		{ModelName: "claude-3", LiteLLMParams: LiteLLMParams{Model: "anthropic/claude-3"}},
	}}

	groups := cfg.ModelGroups()
	if len(groups["gpt-4o"]) != 2 {
		t.Errorf("gpt-4o group has %d entries, want 2", len(groups["gpt-4o"]))
	}
	if len(groups["claude-3"]) != 1 {
		t.Errorf("claude-3 group has %d entries, want 1", len(groups["claude-3"]))
	}
}
