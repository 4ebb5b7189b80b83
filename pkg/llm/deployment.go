package llm

// ModelInfo carries pricing and capability metadata for one model, per
// spec §3. Tiered pricing entries override the base per-token rates once
// prompt tokens exceed the threshold.
type ModelInfo struct {
	ContextWindow     int `yaml:"context_window,omitempty" json:"context_window,omitempty"`
	MaxInputTokens    int `yaml:"max_input_tokens,omitempty" json:"max_input_tokens,omitempty"`
	MaxOutputTokens   int `yaml:"max_output_tokens,omitempty" json:"max_output_tokens,omitempty"`

	InputCostPerToken       float64 `yaml:"input_cost_per_token,omitempty" json:"input_cost_per_token,omitempty"`
	OutputCostPerToken      float64 `yaml:"output_cost_per_token,omitempty" json:"output_cost_per_token,omitempty"`
	ReasoningCostPerToken   float64 `yaml:"reasoning_cost_per_token,omitempty" json:"reasoning_cost_per_token,omitempty"`
	CacheReadCostPerToken   float64 `yaml:"cache_read_input_token_cost,omitempty" json:"cache_read_input_token_cost,omitempty"`
	CacheWriteCostPerToken  float64 `yaml:"cache_creation_input_token_cost,omitempty" json:"cache_creation_input_token_cost,omitempty"`

	ImageCostPerUnit float64 `yaml:"image_cost_per_unit,omitempty" json:"image_cost_per_unit,omitempty"`
	AudioCostPerUnit float64 `yaml:"audio_cost_per_unit,omitempty" json:"audio_cost_per_unit,omitempty"`
	FileCostPerUnit  float64 `yaml:"file_cost_per_unit,omitempty" json:"file_cost_per_unit,omitempty"`

	// Tiers holds ascending above_Nk_tokens overrides, e.g. {200: {Input: 6e-6}}
	// keyed by the threshold in units of 1000 tokens (spec §4.6 / §8 scenario 5).
	Tiers map[int]PriceTier `yaml:"tiers,omitempty" json:"tiers,omitempty"`

	SupportsFunctionCalling bool `yaml:"supports_function_calling,omitempty" json:"supports_function_calling,omitempty"`
	SupportsVision          bool `yaml:"supports_vision,omitempty" json:"supports_vision,omitempty"`
	SupportsReasoning       bool `yaml:"supports_reasoning,omitempty" json:"supports_reasoning,omitempty"`
	SupportsPDFInput        bool `yaml:"supports_pdf_input,omitempty" json:"supports_pdf_input,omitempty"`
	SupportsToolChoice      bool `yaml:"supports_tool_choice,omitempty" json:"supports_tool_choice,omitempty"`
	SupportsResponseFormat  bool `yaml:"supports_response_format,omitempty" json:"supports_response_format,omitempty"`
	SupportsStreaming       bool `yaml:"supports_streaming,omitempty" json:"supports_streaming,omitempty"`
	SupportsAudioInput      bool `yaml:"supports_audio_input,omitempty" json:"supports_audio_input,omitempty"`
	SupportsAudioOutput     bool `yaml:"supports_audio_output,omitempty" json:"supports_audio_output,omitempty"`
	SupportsPromptCaching   bool `yaml:"supports_prompt_caching,omitempty" json:"supports_prompt_caching,omitempty"`
	SupportsWebSearch       bool `yaml:"supports_web_search,omitempty" json:"supports_web_search,omitempty"`
}

// PriceTier overrides base rates once the threshold (in thousands of input
// tokens) is crossed.
type PriceTier struct {
	InputCostPerToken  float64 `yaml:"input_cost_per_token" json:"input_cost_per_token"`
	OutputCostPerToken float64 `yaml:"output_cost_per_token" json:"output_cost_per_token"`
}

// Deployment is a concrete (provider, model, credentials, endpoint) tuple
// (spec §3). Deployments sharing ModelName form a model group, load-balanced
// by the router.
type Deployment struct {
	ID        string `yaml:"-" json:"id"`
	ModelName string `yaml:"model_name" json:"model_name"`

	Provider string `yaml:"provider" json:"provider"` // "openai", "anthropic", "gemini", "bedrock", "cohere", "sap", ...
	Model    string `yaml:"model" json:"model"`       // provider-native model id

	APIKey  string `yaml:"api_key,omitempty" json:"-"`
	APIBase string `yaml:"api_base,omitempty" json:"api_base,omitempty"`
	Region  string `yaml:"region,omitempty" json:"region,omitempty"`
	Project string `yaml:"project,omitempty" json:"project,omitempty"`

	// ServiceKey is the SAP-style single-blob credential alternative to
	// discrete env vars (spec §4.1 item 4).
	ServiceKey string `yaml:"service_key,omitempty" json:"-"`

	// ExtraParams are forwarded verbatim into the provider request body.
	ExtraParams map[string]any `yaml:"params,omitempty" json:"params,omitempty"`

	Info ModelInfo `yaml:"model_info,omitempty" json:"model_info,omitempty"`

	// Weight influences lowest-cost / usage-based selection tie-breaking.
	Weight int `yaml:"weight,omitempty" json:"weight,omitempty"`
}

// RPMCapacity returns the configured requests-per-minute ceiling for this
// deployment, defaulting to 0 (unbounded) when unset.
func (d *Deployment) RPMCapacity() int {
	if v, ok := d.ExtraParams["rpm"].(int); ok {
		return v
	}
	return 0
}
