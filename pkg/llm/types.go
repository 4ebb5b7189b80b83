// Package llm defines the provider-agnostic request/response shapes shared
// by every adapter, the router, the streaming bridge, and the cost engine.
// Content is modeled as a tagged union (spec §9 "dynamic typing -> tagged
// unions"): provider adapters pattern-match on Part.Type rather than relying
// on runtime type assertions spread across the codebase.
package llm

import "encoding/json"

// Role identifies who authored a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleDeveloper Role = "developer"
)

// PartType tags the variant of a ContentPart.
type PartType string

const (
	PartText              PartType = "text"
	PartImageURL           PartType = "image_url"
	PartInputAudio         PartType = "input_audio"
	PartFile               PartType = "file"
	PartToolUse            PartType = "tool_use"
	PartToolResult         PartType = "tool_result"
	PartThinking           PartType = "thinking"
	PartRedactedThinking   PartType = "redacted_thinking"
	PartCitation           PartType = "citation"
)

// ContentPart is one tagged-union member of a multi-part Message.Content.
// Only the fields relevant to Type are populated; adapters must switch on
// Type, never infer it from which fields are non-zero.
type ContentPart struct {
	Type PartType `json:"type"`

	// PartText
	Text string `json:"text,omitempty"`

	// PartImageURL: either a remote URL or a data: URI.
	ImageURL string `json:"image_url,omitempty"`

	// PartInputAudio
	AudioFormat string `json:"audio_format,omitempty"`
	AudioData   string `json:"audio_data,omitempty"` // base64

	// PartFile
	FileID   string `json:"file_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`

	// PartToolUse (assistant-authored tool invocation embedded in content,
	// distinct from Message.ToolCalls which carries the canonical list)
	ToolUseID   string          `json:"tool_use_id,omitempty"`
	ToolName    string          `json:"tool_name,omitempty"`
	ToolInput   json.RawMessage `json:"tool_input,omitempty"`

	// PartToolResult
	ToolResultForID string `json:"tool_result_for_id,omitempty"`
	ToolResultText  string `json:"tool_result_text,omitempty"`
	ToolResultError bool   `json:"tool_result_error,omitempty"`

	// PartThinking / PartRedactedThinking. RedactedThinking is opaque
	// provider-signed ciphertext and must be round-tripped verbatim.
	Thinking          string `json:"thinking,omitempty"`
	ThinkingSignature string `json:"thinking_signature,omitempty"`
	RedactedData      string `json:"redacted_data,omitempty"`

	// PartCitation
	CitationSource string `json:"citation_source,omitempty"`
	CitationText   string `json:"citation_text,omitempty"`
}

// Content is a tagged union: either a plain string or an ordered list of
// ContentParts. Exactly one of Text/Parts is meaningful, selected by IsParts.
type Content struct {
	Text    string
	Parts   []ContentPart
	IsParts bool
}

// NewText builds a plain-string Content.
func NewText(s string) Content { return Content{Text: s} }

// NewParts builds a multi-part Content.
func NewParts(parts ...ContentPart) Content { return Content{Parts: parts, IsParts: true} }

// String renders Content as a flat string, concatenating text-bearing parts.
// Used by the cost engine's fallback tokenizer and by logging redaction.
func (c Content) String() string {
	if !c.IsParts {
		return c.Text
	}
	out := ""
	for _, p := range c.Parts {
		switch p.Type {
		case PartText:
			out += p.Text
		case PartToolResult:
			out += p.ToolResultText
		}
	}
	return out
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsParts {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text, c.IsParts, c.Parts = s, false, nil
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	c.Parts, c.IsParts, c.Text = parts, true, ""
	return nil
}

// ToolCall is an assistant-requested function invocation.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON-encoded arguments
}

// Message is one conversational turn. Invariant (spec §3): a RoleTool
// message's ToolCallID must reference a prior assistant ToolCall.ID.
type Message struct {
	Role       Role       `json:"role"`
	Content    Content    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolDefinition describes a callable tool, including provider built-ins
// (tool_search_tool_regex_20251119, computer_use_preview, mcp) which are
// passed through by BuiltinType rather than Parameters.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	// BuiltinType, when non-empty, names a provider-native server tool; the
	// adapter emits its native wire shape instead of a generic function tool.
	BuiltinType string `json:"-"`

	// DeferLoading marks a tool for loading on demand via a tool-search tool
	// (spec §8 round-trip law). No adapter reads it: the tool's full schema
	// is sent like any other tool's.
	DeferLoading bool `json:"-"`
}

// ResponseFormat controls structured output (spec §3).
type ResponseFormat struct {
	Type   string         `json:"type"` // "text" | "json_object" | "json_schema"
	Name   string         `json:"name,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
	Strict bool           `json:"strict,omitempty"`
}

// Thinking requests extended/reasoning output (Claude-shaped).
type Thinking struct {
	Type         string `json:"type"` // "enabled"
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Request is the unified, OpenAI-shaped inbound request (spec §3).
type Request struct {
	Model            string            `json:"model"`
	Messages         []Message         `json:"messages"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	MaxOutputTokens  int               `json:"max_output_tokens,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	TopP             *float64          `json:"top_p,omitempty"`
	TopK             int               `json:"top_k,omitempty"`
	Stop             []string          `json:"stop,omitempty"`
	Stream           bool              `json:"stream,omitempty"`
	Tools            []ToolDefinition  `json:"tools,omitempty"`
	ToolChoice       any               `json:"tool_choice,omitempty"`
	ResponseFormat   *ResponseFormat   `json:"response_format,omitempty"`
	ReasoningEffort  string            `json:"reasoning_effort,omitempty"`
	ReasoningSummary string            `json:"reasoning_summary,omitempty"`
	Thinking         *Thinking         `json:"thinking,omitempty"`
	AudioVoice       string            `json:"-"`
	AudioFormat      string            `json:"-"`
	Modalities       []string          `json:"modalities,omitempty"`
	User             string            `json:"user,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	ExtraHeaders     map[string]string `json:"-"`
	ExtraBody        map[string]any    `json:"-"`

	// Overrides and per-call routing knobs; not forwarded to the provider.
	APIBase            string   `json:"-"`
	APIKey             string   `json:"-"`
	DropParams         bool     `json:"-"`
	Guardrails         []string `json:"-"`
	RequestTimeoutSecs int      `json:"-"`
}

// EffectiveMaxTokens returns MaxOutputTokens when set, else MaxTokens —
// adapters targeting the Responses API shape read this instead of picking
// one field and silently ignoring the other.
func (r *Request) EffectiveMaxTokens() int {
	if r.MaxOutputTokens > 0 {
		return r.MaxOutputTokens
	}
	return r.MaxTokens
}

// FinishReason is the stable, cross-provider completion reason.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolUse       FinishReason = "tool_use"
)

// ServerToolUse tracks provider-side tool invocations that accrue distinct
// pricing (web search, tool search, computer use) per spec §3/§4.6.
type ServerToolUse struct {
	ToolSearchRequests int `json:"tool_search_requests,omitempty"`
	WebSearchRequests  int `json:"web_search_requests,omitempty"`
}

// Usage invariant (spec §3): TotalTokens == Prompt + Completion + Reasoning;
// cached tokens are a subset of PromptTokens, never additive.
type Usage struct {
	PromptTokens      int           `json:"prompt_tokens"`
	CompletionTokens  int           `json:"completion_tokens"`
	ReasoningTokens   int           `json:"reasoning_tokens,omitempty"`
	CachedReadTokens  int           `json:"cached_read_tokens,omitempty"`
	CachedWriteTokens int           `json:"cached_write_tokens,omitempty"`
	TotalTokens       int           `json:"total_tokens"`
	ServerToolUse     ServerToolUse `json:"server_tool_use,omitempty"`
}

// Normalize recomputes TotalTokens from its components, enforcing the
// invariant rather than trusting whatever a provider reported.
func (u *Usage) Normalize() {
	u.TotalTokens = u.PromptTokens + u.CompletionTokens + u.ReasoningTokens
}

// Choice is one completion candidate.
type Choice struct {
	Index        int          `json:"index"`
	FinishReason FinishReason `json:"finish_reason"`
	Message      Message      `json:"message"`
}

// Response is the unified non-streaming completion result.
type Response struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Choices           []Choice `json:"choices"`
	Usage             Usage    `json:"usage"`
	ServiceTier       string   `json:"service_tier,omitempty"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`

	// HiddenParams carries internal fields never serialized to the wire by
	// default (spec §4.6: response._hidden_params.response_cost).
	HiddenParams HiddenParams `json:"-"`
}

// HiddenParams mirrors LiteLLM's `_hidden_params` internal envelope.
type HiddenParams struct {
	ResponseCost   float64 `json:"response_cost"`
	DeploymentID   string  `json:"deployment_id"`
	Provider       string  `json:"provider"`
	APIBase        string  `json:"api_base"`
	CacheHit       bool    `json:"cache_hit"`
	Retries        int     `json:"retries"`
}

// Delta is the incremental content of one StreamChunk (spec §3).
type Delta struct {
	Role             Role       `json:"role,omitempty"`
	Content          string     `json:"content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ThinkingBlocks   []ContentPart `json:"thinking_blocks,omitempty"`
}

// StreamChoice is one streamed choice slot.
type StreamChoice struct {
	Index        int           `json:"index"`
	Delta        Delta         `json:"delta"`
	FinishReason *FinishReason `json:"finish_reason,omitempty"`
}

// StreamChunk invariants (spec §3): ID stable across a stream; Role only on
// the first delta; FinishReason only on the terminal delta; Usage, when
// present, only on the terminal chunk.
type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}
