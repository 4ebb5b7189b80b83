// Package providers defines the Adapter capability set (spec §4.2) and the
// translation helpers shared across concrete per-provider adapters. Adapters
// are flat structs implementing the capabilities they support — no
// base-class hierarchy (spec §9 "deep inheritance -> capability set"),
// mirroring how kadirpekel/hector's pkg/llms adapters each implement
// LLMProvider directly rather than extending a shared base type.
package providers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/llm"
)

// Capability names one operation an Adapter may support.
type Capability string

const (
	CapChat            Capability = "chat"
	CapChatStream      Capability = "chat_stream"
	CapEmbedding       Capability = "embedding"
	CapRerank          Capability = "rerank"
	CapImageGenerate   Capability = "image_generate"
	CapImageEdit       Capability = "image_edit"
	CapAudioSpeech     Capability = "audio_speech"
	CapAudioTranscribe Capability = "audio_transcribe"
	CapResponses       Capability = "responses"
	CapMessages        Capability = "messages"
	CapVideoGenerate   Capability = "video_generate"
	CapVideoFetch      Capability = "video_fetch"
	CapSearch          Capability = "search"
	CapVectorSearch    Capability = "vector_search"
	CapCountTokens     Capability = "count_tokens"
	CapListModels      Capability = "list_models"
)

// ChatAdapter performs a non-streaming chat completion.
type ChatAdapter interface {
	Chat(ctx context.Context, dep *llm.Deployment, req *llm.Request) (*llm.Response, error)
}

// ChatStreamAdapter performs a streaming chat completion. The returned
// channel is a lazy, finite, non-restartable sequence terminated by a chunk
// carrying FinishReason (spec §4.3); closing ctx must stop upstream reads.
type ChatStreamAdapter interface {
	ChatStream(ctx context.Context, dep *llm.Deployment, req *llm.Request) (<-chan llm.StreamChunk, error)
}

// EmbeddingAdapter embeds a batch of inputs.
type EmbeddingAdapter interface {
	Embed(ctx context.Context, dep *llm.Deployment, inputs []string) ([][]float64, llm.Usage, error)
}

// RerankAdapter reorders documents by relevance to a query.
type RerankAdapter interface {
	Rerank(ctx context.Context, dep *llm.Deployment, query string, documents []string, topN int) ([]RerankResult, error)
}

// RerankResult is one reranked document with its relevance score.
type RerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Adapter is the union every concrete provider type implements a subset of.
// The router and endpoint handlers type-assert for the capability they need
// rather than requiring every method from every adapter (spec §4.2).
type Adapter interface {
	Name() string
	Capabilities() []Capability
	MapError(statusCode int, body []byte) *apierrors.Error
}

// Supports reports whether an Adapter implements a given Capability.
func Supports(a Adapter, c Capability) bool {
	for _, got := range a.Capabilities() {
		if got == c {
			return true
		}
	}
	return false
}

// CollapseSystemMessages implements the "system prompt placement" rule
// (spec §4.2): collapse every leading system message into a single string,
// returning it alongside the remaining non-system messages. Anthropic and
// Bedrock Converse adapters call this directly; Gemini also calls it and
// sends the result in its systemInstruction field.
func CollapseSystemMessages(messages []llm.Message) (system string, rest []llm.Message) {
	i := 0
	for i < len(messages) && messages[i].Role == llm.RoleSystem {
		if system != "" {
			system += "\n\n"
		}
		system += messages[i].Content.String()
		i++
	}
	return system, messages[i:]
}

// StripUnsupportedSchemaKeywords implements "tool schema normalization"
// (spec §4.2): removes JSON-Schema keywords a target provider rejects. The
// transformation is idempotent — calling it twice is a no-op on the second
// call, which lets adapters apply it defensively without tracking whether a
// schema was already normalized.
func StripUnsupportedSchemaKeywords(schema map[string]any, drop ...string) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	dropSet := make(map[string]bool, len(drop))
	for _, d := range drop {
		dropSet[d] = true
	}
	for k, v := range schema {
		if dropSet[k] {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = StripUnsupportedSchemaKeywords(nested, drop...)
			continue
		}
		out[k] = v
	}
	return out
}

// ToolCallID assigns a deterministic id when bridging a numeric provider
// tool index (Gemini) into OpenAI-shaped string ids (spec §4.2 "tool-call
// identity"). Deterministic so that a tool_result message re-sent on a
// follow-up call maps back to the same id without server-side state.
func ToolCallID(index int, name string) string {
	h := fnv32(name)
	return "call_" + strconv.Itoa(index) + "_" + fmt.Sprintf("%08x", h)
}

func fnv32(s string) uint32 {
	const prime32 = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
