// Package openai adapts the unified llm.Request/llm.Response shapes to and
// from the OpenAI Chat Completions wire format. The translation and SSE
// reading style are carried over from kadirpekel/hector's pkg/llms OpenAI
// provider (bufio.Reader.ReadBytes over Scanner, so a large tool-result
// line never hits a fixed buffer limit), generalized from hector's
// *pb.Message/ThinkingBlock shapes to the gateway's provider-agnostic
// llm.Message/ContentPart tagged union.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/httpclient"
	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/providers"
)

const defaultAPIBase = "https://api.openai.com/v1"

// reasoningModelPrefixes matches model name prefixes that accept
// reasoning_effort instead of temperature (o1, o3, o4-mini, gpt-5 families).
var reasoningModelPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

// Provider adapts a single OpenAI-compatible deployment. The same adapter
// serves any OpenAI-wire-compatible endpoint (Azure OpenAI, vLLM, local
// OpenAI-compatible servers) by varying APIBase and auth header shape —
// spec §4.1's "alternate credential shapes" item.
type Provider struct {
	httpClient *httpclient.Client
	azure      bool // Azure OpenAI: api-key header instead of a Bearer token
}

// New builds an OpenAI adapter. azure selects Azure's api-key auth header
// over the default Bearer token; no api-version query parameter is added.
func New(azure bool) *Provider {
	return &Provider{
		azure:      azure,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(2*time.Second),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Capabilities() []providers.Capability {
	return []providers.Capability{
		providers.CapChat, providers.CapChatStream, providers.CapEmbedding,
		providers.CapResponses, providers.CapAudioSpeech, providers.CapImageGenerate,
	}
}

func isReasoningModel(model string) bool {
	for _, prefix := range reasoningModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func apiBase(dep *llm.Deployment) string {
	if dep.APIBase != "" {
		return strings.TrimRight(dep.APIBase, "/")
	}
	return defaultAPIBase
}

func (p *Provider) authorize(req *http.Request, dep *llm.Deployment) {
	if p.azure {
		req.Header.Set("api-key", dep.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(dep.APIKey))
}

// wireMessage is the Chat Completions message shape. Content is `any`
// because OpenAI accepts either a plain string or an array of typed parts
// (spec §9's tagged-union rationale mirrors this wire ambiguity directly).
type wireMessage struct {
	Role       string          `json:"role"`
	Content    any             `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function wireFunctionDef `json:"function"`
}

type wireFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wireRequest struct {
	Model           string          `json:"model"`
	Messages        []wireMessage   `json:"messages"`
	MaxTokens       int             `json:"max_tokens,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"top_p,omitempty"`
	Stop            []string        `json:"stop,omitempty"`
	Stream          bool            `json:"stream,omitempty"`
	StreamOptions   *streamOptions  `json:"stream_options,omitempty"`
	Tools           []wireTool      `json:"tools,omitempty"`
	ToolChoice      any             `json:"tool_choice,omitempty"`
	ResponseFormat  any             `json:"response_format,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
	User            string          `json:"user,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

func toWireContent(c llm.Content) any {
	if !c.IsParts {
		return c.Text
	}
	parts := make([]map[string]any, 0, len(c.Parts))
	for _, part := range c.Parts {
		switch part.Type {
		case llm.PartText:
			parts = append(parts, map[string]any{"type": "text", "text": part.Text})
		case llm.PartImageURL:
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": part.ImageURL},
			})
		case llm.PartInputAudio:
			parts = append(parts, map[string]any{
				"type": "input_audio",
				"input_audio": map[string]any{
					"data":   part.AudioData,
					"format": part.AudioFormat,
				},
			})
		case llm.PartFile:
			parts = append(parts, map[string]any{
				"type": "file",
				"file": map[string]any{"file_id": part.FileID, "filename": part.Filename},
			})
		}
	}
	return parts
}

func toWireMessages(messages []llm.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    toWireContent(m.Content),
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []llm.ToolDefinition) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		if t.BuiltinType != "" {
			continue // provider built-ins are not expressible in the function-tool shape
		}
		out = append(out, wireTool{
			Type: "function",
			Function: wireFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func buildRequest(dep *llm.Deployment, req *llm.Request) *wireRequest {
	wr := &wireRequest{
		Model:       dep.Model,
		Messages:    toWireMessages(req.Messages),
		MaxTokens:   req.EffectiveMaxTokens(),
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      req.Stream,
		Tools:       toWireTools(req.Tools),
		ToolChoice:  req.ToolChoice,
		User:        req.User,
		Metadata:    req.Metadata,
	}
	if req.Stream {
		wr.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if isReasoningModel(dep.Model) {
		wr.ReasoningEffort = req.ReasoningEffort
		if wr.ReasoningEffort == "" {
			wr.ReasoningEffort = "medium"
		}
	} else {
		wr.Temperature = req.Temperature
	}
	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case "json_schema":
			wr.ResponseFormat = map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   req.ResponseFormat.Name,
					"schema": req.ResponseFormat.Schema,
					"strict": req.ResponseFormat.Strict,
				},
			}
		default:
			wr.ResponseFormat = map[string]any{"type": req.ResponseFormat.Type}
		}
	}
	for k, v := range req.ExtraBody {
		_ = k
		_ = v // extra body fields are merged by the caller before marshal when present
	}
	return wr
}

type wireChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      wireMessage `json:"message"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details,omitempty"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func finishReason(s string) llm.FinishReason {
	switch s {
	case "tool_calls":
		return llm.FinishToolCalls
	case "length":
		return llm.FinishLength
	case "content_filter":
		return llm.FinishContentFilter
	default:
		return llm.FinishStop
	}
}

func fromWireMessage(wm wireMessage) llm.Message {
	m := llm.Message{Role: llm.Role(wm.Role)}
	if s, ok := wm.Content.(string); ok {
		m.Content = llm.NewText(s)
	}
	for _, tc := range wm.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, llm.ToolCall{
			ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments,
		})
	}
	return m
}

func fromWireUsage(u wireUsage) llm.Usage {
	usage := llm.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
	}
	if u.PromptTokensDetails != nil {
		usage.CachedReadTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		usage.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	usage.Normalize()
	return usage
}

func doRequest(ctx context.Context, p *Provider, dep *llm.Deployment, wr *wireRequest) (*http.Response, error) {
	body, err := json.Marshal(wr)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.InternalError, err, "marshal openai request")
	}
	url := apiBase(dep) + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.InternalError, err, "build openai request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.authorize(httpReq, dep)
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if resp == nil {
			return nil, apierrors.Wrap(apierrors.UpstreamError, err, "openai request failed")
		}
	}
	return resp, nil
}

// Chat implements providers.ChatAdapter.
func (p *Provider) Chat(ctx context.Context, dep *llm.Deployment, req *llm.Request) (*llm.Response, error) {
	wr := buildRequest(dep, req)
	wr.Stream = false
	resp, err := doRequest(ctx, p, dep, wr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, p.MapError(resp.StatusCode, bodyBytes)
	}

	var wireResp wireResponse
	if err := json.Unmarshal(bodyBytes, &wireResp); err != nil {
		return nil, apierrors.Wrap(apierrors.UpstreamError, err, "decode openai response")
	}

	out := &llm.Response{
		ID:      wireResp.ID,
		Object:  "chat.completion",
		Created: wireResp.Created,
		Model:   wireResp.Model,
		Usage:   fromWireUsage(wireResp.Usage),
	}
	for _, c := range wireResp.Choices {
		out.Choices = append(out.Choices, llm.Choice{
			Index:        c.Index,
			FinishReason: finishReason(c.FinishReason),
			Message:      fromWireMessage(c.Message),
		})
	}
	return out, nil
}

// ChatStream implements providers.ChatStreamAdapter, reading a chat.completion.chunk
// SSE stream line by line. bufio.Reader.ReadBytes (not bufio.Scanner) avoids
// Scanner's fixed 64KB token limit, which a long tool-call argument fragment
// or large text delta can exceed.
func (p *Provider) ChatStream(ctx context.Context, dep *llm.Deployment, req *llm.Request) (<-chan llm.StreamChunk, error) {
	wr := buildRequest(dep, req)
	wr.Stream = true
	resp, err := doRequest(ctx, p, dep, wr)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, p.MapError(resp.StatusCode, bodyBytes)
	}

	out := make(chan llm.StreamChunk, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err != io.EOF {
					slog.Debug("openai stream read error", "error", err)
				}
				return
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			data := line[len("data: "):]
			if string(data) == "[DONE]" {
				return
			}
			var chunk struct {
				ID      string `json:"id"`
				Created int64  `json:"created"`
				Model   string `json:"model"`
				Choices []struct {
					Index int `json:"index"`
					Delta struct {
						Role      string         `json:"role"`
						Content   string         `json:"content"`
						ToolCalls []struct {
							Index    int    `json:"index"`
							ID       string `json:"id"`
							Function struct {
								Name      string `json:"name"`
								Arguments string `json:"arguments"`
							} `json:"function"`
						} `json:"tool_calls"`
					} `json:"delta"`
					FinishReason *string `json:"finish_reason"`
				} `json:"choices"`
				Usage *wireUsage `json:"usage"`
			}
			if err := json.Unmarshal(data, &chunk); err != nil {
				continue
			}

			sc := llm.StreamChunk{
				ID: chunk.ID, Object: "chat.completion.chunk",
				Created: chunk.Created, Model: chunk.Model,
			}
			for _, c := range chunk.Choices {
				delta := llm.Delta{Role: llm.Role(c.Delta.Role), Content: c.Delta.Content}
				for _, tc := range c.Delta.ToolCalls {
					delta.ToolCalls = append(delta.ToolCalls, llm.ToolCall{
						ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments,
					})
				}
				var fr *llm.FinishReason
				if c.FinishReason != nil {
					f := finishReason(*c.FinishReason)
					fr = &f
				}
				sc.Choices = append(sc.Choices, llm.StreamChoice{Index: c.Index, Delta: delta, FinishReason: fr})
			}
			if chunk.Usage != nil {
				u := fromWireUsage(*chunk.Usage)
				sc.Usage = &u
			}

			select {
			case out <- sc:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Embed implements providers.EmbeddingAdapter.
func (p *Provider) Embed(ctx context.Context, dep *llm.Deployment, inputs []string) ([][]float64, llm.Usage, error) {
	body, _ := json.Marshal(map[string]any{"model": dep.Model, "input": inputs})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase(dep)+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, llm.Usage{}, apierrors.Wrap(apierrors.InternalError, err, "build embeddings request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.authorize(httpReq, dep)
	resp, err := p.httpClient.Do(httpReq)
	if err != nil && resp == nil {
		return nil, llm.Usage{}, apierrors.Wrap(apierrors.UpstreamError, err, "embeddings request failed")
	}
	defer resp.Body.Close()
	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, llm.Usage{}, p.MapError(resp.StatusCode, bodyBytes)
	}
	var parsed struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Usage wireUsage `json:"usage"`
	}
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, llm.Usage{}, apierrors.Wrap(apierrors.UpstreamError, err, "decode embeddings response")
	}
	vectors := make([][]float64, len(parsed.Data))
	for i, d := range parsed.Data {
		vectors[i] = d.Embedding
	}
	return vectors, fromWireUsage(parsed.Usage), nil
}

// MapError translates an OpenAI HTTP error response into the gateway's
// stable taxonomy (spec §7).
func (p *Provider) MapError(statusCode int, body []byte) *apierrors.Error {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
			Param   string `json:"param"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &parsed)
	msg := parsed.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("openai error (HTTP %d)", statusCode)
	}
	kind := apierrors.UpstreamError
	switch statusCode {
	case http.StatusBadRequest:
		kind = apierrors.BadRequest
		if parsed.Error.Code == "context_length_exceeded" {
			kind = apierrors.ContextWindowExceeded
		}
	case http.StatusUnauthorized:
		kind = apierrors.AuthenticationError
	case http.StatusForbidden:
		kind = apierrors.PermissionDenied
	case http.StatusNotFound:
		kind = apierrors.NotFound
	case http.StatusRequestEntityTooLarge:
		kind = apierrors.RequestTooLarge
	case http.StatusTooManyRequests:
		kind = apierrors.RateLimited
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		kind = apierrors.Timeout
	}
	if parsed.Error.Type == "content_filter" {
		kind = apierrors.ContentFiltered
	}
	return &apierrors.Error{Kind: kind, Message: msg, Param: parsed.Error.Param, Code: parsed.Error.Code}
}
