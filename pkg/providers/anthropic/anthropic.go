// Package anthropic adapts the unified llm types to and from the Claude
// Messages API wire format. The content_block_start/delta/stop SSE event
// state machine and JSON-fragment tool-argument accumulation are carried
// over from kadirpekel/hector's pkg/llms Anthropic provider.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/httpclient"
	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/providers"
)

const (
	defaultAPIBase   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// schemaKeywordsToStrip lists JSON-Schema keywords Anthropic's tool
// validator rejects when present in a `parameters` schema, mirroring the
// normalization spec §4.2 calls "tool schema normalization".
var schemaKeywordsToStrip = []string{"$schema", "$id", "additionalProperties"}

type Provider struct {
	httpClient *httpclient.Client
}

func New() *Provider {
	return &Provider{
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(2*time.Second),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Capabilities() []providers.Capability {
	return []providers.Capability{providers.CapChat, providers.CapChatStream, providers.CapMessages}
}

func apiBase(dep *llm.Deployment) string {
	if dep.APIBase != "" {
		return strings.TrimRight(dep.APIBase, "/")
	}
	return defaultAPIBase
}

type wireContentBlock struct {
	Type        string          `json:"type"`
	Text        string          `json:"text,omitempty"`
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	ToolUseID   string          `json:"tool_use_id,omitempty"`
	Content     string          `json:"content,omitempty"`
	IsError     bool            `json:"is_error,omitempty"`
	Thinking    string          `json:"thinking,omitempty"`
	Signature   string          `json:"signature,omitempty"`
	Data        string          `json:"data,omitempty"`
}

type wireMessage struct {
	Role    string             `json:"role"`
	Content []wireContentBlock `json:"content"`
}

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

type wireRequest struct {
	Model       string         `json:"model"`
	System      string         `json:"system,omitempty"`
	Messages    []wireMessage  `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature *float64       `json:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
	TopK        int            `json:"top_k,omitempty"`
	StopSeqs    []string       `json:"stop_sequences,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	Tools       []wireTool     `json:"tools,omitempty"`
	ToolChoice  any            `json:"tool_choice,omitempty"`
	Thinking    *wireThinking  `json:"thinking,omitempty"`
}

type wireThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

func toWireMessages(messages []llm.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Role: string(m.Role)}
		if m.Role == llm.RoleTool {
			wm.Role = "user"
			wm.Content = []wireContentBlock{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content.String(),
			}}
			out = append(out, wm)
			continue
		}
		if !m.Content.IsParts && m.Content.Text != "" {
			wm.Content = append(wm.Content, wireContentBlock{Type: "text", Text: m.Content.Text})
		}
		for _, part := range m.Content.Parts {
			switch part.Type {
			case llm.PartText:
				wm.Content = append(wm.Content, wireContentBlock{Type: "text", Text: part.Text})
			case llm.PartThinking:
				wm.Content = append(wm.Content, wireContentBlock{
					Type: "thinking", Thinking: part.Thinking, Signature: part.ThinkingSignature,
				})
			case llm.PartRedactedThinking:
				wm.Content = append(wm.Content, wireContentBlock{Type: "redacted_thinking", Data: part.RedactedData})
			}
		}
		for _, tc := range m.ToolCalls {
			wm.Content = append(wm.Content, wireContentBlock{
				Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: json.RawMessage(tc.Arguments),
			})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []llm.ToolDefinition) []wireTool {
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		if t.BuiltinType != "" {
			continue
		}
		out = append(out, wireTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: providers.StripUnsupportedSchemaKeywords(t.Parameters, schemaKeywordsToStrip...),
		})
	}
	return out
}

func buildRequest(dep *llm.Deployment, req *llm.Request) wireRequest {
	system, rest := providers.CollapseSystemMessages(req.Messages)
	wr := wireRequest{
		Model:       dep.Model,
		System:      system,
		Messages:    toWireMessages(rest),
		MaxTokens:   req.EffectiveMaxTokens(),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		StopSeqs:    req.Stop,
		Tools:       toWireTools(req.Tools),
		ToolChoice:  req.ToolChoice,
	}
	if wr.MaxTokens == 0 {
		wr.MaxTokens = 4096
	}
	if req.Thinking != nil {
		wr.Thinking = &wireThinking{Type: req.Thinking.Type, BudgetTokens: req.Thinking.BudgetTokens}
	}
	return wr
}

type wireResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Content    []wireContentBlock `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func stopReasonToFinish(s string) llm.FinishReason {
	switch s {
	case "tool_use":
		return llm.FinishToolUse
	case "max_tokens":
		return llm.FinishLength
	default:
		return llm.FinishStop
	}
}

func fromWireResponse(wr wireResponse) *llm.Response {
	msg := llm.Message{Role: llm.RoleAssistant}
	var parts []llm.ContentPart
	for _, b := range wr.Content {
		switch b.Type {
		case "text":
			parts = append(parts, llm.ContentPart{Type: llm.PartText, Text: b.Text})
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{ID: b.ID, Name: b.Name, Arguments: string(b.Input)})
		case "thinking":
			parts = append(parts, llm.ContentPart{Type: llm.PartThinking, Thinking: b.Thinking, ThinkingSignature: b.Signature})
		case "redacted_thinking":
			parts = append(parts, llm.ContentPart{Type: llm.PartRedactedThinking, RedactedData: b.Data})
		}
	}
	if len(parts) > 0 {
		msg.Content = llm.NewParts(parts...)
	}

	usage := llm.Usage{
		PromptTokens:      wr.Usage.InputTokens,
		CompletionTokens:  wr.Usage.OutputTokens,
		CachedReadTokens:  wr.Usage.CacheReadInputTokens,
		CachedWriteTokens: wr.Usage.CacheCreationInputTokens,
	}
	usage.Normalize()

	fr := stopReasonToFinish(wr.StopReason)
	if len(msg.ToolCalls) > 0 && fr == llm.FinishStop {
		fr = llm.FinishToolUse
	}

	return &llm.Response{
		ID: wr.ID, Object: "chat.completion", Model: wr.Model,
		Choices: []llm.Choice{{Index: 0, FinishReason: fr, Message: msg}},
		Usage:   usage,
	}
}

func (p *Provider) newHTTPRequest(ctx context.Context, dep *llm.Deployment, wr wireRequest) (*http.Request, error) {
	body, err := json.Marshal(wr)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.InternalError, err, "marshal anthropic request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase(dep)+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.InternalError, err, "build anthropic request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", dep.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	return httpReq, nil
}

func (p *Provider) Chat(ctx context.Context, dep *llm.Deployment, req *llm.Request) (*llm.Response, error) {
	wr := buildRequest(dep, req)
	wr.Stream = false
	httpReq, err := p.newHTTPRequest(ctx, dep, wr)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil && resp == nil {
		return nil, apierrors.Wrap(apierrors.UpstreamError, err, "anthropic request failed")
	}
	defer resp.Body.Close()
	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, p.MapError(resp.StatusCode, bodyBytes)
	}
	var wireResp wireResponse
	if err := json.Unmarshal(bodyBytes, &wireResp); err != nil {
		return nil, apierrors.Wrap(apierrors.UpstreamError, err, "decode anthropic response")
	}
	return fromWireResponse(wireResp), nil
}

// streamEvent mirrors the subset of Anthropic's SSE event shapes the
// state machine below switches on.
type streamEvent struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		Signature   string `json:"signature"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) ChatStream(ctx context.Context, dep *llm.Deployment, req *llm.Request) (<-chan llm.StreamChunk, error) {
	wr := buildRequest(dep, req)
	wr.Stream = true
	httpReq, err := p.newHTTPRequest(ctx, dep, wr)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil && resp == nil {
		return nil, apierrors.Wrap(apierrors.UpstreamError, err, "anthropic stream request failed")
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

		toolNames := make(map[int]string)
		toolIDs := make(map[int]string)
		toolJSON := make(map[int]*strings.Builder)
		var totalOut int

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev streamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}

			switch ev.Type {
			case "content_block_start":
				if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
					toolNames[ev.Index] = ev.ContentBlock.Name
					toolIDs[ev.Index] = ev.ContentBlock.ID
					toolJSON[ev.Index] = &strings.Builder{}
				}
			case "content_block_delta":
				if ev.Delta == nil {
					continue
				}
				if ev.Delta.Text != "" {
					emit(out, ctx, llm.Delta{Content: ev.Delta.Text}, nil)
				}
				if ev.Delta.Type == "input_json_delta" && ev.Delta.PartialJSON != "" {
					if b, ok := toolJSON[ev.Index]; ok {
						b.WriteString(ev.Delta.PartialJSON)
					}
				}
			case "content_block_stop":
				if b, ok := toolJSON[ev.Index]; ok {
					emit(out, ctx, llm.Delta{ToolCalls: []llm.ToolCall{{
						ID: toolIDs[ev.Index], Name: toolNames[ev.Index], Arguments: b.String(),
					}}}, nil)
				}
			case "message_delta":
				if ev.Usage != nil {
					totalOut = ev.Usage.OutputTokens
				}
			case "message_stop":
				finish := llm.FinishStop
				u := llm.Usage{CompletionTokens: totalOut}
				u.Normalize()
				emit(out, ctx, llm.Delta{}, &finish)
				select {
				case out <- llm.StreamChunk{Usage: &u}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return out, nil
}

func emit(out chan<- llm.StreamChunk, ctx context.Context, delta llm.Delta, finish *llm.FinishReason) {
	chunk := llm.StreamChunk{Choices: []llm.StreamChoice{{Delta: delta, FinishReason: finish}}}
	select {
	case out <- chunk:
	case <-ctx.Done():
	}
}

func (p *Provider) MapError(statusCode int, body []byte) *apierrors.Error {
	var parsed struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &parsed)
	msg := parsed.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("anthropic error (HTTP %d)", statusCode)
	}
	kind := apierrors.UpstreamError
	switch parsed.Error.Type {
	case "invalid_request_error":
		kind = apierrors.BadRequest
	case "authentication_error":
		kind = apierrors.AuthenticationError
	case "permission_error":
		kind = apierrors.PermissionDenied
	case "not_found_error":
		kind = apierrors.NotFound
	case "rate_limit_error":
		kind = apierrors.RateLimited
	case "overloaded_error":
		kind = apierrors.UpstreamError
	default:
		switch statusCode {
		case http.StatusTooManyRequests:
			kind = apierrors.RateLimited
		case http.StatusUnauthorized:
			kind = apierrors.AuthenticationError
		case http.StatusBadRequest:
			kind = apierrors.BadRequest
		}
	}
	if strings.Contains(msg, "prompt is too long") {
		kind = apierrors.ContextWindowExceeded
	}
	return &apierrors.Error{Kind: kind, Message: msg}
}
