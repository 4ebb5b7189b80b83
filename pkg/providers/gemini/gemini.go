// Package gemini adapts the unified llm types to and from Google's
// generateContent/streamGenerateContent wire format, carried over from
// kadirpekel/hector's pkg/llms Gemini provider's URL-embedded API key
// convention and GeminiPart map[string]interface{} shape. Gemini has no
// tool-call id on the wire — only a function name and a positional index
// — so this adapter bridges one in with providers.ToolCallID, a
// deterministic-id helper.
package gemini

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

const defaultAPIBase = "https://generativelanguage.googleapis.com"

type Provider struct {
	httpClient *httpclient.Client
}

func New() *Provider {
	return &Provider{
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(2*time.Second),
			httpclient.WithHeaderParser(httpclient.ParseGeminiHeaders),
		),
	}
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Capabilities() []providers.Capability {
	return []providers.Capability{providers.CapChat, providers.CapChatStream, providers.CapEmbedding}
}

func apiBase(dep *llm.Deployment) string {
	if dep.APIBase != "" {
		return strings.TrimRight(dep.APIBase, "/")
	}
	return defaultAPIBase
}

type part map[string]any

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"topP,omitempty"`
	MaxOutputTokens  int            `json:"maxOutputTokens,omitempty"`
	StopSequences    []string       `json:"stopSequences,omitempty"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type toolSet struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations,omitempty"`
}

type wireRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []toolSet         `json:"tools,omitempty"`
}

// stripAnyOfType removes the `type` keyword when `anyOf` is present — Gemini's
// schema validator rejects the combination, unlike OpenAI/Anthropic (spec
// §4.2 "tool schema normalization", provider-specific variant).
func stripAnyOfType(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = v
	}
	if _, hasAnyOf := out["anyOf"]; hasAnyOf {
		delete(out, "type")
	}
	for k, v := range out {
		if nested, ok := v.(map[string]any); ok {
			out[k] = stripAnyOfType(nested)
		} else if list, ok := v.([]any); ok {
			newList := make([]any, len(list))
			for i, item := range list {
				if nestedMap, ok := item.(map[string]any); ok {
					newList[i] = stripAnyOfType(nestedMap)
				} else {
					newList[i] = item
				}
			}
			out[k] = newList
		}
	}
	return out
}

func toWireTools(tools []llm.ToolDefinition) []toolSet {
	var decls []functionDeclaration
	for _, t := range tools {
		if t.BuiltinType != "" {
			continue
		}
		decls = append(decls, functionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  stripAnyOfType(t.Parameters),
		})
	}
	if len(decls) == 0 {
		return nil
	}
	return []toolSet{{FunctionDeclarations: decls}}
}

// buildRequest implements the "system prompt placement" rule variant for
// Gemini (spec §4.2): the collapsed system text goes only into the
// dedicated systemInstruction field; it is not copied into any user turn.
func buildRequest(dep *llm.Deployment, req *llm.Request) wireRequest {
	system, rest := providers.CollapseSystemMessages(req.Messages)
	wr := wireRequest{Tools: toWireTools(req.Tools)}
	if system != "" {
		wr.SystemInstruction = &content{Role: "system", Parts: []part{{"text": system}}}
	}

	for _, m := range rest {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		c := content{Role: role}
		if m.Role == llm.RoleTool {
			c.Role = "user"
			c.Parts = append(c.Parts, part{"functionResponse": map[string]any{
				"name":     m.Name,
				"response": map[string]any{"result": m.Content.String()},
			}})
			wr.Contents = append(wr.Contents, c)
			continue
		}
		if !m.Content.IsParts && m.Content.Text != "" {
			c.Parts = append(c.Parts, part{"text": m.Content.Text})
		}
		for _, p := range m.Content.Parts {
			if p.Type == llm.PartText {
				c.Parts = append(c.Parts, part{"text": p.Text})
			}
		}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Arguments), &args)
			c.Parts = append(c.Parts, part{"functionCall": map[string]any{"name": tc.Name, "args": args}})
		}
		wr.Contents = append(wr.Contents, c)
	}

	gc := &generationConfig{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: req.EffectiveMaxTokens(),
		StopSequences:   req.Stop,
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" {
		gc.ResponseMimeType = "application/json"
		gc.ResponseSchema = stripAnyOfType(req.ResponseFormat.Schema)
	}
	wr.GenerationConfig = gc
	return wr
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

type wireResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func finishReasonFromGemini(s string) llm.FinishReason {
	switch s {
	case "MAX_TOKENS":
		return llm.FinishLength
	case "SAFETY", "RECITATION":
		return llm.FinishContentFilter
	default:
		return llm.FinishStop
	}
}

func fromCandidate(idx int, c candidate) llm.Choice {
	msg := llm.Message{Role: llm.RoleAssistant}
	var text strings.Builder
	funcIdx := 0
	for _, p := range c.Content.Parts {
		if t, ok := p["text"].(string); ok {
			text.WriteString(t)
		}
		if fc, ok := p["functionCall"].(map[string]any); ok {
			name, _ := fc["name"].(string)
			argsJSON, _ := json.Marshal(fc["args"])
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID: providers.ToolCallID(funcIdx, name), Name: name, Arguments: string(argsJSON),
			})
			funcIdx++
		}
	}
	msg.Content = llm.NewText(text.String())
	finish := finishReasonFromGemini(c.FinishReason)
	if len(msg.ToolCalls) > 0 {
		finish = llm.FinishToolCalls
	}
	return llm.Choice{Index: idx, FinishReason: finish, Message: msg}
}

func fromWireResponse(model string, wr wireResponse) *llm.Response {
	resp := &llm.Response{Object: "chat.completion", Model: model}
	for i, c := range wr.Candidates {
		resp.Choices = append(resp.Choices, fromCandidate(i, c))
	}
	if wr.UsageMetadata != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     wr.UsageMetadata.PromptTokenCount,
			CompletionTokens: wr.UsageMetadata.CandidatesTokenCount,
			CachedReadTokens: wr.UsageMetadata.CachedContentTokenCount,
		}
		resp.Usage.Normalize()
	}
	return resp
}

func (p *Provider) Chat(ctx context.Context, dep *llm.Deployment, req *llm.Request) (*llm.Response, error) {
	wr := buildRequest(dep, req)
	body, _ := json.Marshal(wr)
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", apiBase(dep), dep.Model, dep.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.InternalError, err, "build gemini request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil && resp == nil {
		return nil, apierrors.Wrap(apierrors.UpstreamError, err, "gemini request failed")
	}
	defer resp.Body.Close()
	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, p.MapError(resp.StatusCode, bodyBytes)
	}

	var wireResp wireResponse
	if err := json.Unmarshal(bodyBytes, &wireResp); err != nil {
		return nil, apierrors.Wrap(apierrors.UpstreamError, err, "decode gemini response")
	}
	if wireResp.Error != nil {
		return nil, p.MapError(wireResp.Error.Code, bodyBytes)
	}
	return fromWireResponse(dep.Model, wireResp), nil
}

func (p *Provider) ChatStream(ctx context.Context, dep *llm.Deployment, req *llm.Request) (<-chan llm.StreamChunk, error) {
	wr := buildRequest(dep, req)
	body, _ := json.Marshal(wr)
	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?key=%s&alt=sse", apiBase(dep), dep.Model, dep.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.InternalError, err, "build gemini stream request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil && resp == nil {
		return nil, apierrors.Wrap(apierrors.UpstreamError, err, "gemini stream request failed")
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
		funcIdx := 0
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			var wireResp wireResponse
			if err := json.Unmarshal(line[len("data: "):], &wireResp); err != nil {
				continue
			}
			for _, c := range wireResp.Candidates {
				delta := llm.Delta{}
				for _, part := range c.Content.Parts {
					if t, ok := part["text"].(string); ok {
						delta.Content += t
					}
					if fc, ok := part["functionCall"].(map[string]any); ok {
						name, _ := fc["name"].(string)
						argsJSON, _ := json.Marshal(fc["args"])
						delta.ToolCalls = append(delta.ToolCalls, llm.ToolCall{
							ID: providers.ToolCallID(funcIdx, name), Name: name, Arguments: string(argsJSON),
						})
						funcIdx++
					}
				}
				var fr *llm.FinishReason
				if c.FinishReason != "" {
					f := finishReasonFromGemini(c.FinishReason)
					fr = &f
				}
				chunk := llm.StreamChunk{Choices: []llm.StreamChoice{{Delta: delta, FinishReason: fr}}}
				if wireResp.UsageMetadata != nil {
					u := llm.Usage{
						PromptTokens:     wireResp.UsageMetadata.PromptTokenCount,
						CompletionTokens: wireResp.UsageMetadata.CandidatesTokenCount,
					}
					u.Normalize()
					chunk.Usage = &u
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (p *Provider) Embed(ctx context.Context, dep *llm.Deployment, inputs []string) ([][]float64, llm.Usage, error) {
	vectors := make([][]float64, len(inputs))
	var usage llm.Usage
	for i, in := range inputs {
		body, _ := json.Marshal(map[string]any{
			"model":   "models/" + dep.Model,
			"content": content{Parts: []part{{"text": in}}},
		})
		url := fmt.Sprintf("%s/v1beta/models/%s:embedContent?key=%s", apiBase(dep), dep.Model, dep.APIKey)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, usage, apierrors.Wrap(apierrors.InternalError, err, "build gemini embed request")
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := p.httpClient.Do(httpReq)
		if err != nil && resp == nil {
			return nil, usage, apierrors.Wrap(apierrors.UpstreamError, err, "gemini embed request failed")
		}
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return nil, usage, p.MapError(resp.StatusCode, bodyBytes)
		}
		var parsed struct {
			Embedding struct {
				Values []float64 `json:"values"`
			} `json:"embedding"`
		}
		if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
			return nil, usage, apierrors.Wrap(apierrors.UpstreamError, err, "decode gemini embed response")
		}
		vectors[i] = parsed.Embedding.Values
	}
	return vectors, usage, nil
}

func (p *Provider) MapError(statusCode int, body []byte) *apierrors.Error {
	var parsed struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &parsed)
	msg := parsed.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("gemini error (HTTP %d)", statusCode)
	}
	kind := apierrors.UpstreamError
	switch parsed.Error.Status {
	case "INVALID_ARGUMENT":
		kind = apierrors.BadRequest
	case "UNAUTHENTICATED":
		kind = apierrors.AuthenticationError
	case "PERMISSION_DENIED":
		kind = apierrors.PermissionDenied
	case "NOT_FOUND":
		kind = apierrors.NotFound
	case "RESOURCE_EXHAUSTED":
		kind = apierrors.RateLimited
	default:
		switch statusCode {
		case http.StatusTooManyRequests:
			kind = apierrors.RateLimited
		case http.StatusBadRequest:
			kind = apierrors.BadRequest
		case http.StatusUnauthorized:
			kind = apierrors.AuthenticationError
		}
	}
	return &apierrors.Error{Kind: kind, Message: msg}
}
