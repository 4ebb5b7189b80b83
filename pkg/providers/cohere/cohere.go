// Package cohere adapts Cohere's rerank and embed endpoints, following the
// same raw-HTTP-plus-httpclient.Client pattern as the openai and anthropic
// adapters (grounded on kadirpekel/hector's pkg/llms providers), extended
// here to the RerankAdapter capability the spec's gateway needs for
// /rerank (spec §4.2's capability-set list item) that no hector provider
// exercises on its own.
package cohere

import (
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

const defaultAPIBase = "https://api.cohere.com"

type Provider struct {
	httpClient *httpclient.Client
}

func New() *Provider {
	return &Provider{
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(2*time.Second),
			httpclient.WithHeaderParser(httpclient.ParseCohereHeaders),
		),
	}
}

func (p *Provider) Name() string { return "cohere" }

func (p *Provider) Capabilities() []providers.Capability {
	return []providers.Capability{providers.CapRerank, providers.CapEmbedding}
}

func apiBase(dep *llm.Deployment) string {
	if dep.APIBase != "" {
		return strings.TrimRight(dep.APIBase, "/")
	}
	return defaultAPIBase
}

func (p *Provider) do(ctx context.Context, dep *llm.Deployment, path string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, apierrors.Wrap(apierrors.InternalError, err, "marshal cohere request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase(dep)+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, apierrors.Wrap(apierrors.InternalError, err, "build cohere request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(dep.APIKey))

	resp, err := p.httpClient.Do(httpReq)
	if err != nil && resp == nil {
		return nil, 0, apierrors.Wrap(apierrors.UpstreamError, err, "cohere request failed")
	}
	defer resp.Body.Close()
	bodyBytes, _ := io.ReadAll(resp.Body)
	return bodyBytes, resp.StatusCode, nil
}

// Rerank implements providers.RerankAdapter.
func (p *Provider) Rerank(ctx context.Context, dep *llm.Deployment, query string, documents []string, topN int) ([]providers.RerankResult, error) {
	payload := map[string]any{
		"model":     dep.Model,
		"query":     query,
		"documents": documents,
	}
	if topN > 0 {
		payload["top_n"] = topN
	}
	bodyBytes, status, err := p.do(ctx, dep, "/v1/rerank", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, p.MapError(status, bodyBytes)
	}
	var parsed struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, apierrors.Wrap(apierrors.UpstreamError, err, "decode cohere rerank response")
	}
	out := make([]providers.RerankResult, len(parsed.Results))
	for i, r := range parsed.Results {
		out[i] = providers.RerankResult{Index: r.Index, RelevanceScore: r.RelevanceScore}
	}
	return out, nil
}

// Embed implements providers.EmbeddingAdapter.
func (p *Provider) Embed(ctx context.Context, dep *llm.Deployment, inputs []string) ([][]float64, llm.Usage, error) {
	payload := map[string]any{
		"model":      dep.Model,
		"texts":      inputs,
		"input_type": "search_document",
	}
	bodyBytes, status, err := p.do(ctx, dep, "/v1/embed", payload)
	if err != nil {
		return nil, llm.Usage{}, err
	}
	if status != http.StatusOK {
		return nil, llm.Usage{}, p.MapError(status, bodyBytes)
	}
	var parsed struct {
		Embeddings [][]float64 `json:"embeddings"`
		Meta       struct {
			BilledUnits struct {
				InputTokens int `json:"input_tokens"`
			} `json:"billed_units"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, llm.Usage{}, apierrors.Wrap(apierrors.UpstreamError, err, "decode cohere embed response")
	}
	usage := llm.Usage{PromptTokens: parsed.Meta.BilledUnits.InputTokens}
	usage.Normalize()
	return parsed.Embeddings, usage, nil
}

func (p *Provider) MapError(statusCode int, body []byte) *apierrors.Error {
	var parsed struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &parsed)
	msg := parsed.Message
	if msg == "" {
		msg = fmt.Sprintf("cohere error (HTTP %d)", statusCode)
	}
	kind := apierrors.UpstreamError
	switch statusCode {
	case http.StatusBadRequest:
		kind = apierrors.BadRequest
	case http.StatusUnauthorized:
		kind = apierrors.AuthenticationError
	case http.StatusTooManyRequests:
		kind = apierrors.RateLimited
	case http.StatusNotFound:
		kind = apierrors.NotFound
	}
	return &apierrors.Error{Kind: kind, Message: msg}
}
