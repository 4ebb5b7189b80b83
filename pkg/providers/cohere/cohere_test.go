package cohere

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/llm"
)

func TestRerank(t *testing.T) {
	var gotPath string
	var gotTopN int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if n, ok := body["top_n"].(float64); ok {
			gotTopN = int(n)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 1, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.2},
			},
		})
	}))
	defer server.Close()

	p := New()
	dep := &llm.Deployment{Model: "rerank-english-v3.0", APIKey: "co-key", APIBase: server.URL}

	results, err := p.Rerank(context.Background(), dep, "query", []string{"doc a", "doc b"}, 2)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if gotPath != "/v1/rerank" {
		t.Errorf("path = %q, want /v1/rerank", gotPath)
	}
	if gotTopN != 2 {
		t.Errorf("top_n = %d, want 2", gotTopN)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Index != 1 || results[0].RelevanceScore != 0.9 {
		t.Errorf("results[0] = %+v", results[0])
	}
}

func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float64{{0.1, 0.2}, {0.3, 0.4}},
			"meta": map[string]any{
				"billed_units": map[string]any{"input_tokens": 7},
			},
		})
	}))
	defer server.Close()

	p := New()
	dep := &llm.Deployment{Model: "embed-english-v3.0", APIKey: "co-key", APIBase: server.URL}

	vectors, usage, err := p.Embed(context.Background(), dep, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("len(vectors) = %d, want 2", len(vectors))
	}
	if usage.PromptTokens != 7 {
		t.Errorf("usage.PromptTokens = %d, want 7", usage.PromptTokens)
	}
	if usage.TotalTokens != 7 {
		t.Errorf("usage.TotalTokens = %d, want 7 after Normalize", usage.TotalTokens)
	}
}

func TestMapErrorUnauthorized(t *testing.T) {
	p := New()
	body := []byte(`{"message":"invalid api token"}`)
	got := p.MapError(http.StatusUnauthorized, body)
	if got.Kind != apierrors.AuthenticationError {
		t.Errorf("kind = %v, want AuthenticationError", got.Kind)
	}
	if got.Message != "invalid api token" {
		t.Errorf("message = %q", got.Message)
	}
}

func TestMapErrorFallsBackToStatusCodeMessage(t *testing.T) {
	p := New()
	got := p.MapError(http.StatusInternalServerError, []byte(`not json`))
	if got.Message == "" {
		t.Error("expected a non-empty fallback message")
	}
}
