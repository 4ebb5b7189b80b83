package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/llm"
)

func TestChatNonStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want Bearer sk-test", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"model":   "gpt-4o",
			"created": 1700000000,
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": "hello"},
				},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12},
		})
	}))
	defer server.Close()

	p := New(false)
	dep := &llm.Deployment{Model: "gpt-4o", APIKey: "sk-test", APIBase: server.URL}
	req := &llm.Request{Model: "gpt-4o", Messages: []llm.Message{
		{Role: llm.RoleUser, Content: llm.NewText("hi")},
	}}

	resp, err := p.Chat(context.Background(), dep, req)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("Choices len = %d, want 1", len(resp.Choices))
	}
	if resp.Choices[0].Message.Content.String() != "hello" {
		t.Errorf("content = %q, want hello", resp.Choices[0].Message.Content.String())
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("TotalTokens = %d, want 12", resp.Usage.TotalTokens)
	}
}

func TestMapErrorContextWindow(t *testing.T) {
	p := New(false)
	body := []byte(`{"error":{"message":"too long","code":"context_length_exceeded"}}`)
	got := p.MapError(http.StatusBadRequest, body)
	if got.Kind != apierrors.ContextWindowExceeded {
		t.Errorf("Kind = %v, want ContextWindowExceeded", got.Kind)
	}
}

func TestMapErrorRateLimited(t *testing.T) {
	p := New(false)
	got := p.MapError(http.StatusTooManyRequests, []byte(`{"error":{"message":"slow down"}}`))
	if got.Kind != apierrors.RateLimited {
		t.Errorf("Kind = %v, want RateLimited", got.Kind)
	}
	if !got.Retriable() {
		t.Error("RateLimited should be retriable")
	}
}

func TestBuildRequestReasoningModel(t *testing.T) {
	dep := &llm.Deployment{Model: "o3-mini"}
	temp := 0.5
	req := &llm.Request{ReasoningEffort: "", Temperature: &temp}
	wr := buildRequest(dep, req)
	if wr.ReasoningEffort != "medium" {
		t.Errorf("ReasoningEffort = %q, want default medium", wr.ReasoningEffort)
	}
	if wr.Temperature != nil {
		t.Error("Temperature should be omitted for reasoning models")
	}
}
