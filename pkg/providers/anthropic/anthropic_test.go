package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/litellm-go/gateway/pkg/llm"
)

func TestChatCollapsesSystemMessages(t *testing.T) {
	var gotSystem string
	var gotMessages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotSystem, _ = body["system"].(string)
		if msgs, ok := body["messages"].([]any); ok {
			gotMessages = len(msgs)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"model":       "claude-3-5-sonnet",
			"stop_reason": "end_turn",
			"content":     []map[string]any{{"type": "text", "text": "hi"}},
			"usage":       map[string]any{"input_tokens": 5, "output_tokens": 1},
		})
	}))
	defer server.Close()

	p := New()
	dep := &llm.Deployment{Model: "claude-3-5-sonnet", APIKey: "sk-ant", APIBase: server.URL}
	req := &llm.Request{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: llm.NewText("be terse")},
		{Role: llm.RoleSystem, Content: llm.NewText("never apologize")},
		{Role: llm.RoleUser, Content: llm.NewText("hello")},
	}}

	resp, err := p.Chat(context.Background(), dep, req)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if gotSystem != "be terse\n\nnever apologize" {
		t.Errorf("system = %q", gotSystem)
	}
	if gotMessages != 1 {
		t.Errorf("messages sent = %d, want 1 (system collapsed out)", gotMessages)
	}
	if resp.Choices[0].Message.Content.String() != "hi" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content.String())
	}
}

func TestMapErrorRateLimit(t *testing.T) {
	p := New()
	body := []byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`)
	got := p.MapError(http.StatusTooManyRequests, body)
	if !got.Retriable() {
		t.Error("rate_limit_error should be retriable")
	}
}
