package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/config"
	"github.com/litellm-go/gateway/pkg/cost"
	"github.com/litellm-go/gateway/pkg/hooks"
	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/logging"
	"github.com/litellm-go/gateway/pkg/mcp"
	"github.com/litellm-go/gateway/pkg/observability"
	"github.com/litellm-go/gateway/pkg/providers"
	"github.com/litellm-go/gateway/pkg/router"
)

// fakeAdapter is a minimal ChatAdapter/ChatStreamAdapter stand-in so tests
// never make a real provider call.
type fakeAdapter struct {
	reply    string
	failWith error
}

func (f *fakeAdapter) Name() string { return "fake" }
func (f *fakeAdapter) Capabilities() []providers.Capability {
	return []providers.Capability{providers.CapChat, providers.CapChatStream}
}
func (f *fakeAdapter) MapError(statusCode int, body []byte) *apierrors.Error { return nil }

func (f *fakeAdapter) Chat(ctx context.Context, dep *llm.Deployment, req *llm.Request) (*llm.Response, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &llm.Response{
		ID:    "resp-1",
		Model: req.Model,
		Choices: []llm.Choice{{
			Index:        0,
			FinishReason: llm.FinishStop,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: llm.NewText(f.reply)},
		}},
		Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (f *fakeAdapter) ChatStream(ctx context.Context, dep *llm.Deployment, req *llm.Request) (<-chan llm.StreamChunk, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	finish := llm.FinishStop
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{
		ID:    "resp-1",
		Model: req.Model,
		Choices: []llm.StreamChoice{{
			Index: 0,
			Delta: llm.Delta{Role: llm.RoleAssistant, Content: f.reply},
		}},
	}
	ch <- llm.StreamChunk{
		ID:    "resp-1",
		Model: req.Model,
		Choices: []llm.StreamChoice{{
			Index:        0,
			FinishReason: &finish,
		}},
		Usage: &llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
	close(ch)
	return ch, nil
}

func newTestDeps(t *testing.T, adapter providers.Adapter) (*Deps, *captureSink) {
	t.Helper()

	registry := providers.NewRegistry()
	registry.RegisterAdapter("fake", func() providers.Adapter { return adapter })
	dep := &llm.Deployment{ID: "dep-1", ModelName: "gpt-4o", Provider: "fake", Model: "gpt-4o"}
	if err := registry.RegisterDeployment(dep); err != nil {
		t.Fatalf("RegisterDeployment() error = %v", err)
	}

	rt := router.New(registry, router.NewMemoryCooldownStore(), nil)

	dispatcher := logging.NewDispatcher()
	sink := &captureSink{}
	dispatcher.Register("capture", sink, 16)

	keys := NewKeyStore("test-master-key")

	return &Deps{
		Config:     &config.Config{},
		Registry:   registry,
		Router:     rt,
		Pipeline:   hooks.New(),
		Cost:       cost.New(),
		Dispatcher: dispatcher,
		MCP:        mcp.NewGateway(),
		Keys:       keys,
		Obs:        observability.NoopManager(),
	}, sink
}

type captureSink struct {
	mu      sync.Mutex
	records []*logging.Record
}

func (s *captureSink) Emit(ctx context.Context, rec *logging.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// waitRecords returns the records delivered so far once at least want have
// arrived or a second has passed: the dispatcher delivers on its own
// goroutine, after the handler has returned.
func (s *captureSink) waitRecords(want int) []*logging.Record {
	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		got := append([]*logging.Record(nil), s.records...)
		s.mu.Unlock()
		if len(got) >= want || time.Now().After(deadline) {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestGateway(t *testing.T, adapter providers.Adapter) (*Gateway, *captureSink) {
	t.Helper()
	deps, sink := newTestDeps(t, adapter)
	return New(deps, ":0"), sink
}

func TestHealthEndpoint(t *testing.T) {
	gw, _ := newTestGateway(t, &fakeAdapter{reply: "hi"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	gw.router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestChatCompletionsRequiresAuth(t *testing.T) {
	gw, _ := newTestGateway(t, &fakeAdapter{reply: "hi"})
	body := strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	w := httptest.NewRecorder()
	gw.router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	gw, sink := newTestGateway(t, &fakeAdapter{reply: "hello there"})

	reqBody := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(reqBody))
	req.Header.Set("Authorization", "Bearer test-master-key")
	w := httptest.NewRecorder()
	gw.router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}

	var resp llm.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Model != "gpt-4o" {
		t.Errorf("response model = %q, want gpt-4o", resp.Model)
	}
	records := sink.waitRecords(1)
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if records[0].Error != "" {
		t.Errorf("record error = %q, want empty", records[0].Error)
	}
}

func TestChatCompletionsStreaming(t *testing.T) {
	gw, sink := newTestGateway(t, &fakeAdapter{reply: "streamed"})

	reqBody := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(reqBody))
	req.Header.Set("Authorization", "Bearer test-master-key")
	w := httptest.NewRecorder()
	gw.router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	scanner := bufio.NewScanner(bytes.NewReader(w.Body.Bytes()))
	var sawDone bool
	for scanner.Scan() {
		if scanner.Text() == "data: [DONE]" {
			sawDone = true
		}
	}
	if !sawDone {
		t.Errorf("stream body missing data: [DONE] terminator:\n%s", w.Body.String())
	}
	if records := sink.waitRecords(1); len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
}

func TestMetricsEndpointDisabledByDefault(t *testing.T) {
	gw, _ := newTestGateway(t, &fakeAdapter{reply: "hi"})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	gw.router().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when observability is disabled", w.Code)
	}
}
