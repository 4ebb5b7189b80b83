package sap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/litellm-go/gateway/pkg/llm"
)

type fakeDelegate struct {
	gotModel, gotAPIKey, gotAPIBase string
}

func (f *fakeDelegate) Chat(ctx context.Context, dep *llm.Deployment, req *llm.Request) (*llm.Response, error) {
	f.gotModel, f.gotAPIKey, f.gotAPIBase = dep.Model, dep.APIKey, dep.APIBase
	return &llm.Response{}, nil
}

func (f *fakeDelegate) ChatStream(ctx context.Context, dep *llm.Deployment, req *llm.Request) (<-chan llm.StreamChunk, error) {
	return nil, nil
}

func TestSplitSubModel(t *testing.T) {
	prefix, sub, ok := splitSubModel("anthropic--claude-4.5-sonnet")
	if !ok || prefix != "anthropic" || sub != "claude-4.5-sonnet" {
		t.Errorf("got (%q, %q, %v)", prefix, sub, ok)
	}
	if _, _, ok := splitSubModel("no-separator"); ok {
		t.Error("expected ok=false for model without --")
	}
}

func TestChatExchangesServiceKeyAndDelegates(t *testing.T) {
	oauth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","expires_in":3600}`))
	}))
	defer oauth.Close()

	delegate := &fakeDelegate{}
	p := New(map[string]Delegate{"anthropic": delegate})

	serviceKey := `{"clientid":"c1","clientsecret":"s1","url":"` + oauth.URL + `","serviceurls":{"AI_API_URL":"https://aicore.example.com"}}`
	dep := &llm.Deployment{ID: "dep-1", Model: "anthropic--claude-4.5-sonnet", ServiceKey: serviceKey}

	_, err := p.Chat(context.Background(), dep, &llm.Request{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if delegate.gotModel != "claude-4.5-sonnet" {
		t.Errorf("delegate model = %q", delegate.gotModel)
	}
	if delegate.gotAPIKey != "tok-123" {
		t.Errorf("delegate api key = %q", delegate.gotAPIKey)
	}
	if delegate.gotAPIBase != "https://aicore.example.com/v2/inference/deployments/dep-1" {
		t.Errorf("delegate api base = %q", delegate.gotAPIBase)
	}
}
