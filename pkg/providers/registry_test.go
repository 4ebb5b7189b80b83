package providers

import (
	"context"
	"testing"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/llm"
)

type countingAdapter struct{ id int }

func (a *countingAdapter) Name() string                                        { return "counting" }
func (a *countingAdapter) Capabilities() []Capability                          { return []Capability{CapChat} }
func (a *countingAdapter) MapError(statusCode int, body []byte) *apierrors.Error { return nil }
func (a *countingAdapter) Chat(ctx context.Context, dep *llm.Deployment, req *llm.Request) (*llm.Response, error) {
	return nil, nil
}

func TestAdapterCachesInstancePerProviderType(t *testing.T) {
	r := NewRegistry()
	calls := 0
	if err := r.RegisterAdapter("counting", func() Adapter {
		calls++
		return &countingAdapter{id: calls}
	}); err != nil {
		t.Fatalf("RegisterAdapter() error = %v", err)
	}

	depA := &llm.Deployment{ID: "a", ModelName: "m-a", Provider: "counting"}
	depB := &llm.Deployment{ID: "b", ModelName: "m-b", Provider: "counting"}

	a1, err := r.Adapter(depA)
	if err != nil {
		t.Fatalf("Adapter() error = %v", err)
	}
	a2, err := r.Adapter(depB)
	if err != nil {
		t.Fatalf("Adapter() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("factory invoked %d times, want 1 (shared across deployments of the same provider type)", calls)
	}
	if a1 != a2 {
		t.Errorf("Adapter() returned distinct instances for the same provider type")
	}
}

func TestModelGroupFallsBackToProviderPrefix(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterAdapter("anthropic", func() Adapter { return &countingAdapter{} }); err != nil {
		t.Fatalf("RegisterAdapter() error = %v", err)
	}

	group, ok := r.ModelGroup("anthropic/claude-sonnet-4-5")
	if !ok {
		t.Fatalf("ModelGroup() ok = false, want true for a known provider prefix")
	}
	if len(group) != 1 {
		t.Fatalf("len(group) = %d, want 1", len(group))
	}
	if group[0].Provider != "anthropic" || group[0].Model != "claude-sonnet-4-5" {
		t.Errorf("fallback deployment = %+v, want Provider=anthropic Model=claude-sonnet-4-5", group[0])
	}
}

func TestModelGroupFallsBackToOpenAIForBareModelName(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterAdapter("openai", func() Adapter { return &countingAdapter{} }); err != nil {
		t.Fatalf("RegisterAdapter() error = %v", err)
	}

	group, ok := r.ModelGroup("gpt-4o-mini")
	if !ok {
		t.Fatalf("ModelGroup() ok = false, want true for a bare model name")
	}
	if len(group) != 1 || group[0].Provider != "openai" || group[0].Model != "gpt-4o-mini" {
		t.Fatalf("fallback deployment = %+v, want Provider=openai Model=gpt-4o-mini", group[0])
	}
}

func TestModelGroupPrefersConfiguredDeployments(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterAdapter("openai", func() Adapter { return &countingAdapter{} }); err != nil {
		t.Fatalf("RegisterAdapter() error = %v", err)
	}
	configured := &llm.Deployment{ID: "dep-1", ModelName: "gpt-4o", Provider: "openai", Model: "gpt-4o", APIKey: "configured"}
	if err := r.RegisterDeployment(configured); err != nil {
		t.Fatalf("RegisterDeployment() error = %v", err)
	}

	group, ok := r.ModelGroup("gpt-4o")
	if !ok || len(group) != 1 {
		t.Fatalf("ModelGroup() = %v, %v, want the single configured deployment", group, ok)
	}
	if group[0] != configured {
		t.Errorf("ModelGroup() returned a synthesized fallback instead of the configured deployment")
	}
}
