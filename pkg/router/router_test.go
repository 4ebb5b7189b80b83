package router

import (
	"context"
	"testing"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/providers"
)

func newTestRegistry(t *testing.T, deps ...*llm.Deployment) *providers.Registry {
	t.Helper()
	reg := providers.NewRegistry()
	for _, d := range deps {
		if err := reg.RegisterDeployment(d); err != nil {
			t.Fatalf("RegisterDeployment() error = %v", err)
		}
	}
	return reg
}

func TestDispatchRetriesTransientErrorThenSucceeds(t *testing.T) {
	dep := &llm.Deployment{ID: "dep-1", ModelName: "gpt-4o", Provider: "openai"}
	reg := newTestRegistry(t, dep)
	r := New(reg, NewMemoryCooldownStore(), nil)
	r.SetNumRetries(2)

	calls := 0
	outcome, err := r.Dispatch(context.Background(), CallContext{}, "gpt-4o", func(ctx context.Context, d *llm.Deployment) (*llm.Response, error) {
		calls++
		if calls == 1 {
			return nil, apierrors.New(apierrors.RateLimited, "rate limited")
		}
		return &llm.Response{ID: "resp-1"}, nil
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if outcome.Response.ID != "resp-1" {
		t.Errorf("response id = %q", outcome.Response.ID)
	}
	if outcome.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", outcome.Attempts)
	}
}

func TestDispatchDoesNotRetryNonTransientError(t *testing.T) {
	dep := &llm.Deployment{ID: "dep-1", ModelName: "gpt-4o", Provider: "openai"}
	reg := newTestRegistry(t, dep)
	r := New(reg, NewMemoryCooldownStore(), nil)
	r.SetNumRetries(3)

	calls := 0
	_, err := r.Dispatch(context.Background(), CallContext{}, "gpt-4o", func(ctx context.Context, d *llm.Deployment) (*llm.Response, error) {
		calls++
		return nil, apierrors.New(apierrors.BadRequest, "bad request")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for non-transient error)", calls)
	}
}

func TestDispatchFollowsFallbackChain(t *testing.T) {
	primary := &llm.Deployment{ID: "dep-primary", ModelName: "gpt-4o", Provider: "openai"}
	fallback := &llm.Deployment{ID: "dep-fallback", ModelName: "gpt-4o-mini", Provider: "openai"}
	reg := newTestRegistry(t, primary, fallback)
	r := New(reg, NewMemoryCooldownStore(), nil)
	r.SetNumRetries(0)
	r.SetFallbacks("gpt-4o", []string{"gpt-4o-mini"})

	var seenModelGroups []string
	outcome, err := r.Dispatch(context.Background(), CallContext{}, "gpt-4o", func(ctx context.Context, d *llm.Deployment) (*llm.Response, error) {
		seenModelGroups = append(seenModelGroups, d.ModelName)
		if d.ModelName == "gpt-4o" {
			return nil, apierrors.New(apierrors.Timeout, "timed out")
		}
		return &llm.Response{ID: "resp-fallback"}, nil
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome.ModelGroup != "gpt-4o-mini" {
		t.Errorf("ModelGroup = %q, want gpt-4o-mini", outcome.ModelGroup)
	}
	if len(outcome.FallbackChain) != 2 || outcome.FallbackChain[0] != "gpt-4o" || outcome.FallbackChain[1] != "gpt-4o-mini" {
		t.Errorf("FallbackChain = %v", outcome.FallbackChain)
	}
}

func TestDispatchFailsWithNoAvailableDeploymentWhenAllCooled(t *testing.T) {
	dep := &llm.Deployment{ID: "dep-1", ModelName: "gpt-4o", Provider: "openai"}
	reg := newTestRegistry(t, dep)
	cooldowns := NewMemoryCooldownStore()
	_ = cooldowns.Cooldown(context.Background(), "dep-1", defaultCooldownDuration)
	r := New(reg, cooldowns, nil)

	_, err := r.Dispatch(context.Background(), CallContext{}, "gpt-4o", func(ctx context.Context, d *llm.Deployment) (*llm.Response, error) {
		t.Fatal("call should not run when every deployment is cooled")
		return nil, nil
	})
	if apierrors.KindOf(err) != apierrors.NoAvailableDeployment {
		t.Errorf("error kind = %v, want NoAvailableDeployment", apierrors.KindOf(err))
	}
}

func TestDispatchStreamDoesNotRetryAfterBytesSent(t *testing.T) {
	dep := &llm.Deployment{ID: "dep-1", ModelName: "gpt-4o", Provider: "openai"}
	reg := newTestRegistry(t, dep)
	r := New(reg, NewMemoryCooldownStore(), nil)
	r.SetNumRetries(3)

	calls := 0
	_, err := r.DispatchStream(context.Background(), CallContext{}, "gpt-4o", func(ctx context.Context, d *llm.Deployment) (int, error) {
		calls++
		return 42, apierrors.New(apierrors.StreamAborted, "connection reset mid-stream")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry once bytes were already sent)", calls)
	}
}

func TestDispatchStreamRetriesWhenZeroBytesSent(t *testing.T) {
	dep := &llm.Deployment{ID: "dep-1", ModelName: "gpt-4o", Provider: "openai"}
	reg := newTestRegistry(t, dep)
	r := New(reg, NewMemoryCooldownStore(), nil)
	r.SetNumRetries(1)

	calls := 0
	outcome, err := r.DispatchStream(context.Background(), CallContext{}, "gpt-4o", func(ctx context.Context, d *llm.Deployment) (int, error) {
		calls++
		if calls == 1 {
			return 0, apierrors.New(apierrors.UpstreamError, "upstream reset before first byte")
		}
		return 10, nil
	})
	if err != nil {
		t.Fatalf("DispatchStream() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if outcome.DeploymentID != "dep-1" {
		t.Errorf("DeploymentID = %q", outcome.DeploymentID)
	}
}

// TestDispatchReleasesLimiterBetweenRetries guards against the limiter
// slot from a failed attempt staying held through the retry that follows
// it: a ParallelLimiter capped at 1 in-flight request per model group
// must still admit the second attempt once the first has completed, not
// only once Dispatch itself returns.
func TestDispatchReleasesLimiterBetweenRetries(t *testing.T) {
	dep := &llm.Deployment{ID: "dep-1", ModelName: "gpt-4o", Provider: "openai"}
	reg := newTestRegistry(t, dep)
	limiter := NewParallelLimiter()
	limiter.SetCap(ScopeModelGroup, "gpt-4o", 1)
	r := New(reg, NewMemoryCooldownStore(), limiter)
	r.SetNumRetries(1)

	calls := 0
	outcome, err := r.Dispatch(context.Background(), CallContext{ModelGroup: "gpt-4o"}, "gpt-4o", func(ctx context.Context, d *llm.Deployment) (*llm.Response, error) {
		calls++
		if calls == 1 {
			return nil, apierrors.New(apierrors.RateLimited, "rate limited")
		}
		return &llm.Response{ID: "resp-1"}, nil
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want the retry to be admitted once the first attempt released its slot", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if outcome.Response.ID != "resp-1" {
		t.Errorf("response id = %q", outcome.Response.ID)
	}
}

func TestSelectBreaksTiesByDeploymentIDAscending(t *testing.T) {
	depB := &llm.Deployment{ID: "dep-b", ModelName: "gpt-4o", Provider: "openai"}
	depA := &llm.Deployment{ID: "dep-a", ModelName: "gpt-4o", Provider: "openai"}
	reg := newTestRegistry(t, depB, depA)
	r := New(reg, nil, nil)
	r.SetAlgorithm("gpt-4o", LeastBusy)

	dep, err := r.Select(context.Background(), "gpt-4o")
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if dep.ID != "dep-a" {
		t.Errorf("selected %q, want dep-a (tie broken ascending)", dep.ID)
	}
}
