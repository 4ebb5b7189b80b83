package hooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/litellm-go/gateway/pkg/llm"
)

type recordingHook struct {
	name   string
	scope  Scope
	stages []Stage
	block  bool
}

func (h *recordingHook) Name() string    { return h.name }
func (h *recordingHook) Scope() Scope    { return h.scope }
func (h *recordingHook) Stages() []Stage { return h.stages }

func (h *recordingHook) PreCall(ctx context.Context, req *llm.Request) (Verdict, error) {
	if h.block {
		return Verdict{Blocked: true, Reason: "blocked by " + h.name}, nil
	}
	return Verdict{}, nil
}

func TestRunPreCallOrdersModelBeforeTeamBeforeGlobal(t *testing.T) {
	var order []string
	mk := func(name string, scope Scope) *orderHook {
		return &orderHook{name: name, scope: scope, order: &order}
	}

	p := New()
	p.Register(mk("global", ScopeGlobal))
	p.Register(mk("model", ScopeModel))
	p.Register(mk("team", ScopeTeam))

	if _, err := p.RunPreCall(context.Background(), &llm.Request{}); err != nil {
		t.Fatalf("RunPreCall() error = %v", err)
	}
	want := []string{"model", "team", "global"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

type orderHook struct {
	name  string
	scope Scope
	order *[]string
}

func (h *orderHook) Name() string    { return h.name }
func (h *orderHook) Scope() Scope    { return h.scope }
func (h *orderHook) Stages() []Stage { return []Stage{StagePreCall} }
func (h *orderHook) PreCall(ctx context.Context, req *llm.Request) (Verdict, error) {
	*h.order = append(*h.order, h.name)
	return Verdict{}, nil
}

func TestRunPreCallStopsAtFirstBlock(t *testing.T) {
	blocker := &recordingHook{name: "blocker", scope: ScopeModel, stages: []Stage{StagePreCall}, block: true}
	var afterOrder []string
	never := &orderHook{name: "never", scope: ScopeTeam, order: &afterOrder}

	p := New()
	p.Register(blocker)
	p.Register(never)

	_, err := p.RunPreCall(context.Background(), &llm.Request{})
	if err == nil {
		t.Fatal("expected GuardrailBlocked error, got nil")
	}
	blocked, ok := err.(*GuardrailBlocked)
	if !ok {
		t.Fatalf("error type = %T, want *GuardrailBlocked", err)
	}
	if blocked.HookName != "blocker" {
		t.Errorf("HookName = %q", blocked.HookName)
	}
	if len(afterOrder) != 0 {
		t.Error("hook after a block should not have run")
	}
}

type mutatingHook struct {
	newReq *llm.Request
}

func (h *mutatingHook) Name() string    { return "mutator" }
func (h *mutatingHook) Scope() Scope    { return ScopeModel }
func (h *mutatingHook) Stages() []Stage { return []Stage{StagePreCall} }
func (h *mutatingHook) PreCall(ctx context.Context, req *llm.Request) (Verdict, error) {
	return Verdict{MutatedRequest: h.newReq}, nil
}

func TestRunPreCallAppliesMutation(t *testing.T) {
	rewritten := &llm.Request{Model: "rewritten-model"}
	p := New()
	p.Register(&mutatingHook{newReq: rewritten})

	got, err := p.RunPreCall(context.Background(), &llm.Request{Model: "original-model"})
	if err != nil {
		t.Fatalf("RunPreCall() error = %v", err)
	}
	if got.Model != "rewritten-model" {
		t.Errorf("Model = %q, want rewritten-model", got.Model)
	}
}

type asyncHook struct {
	called chan string
}

func (h *asyncHook) Name() string    { return "async" }
func (h *asyncHook) Scope() Scope    { return ScopeGlobal }
func (h *asyncHook) Stages() []Stage { return []Stage{StagePostCallAsync} }
func (h *asyncHook) PostCallAsync(ctx context.Context, req *llm.Request, resp *llm.Response) {
	h.called <- "ran"
}

func TestRunPostCallAsyncDoesNotBlockAndIgnoresCancellation(t *testing.T) {
	hook := &asyncHook{called: make(chan string, 1)}
	p := New()
	p.Register(hook)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before the hook even runs

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.RunPostCallAsync(ctx, &llm.Request{}, &llm.Response{}, nil)
	}()
	wg.Wait()

	select {
	case <-hook.called:
	case <-time.After(2 * time.Second):
		t.Fatal("expected async hook to run despite cancelled parent context")
	}
}
