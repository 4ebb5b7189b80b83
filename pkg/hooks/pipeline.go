// Package hooks implements the Hook Pipeline (spec §4.4): pre_call,
// during_call, post_call_success, post_call_stream, and post_call_async
// stages that guardrails and other request/response middleware register
// into. Every stage runs fail-fast: the first hook that returns an error
// stops the chain. The priority-ordered chain-of-validators shape is
// grounded on BaSui01-agentflow's agent/guardrails.ValidatorChain — pack enrichment,
// since the teacher repo has no guardrail subsystem of its own.
package hooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/llm"
)

// Stage identifies one of the five pipeline stages a Hook may register for
// (spec §4.4).
type Stage string

const (
	StagePreCall         Stage = "pre_call"
	StageDuringCall      Stage = "during_call"
	StagePostCallSuccess Stage = "post_call_success"
	StagePostCallStream  Stage = "post_call_stream"
	StagePostCallAsync   Stage = "post_call_async"
)

// Scope is the level a Hook is bound at. Ordering within a stage runs
// model-level hooks first, then team-level, then global (spec §4.4's
// ordering rule), so a model-specific guardrail can short-circuit before
// broader, more expensive checks run.
type Scope int

const (
	ScopeModel Scope = iota
	ScopeTeam
	ScopeGlobal
)

// Verdict is a Hook's judgment on one call.
type Verdict struct {
	Blocked  bool
	Reason   string
	Metadata map[string]any

	// Mutated, when non-nil, replaces the request/response the hook was
	// given — e.g. a redaction hook rewriting response content in place.
	MutatedRequest  *llm.Request
	MutatedResponse *llm.Response
}

// Hook is one pipeline participant. A single implementation may register
// for multiple stages; Pipeline.Run dispatches by Stage.
type Hook interface {
	Name() string
	Scope() Scope
	// Stages returns which pipeline stages this hook participates in.
	Stages() []Stage
}

// PreCallHook inspects/mutates a request before it reaches the provider.
type PreCallHook interface {
	Hook
	PreCall(ctx context.Context, req *llm.Request) (Verdict, error)
}

// DuringCallHook runs concurrently with the upstream call; its verdict is
// awaited before the response reaches the client (spec §4.4).
type DuringCallHook interface {
	Hook
	DuringCall(ctx context.Context, req *llm.Request) (Verdict, error)
}

// PostCallSuccessHook inspects/mutates a completed non-stream response, or
// the fully assembled message of a completed stream.
type PostCallSuccessHook interface {
	Hook
	PostCallSuccess(ctx context.Context, req *llm.Request, resp *llm.Response) (Verdict, error)
}

// PostCallStreamHook receives the assembled content and usage once a
// stream reaches its terminal chunk.
type PostCallStreamHook interface {
	Hook
	PostCallStream(ctx context.Context, req *llm.Request, assembledContent string, usage llm.Usage) (Verdict, error)
}

// PostCallAsyncHook runs fire-and-forget after the response has already
// been returned to the client (e.g. async moderation logging). Errors are
// logged, never surfaced to the caller.
type PostCallAsyncHook interface {
	Hook
	PostCallAsync(ctx context.Context, req *llm.Request, resp *llm.Response)
}

// GuardrailBlocked is returned when any hook's verdict blocks a call
// (spec §8 scenario 4: 400 ContentFiltered with guardrail detail).
type GuardrailBlocked struct {
	HookName string
	Reason   string
	Metadata map[string]any
}

func (e *GuardrailBlocked) Error() string {
	return "blocked by guardrail " + e.HookName + ": " + e.Reason
}

// ToAPIError renders a GuardrailBlocked as the gateway's error taxonomy.
func (e *GuardrailBlocked) ToAPIError() *apierrors.Error {
	return &apierrors.Error{Kind: apierrors.ContentFiltered, Message: e.Error(), Cause: e}
}

// Pipeline holds every registered Hook and runs them stage by stage.
type Pipeline struct {
	mu    sync.RWMutex
	hooks []Hook
}

// New builds an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// Register adds a hook. Order of registration does not matter — ordering
// is computed per-run from Scope.
func (p *Pipeline) Register(h Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, h)
}

func (p *Pipeline) ordered(stage Stage) []Hook {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var matched []Hook
	for _, h := range p.hooks {
		for _, s := range h.Stages() {
			if s == stage {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Scope() < matched[j].Scope() })
	return matched
}

// RunPreCall runs every pre_call hook in scope order, stopping at the
// first block (fail-fast, per spec §4.4's "may reject" semantics — a
// blocked guardrail means no further hook or upstream call runs).
func (p *Pipeline) RunPreCall(ctx context.Context, req *llm.Request) (*llm.Request, error) {
	for _, h := range p.ordered(StagePreCall) {
		hook, ok := h.(PreCallHook)
		if !ok {
			continue
		}
		verdict, err := hook.PreCall(ctx, req)
		if err != nil {
			return req, err
		}
		if verdict.Blocked {
			return req, &GuardrailBlocked{HookName: h.Name(), Reason: verdict.Reason, Metadata: verdict.Metadata}
		}
		if verdict.MutatedRequest != nil {
			req = verdict.MutatedRequest
		}
	}
	return req, nil
}

// RunDuringCall runs during_call hooks; callers invoke it concurrently
// with the upstream provider call and await both before returning to the
// client (spec §4.4).
func (p *Pipeline) RunDuringCall(ctx context.Context, req *llm.Request) error {
	for _, h := range p.ordered(StageDuringCall) {
		hook, ok := h.(DuringCallHook)
		if !ok {
			continue
		}
		verdict, err := hook.DuringCall(ctx, req)
		if err != nil {
			return err
		}
		if verdict.Blocked {
			return &GuardrailBlocked{HookName: h.Name(), Reason: verdict.Reason, Metadata: verdict.Metadata}
		}
	}
	return nil
}

// RunPostCallSuccess runs post_call_success hooks over a completed
// response, applying any mutation before returning the (possibly
// replaced) response.
func (p *Pipeline) RunPostCallSuccess(ctx context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
	for _, h := range p.ordered(StagePostCallSuccess) {
		hook, ok := h.(PostCallSuccessHook)
		if !ok {
			continue
		}
		verdict, err := hook.PostCallSuccess(ctx, req, resp)
		if err != nil {
			return resp, err
		}
		if verdict.Blocked {
			return resp, &GuardrailBlocked{HookName: h.Name(), Reason: verdict.Reason, Metadata: verdict.Metadata}
		}
		if verdict.MutatedResponse != nil {
			resp = verdict.MutatedResponse
		}
	}
	return resp, nil
}

// RunPostCallStream runs post_call_stream hooks once a stream has reached
// its terminal chunk.
func (p *Pipeline) RunPostCallStream(ctx context.Context, req *llm.Request, content string, usage llm.Usage) error {
	for _, h := range p.ordered(StagePostCallStream) {
		hook, ok := h.(PostCallStreamHook)
		if !ok {
			continue
		}
		verdict, err := hook.PostCallStream(ctx, req, content, usage)
		if err != nil {
			return err
		}
		if verdict.Blocked {
			return &GuardrailBlocked{HookName: h.Name(), Reason: verdict.Reason, Metadata: verdict.Metadata}
		}
	}
	return nil
}

// RunPostCallAsync fires post_call_async hooks without blocking the
// caller; per spec §4.4, failures here are logging-only, never surfaced.
// Client disconnection/cancellation must not cancel these — they run
// detached from the request's context cancellation, inheriting only its
// values.
func (p *Pipeline) RunPostCallAsync(ctx context.Context, req *llm.Request, resp *llm.Response, onError func(hookName string, err error)) {
	detached := detachedContext{ctx}
	for _, h := range p.ordered(StagePostCallAsync) {
		hook, ok := h.(PostCallAsyncHook)
		if !ok {
			continue
		}
		go func(hook PostCallAsyncHook) {
			defer func() {
				if r := recover(); r != nil && onError != nil {
					onError(hook.Name(), &panicError{r})
				}
			}()
			hook.PostCallAsync(detached, req, resp)
		}(hook)
	}
}

type panicError struct{ v any }

func (e *panicError) Error() string { return "panic in post_call_async hook" }

// detachedContext carries a parent's values but never its cancellation,
// so a client disconnect does not cut short async logging-only hooks.
type detachedContext struct{ context.Context }

func (detachedContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detachedContext) Done() <-chan struct{}       { return nil }
func (detachedContext) Err() error                  { return nil }
