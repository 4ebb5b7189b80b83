package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/cost"
	"github.com/litellm-go/gateway/pkg/hooks"
	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/logger"
	"github.com/litellm-go/gateway/pkg/logging"
	"github.com/litellm-go/gateway/pkg/providers"
	"github.com/litellm-go/gateway/pkg/router"
	"github.com/litellm-go/gateway/pkg/stream"
)

// handleChatCompletions implements POST /v1/chat/completions (spec §6):
// pre_call guardrails, router dispatch across the requested model's
// deployments (with retries/fallbacks/cooldowns), cost computation, and a
// LoggingRecord emitted exactly once, for both the streaming and
// non-streaming paths.
func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req llm.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	g.runChatRequest(w, r, &req)
}

// runChatRequest is the shared body of handleChatCompletions: it pre_call
// hooks, dispatches, costs, and logs a unified Request. handleResponses and
// handleMessages translate their own wire shapes into an llm.Request and
// re-enter here rather than duplicating the dispatch/cost/logging machinery.
func (g *Gateway) runChatRequest(w http.ResponseWriter, r *http.Request, req *llm.Request) {
	deps := g.loadDeps()
	caller, _ := callerFrom(r.Context())

	rec := logging.New(uuid.NewString(), requestIDFrom(r.Context()))
	rec.Model = req.Model
	rec.ModelGroup = req.Model
	rec.KeyHash = caller.Hash
	rec.Team = caller.Team
	rec.Request = req

	mutated, err := deps.Pipeline.RunPreCall(r.Context(), req)
	if err != nil {
		g.finishWithError(w, deps, rec, err)
		return
	}
	req = mutated

	cc := router.CallContext{KeyID: caller.Hash, TeamID: caller.Team, ModelGroup: req.Model}

	if req.Stream {
		g.dispatchStreamingChat(w, r, deps, rec, cc, req)
		return
	}
	g.dispatchChat(w, r, deps, rec, cc, req)
}

func (g *Gateway) dispatchChat(w http.ResponseWriter, r *http.Request, deps *Deps, rec *logging.Record, cc router.CallContext, req *llm.Request) {
	outcome, err := deps.Router.Dispatch(r.Context(), cc, req.Model, func(ctx context.Context, dep *llm.Deployment) (*llm.Response, error) {
		resolved, adapter, rerr := deps.Registry.Resolve(dep, providers.Overrides{APIKey: req.APIKey, APIBase: req.APIBase})
		if rerr != nil {
			return nil, rerr
		}
		chatter, ok := adapter.(providers.ChatAdapter)
		if !ok {
			return nil, apierrors.New(apierrors.BadRequest, "model %q does not support chat completions", req.Model)
		}

		spanCtx, span := deps.Obs.Tracer().StartProviderCall(ctx, req.Model, dep.Provider, dep.ID)
		resp, cerr := chatter.Chat(spanCtx, resolved, req)
		if cerr != nil {
			deps.Obs.Tracer().RecordError(span, cerr)
			span.End()
			return nil, cerr
		}
		deps.Obs.Tracer().AddUsage(span, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		span.End()
		return resp, nil
	})
	if err != nil {
		g.finishWithError(w, deps, rec, err)
		return
	}

	resp := outcome.Response
	resp, err = deps.Pipeline.RunPostCallSuccess(r.Context(), req, resp)
	if err != nil {
		g.finishWithError(w, deps, rec, err)
		return
	}

	rec.DeploymentID = outcome.DeploymentID
	rec.Retries = outcome.Attempts - 1
	rec.FallbackChain = outcome.FallbackChain
	rec.Response = resp
	rec.Usage = resp.Usage
	g.priceAndFinish(deps, rec, req, resp.Usage)

	writeJSON(w, http.StatusOK, resp)

	deps.Pipeline.RunPostCallAsync(r.Context(), req, resp, func(hookName string, err error) {
		logger.GetLogger().Warn("post_call_async hook failed", "hook", hookName, "error", err)
	})
}

func (g *Gateway) dispatchStreamingChat(w http.ResponseWriter, r *http.Request, deps *Deps, rec *logging.Record, cc router.CallContext, req *llm.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apierrors.New(apierrors.InternalError, "streaming unsupported by response writer"))
		return
	}

	var assembled stream.Assembled
	var deploymentID string

	outcome, err := deps.Router.DispatchStream(r.Context(), cc, req.Model, func(ctx context.Context, dep *llm.Deployment) (int, error) {
		resolved, adapter, rerr := deps.Registry.Resolve(dep, providers.Overrides{APIKey: req.APIKey, APIBase: req.APIBase})
		if rerr != nil {
			return 0, rerr
		}

		spanCtx, span := deps.Obs.Tracer().StartProviderCall(ctx, req.Model, dep.Provider, dep.ID)
		defer span.End()

		chunks, serr := stream.FromAdapter(spanCtx, adapter, resolved, req)
		if serr != nil {
			deps.Obs.Tracer().RecordError(span, serr)
			return 0, serr
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		deploymentID = resolved.ID
		a, werr := stream.Pipe(w, flusher, chunks)
		assembled = a
		if werr != nil {
			deps.Obs.Tracer().RecordError(span, werr)
		} else {
			deps.Obs.Tracer().AddUsage(span, a.Usage.PromptTokens, a.Usage.CompletionTokens)
		}
		return a.BytesSent, werr
	})

	if err != nil {
		if assembled.BytesSent == 0 {
			g.finishWithError(w, deps, rec, err)
			return
		}
		stream.WriteSSEError(w, flusher, err)
		rec.Error = string(apierrors.KindOf(err))
		rec.Finish()
		deps.Dispatcher.Emit(rec)
		return
	}

	usage := assembled.Usage
	if usage.TotalTokens == 0 && assembled.Content != "" {
		if n, terr := cost.FallbackTokenCount(r.Context(), req.Model, assembled.Content); terr == nil {
			usage.CompletionTokens = n
			usage.Normalize()
		}
	}

	if perr := deps.Pipeline.RunPostCallStream(r.Context(), req, assembled.Content, usage); perr != nil {
		rec.Error = string(apierrors.KindOf(perr))
	}

	rec.DeploymentID = deploymentID
	rec.Retries = outcome.Attempts - 1
	rec.FallbackChain = outcome.FallbackChain
	rec.Usage = usage
	g.priceAndFinish(deps, rec, req, usage)
}

// priceAndFinish computes the call's cost via deps.Cost, folds it into rec,
// and emits rec to the logging dispatcher exactly once.
func (g *Gateway) priceAndFinish(deps *Deps, rec *logging.Record, req *llm.Request, usage llm.Usage) {
	var info llm.ModelInfo
	if dep, derr := deps.Registry.ResolveModel(req.Model, ""); derr == nil {
		info = dep.Info
	}
	breakdown := deps.Cost.Compute(info, usage, nil)
	rec.Cost = logging.FromBreakdown(breakdown)
	rec.Finish()
	deps.Dispatcher.Emit(rec)

	for i := 0; i+1 < len(rec.FallbackChain); i++ {
		deps.Obs.Metrics().RecordRouterFallback(rec.FallbackChain[i], rec.FallbackChain[i+1])
	}
}

func (g *Gateway) finishWithError(w http.ResponseWriter, deps *Deps, rec *logging.Record, err error) {
	if blocked, ok := err.(*hooks.GuardrailBlocked); ok {
		rec.Error = string(blocked.ToAPIError().Kind)
		rec.GuardrailResults = append(rec.GuardrailResults, logging.GuardrailResult{
			Name:     blocked.HookName,
			Action:   "blocked",
			Entities: blocked.Metadata,
		})
	} else {
		rec.Error = string(apierrors.KindOf(err))
	}
	rec.Finish()
	deps.Dispatcher.Emit(rec)
	writeError(w, err)
}
