// Package router implements the Router (spec §4.5): deployment selection
// across a model group, cooldown-based unhealthy-deployment filtering,
// same-deployment retries with capped exponential backoff, and fallback
// chains that re-enter the Router for a different model group. The
// selection-algorithm and per-deployment runtime-state tracking shape is
// adapted from kadirpekel/hector's provider-selection helpers, generalized
// from a single best-provider pick to ranking an arbitrarily sized model
// group; cooldown/limiter storage is grounded on the teacher's
// pkg/ratelimit fixed-window counters (see limiter.go, cooldown.go).
package router

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/providers"
)

// SelectionAlgorithm names one of the configurable ranking strategies
// spec §4.5 lists for a model group.
type SelectionAlgorithm string

const (
	SimpleShuffle       SelectionAlgorithm = "simple-shuffle"
	LeastBusy           SelectionAlgorithm = "least-busy"
	UsageBasedRoutingV2 SelectionAlgorithm = "usage-based-routing-v2"
	LatencyBasedRouting SelectionAlgorithm = "latency-based-routing"
	LowestCost          SelectionAlgorithm = "lowest-cost"
)

const (
	defaultCooldownDuration = 60 * time.Second
	maxCooldownDuration     = 10 * time.Minute
	defaultBackoffBase      = 500 * time.Millisecond
	defaultBackoffCap       = 8 * time.Second
	backoffJitterPct        = 0.20
)

// deploymentState is the Router's per-deployment runtime bookkeeping: how
// busy it is right now, its recent latency, and how many cooldowns it has
// accumulated in a row (used to scale the cooldown duration exponentially).
type deploymentState struct {
	mu                  sync.Mutex
	inFlight            int64
	latencyEWMA         float64 // milliseconds; 0 until the first sample
	consecutiveCooldowns int
}

const latencyEWMAAlpha = 0.3

func (s *deploymentState) recordLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := float64(d.Milliseconds())
	if s.latencyEWMA == 0 {
		s.latencyEWMA = ms
		return
	}
	s.latencyEWMA = latencyEWMAAlpha*ms + (1-latencyEWMAAlpha)*s.latencyEWMA
}

func (s *deploymentState) snapshot() (inFlight int64, latencyEWMA float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight, s.latencyEWMA
}

// Router selects a deployment for a model-group request, then manages
// retries and fallbacks around the caller-supplied dispatch function.
type Router struct {
	registry  *providers.Registry
	cooldowns CooldownStore
	limiter   Limiter

	statesMu sync.Mutex
	states   map[string]*deploymentState // deployment id -> state

	algoMu    sync.RWMutex
	algorithm map[string]SelectionAlgorithm // model group -> algorithm

	fallbackMu sync.RWMutex
	fallbacks  map[string][]string // model group -> ordered fallback model groups

	numRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration
}

// New builds a Router over the given deployment registry. cooldowns and
// limiter may be nil to disable that concern (tests commonly pass a
// MemoryCooldownStore and a no-op Limiter).
func New(registry *providers.Registry, cooldowns CooldownStore, limiter Limiter) *Router {
	return &Router{
		registry:    registry,
		cooldowns:   cooldowns,
		limiter:     limiter,
		states:      make(map[string]*deploymentState),
		algorithm:   make(map[string]SelectionAlgorithm),
		fallbacks:   make(map[string][]string),
		numRetries:  2,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
	}
}

// SetNumRetries overrides the default same-deployment retry count.
func (r *Router) SetNumRetries(n int) { r.numRetries = n }

// SetAlgorithm configures which selection algorithm a model group uses.
// Unconfigured groups default to SimpleShuffle.
func (r *Router) SetAlgorithm(modelGroup string, algo SelectionAlgorithm) {
	r.algoMu.Lock()
	defer r.algoMu.Unlock()
	r.algorithm[modelGroup] = algo
}

// SetFallbacks configures the ordered fallback chain spec §4.5 tries once
// a model group's own deployment retries are exhausted.
func (r *Router) SetFallbacks(modelGroup string, fallbackGroups []string) {
	r.fallbackMu.Lock()
	defer r.fallbackMu.Unlock()
	r.fallbacks[modelGroup] = fallbackGroups
}

func (r *Router) stateFor(deploymentID string) *deploymentState {
	r.statesMu.Lock()
	defer r.statesMu.Unlock()
	s, ok := r.states[deploymentID]
	if !ok {
		s = &deploymentState{}
		r.states[deploymentID] = s
	}
	return s
}

// healthyDeployments returns the model group's deployments with cooled ones
// filtered out, per spec §4.5's pre-selection filtering rule.
func (r *Router) healthyDeployments(ctx context.Context, modelGroup string) ([]*llm.Deployment, error) {
	group, ok := r.registry.ModelGroup(modelGroup)
	if !ok || len(group) == 0 {
		return nil, apierrors.New(apierrors.UnknownModel, "no deployments configured for model_name %q", modelGroup)
	}
	if r.cooldowns == nil {
		return group, nil
	}
	healthy := make([]*llm.Deployment, 0, len(group))
	for _, dep := range group {
		cooled, err := r.cooldowns.IsCooled(ctx, dep.ID)
		if err != nil {
			return nil, err
		}
		if !cooled {
			healthy = append(healthy, dep)
		}
	}
	if len(healthy) == 0 {
		return nil, apierrors.New(apierrors.NoAvailableDeployment, "every deployment in model group %q is cooled down", modelGroup)
	}
	return healthy, nil
}

// Select ranks the healthy deployments of a model group by its configured
// algorithm and returns the winner. The work depends on the group size,
// never the global deployment count: rank sorts the group by id, which is
// O(n log n), before one linear pass.
func (r *Router) Select(ctx context.Context, modelGroup string) (*llm.Deployment, error) {
	healthy, err := r.healthyDeployments(ctx, modelGroup)
	if err != nil {
		return nil, err
	}

	r.algoMu.RLock()
	algo, ok := r.algorithm[modelGroup]
	r.algoMu.RUnlock()
	if !ok {
		algo = SimpleShuffle
	}
	return r.rank(healthy, algo), nil
}

// rank picks the winning deployment for the given algorithm. Ties are
// broken by ascending deployment id, per spec §4.5.
func (r *Router) rank(deployments []*llm.Deployment, algo SelectionAlgorithm) *llm.Deployment {
	sorted := append([]*llm.Deployment(nil), deployments...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	switch algo {
	case SimpleShuffle:
		return sorted[rand.Intn(len(sorted))]

	case LeastBusy:
		best := sorted[0]
		bestInFlight, _ := r.stateFor(best.ID).snapshot()
		for _, dep := range sorted[1:] {
			inFlight, _ := r.stateFor(dep.ID).snapshot()
			if inFlight < bestInFlight {
				best, bestInFlight = dep, inFlight
			}
		}
		return best

	case LatencyBasedRouting:
		best := sorted[0]
		_, bestLatency := r.stateFor(best.ID).snapshot()
		for _, dep := range sorted[1:] {
			_, latency := r.stateFor(dep.ID).snapshot()
			if latency == 0 {
				continue // no samples yet; keep deferring to an already-measured deployment
			}
			if bestLatency == 0 || latency < bestLatency {
				best, bestLatency = dep, latency
			}
		}
		return best

	case LowestCost:
		best := sorted[0]
		for _, dep := range sorted[1:] {
			if dep.Info.InputCostPerToken < best.Info.InputCostPerToken {
				best = dep
			}
		}
		return best

	case UsageBasedRoutingV2:
		best := sorted[0]
		bestHeadroom := r.headroom(best)
		for _, dep := range sorted[1:] {
			if h := r.headroom(dep); h > bestHeadroom {
				best, bestHeadroom = dep, h
			}
		}
		return best

	default:
		return sorted[0]
	}
}

// headroom approximates remaining RPM capacity as a fraction of configured
// capacity minus current in-flight requests, for usage-based-routing-v2.
func (r *Router) headroom(dep *llm.Deployment) float64 {
	capacity := dep.RPMCapacity()
	if capacity <= 0 {
		return 1 // unbounded deployments always look maximally free
	}
	inFlight, _ := r.stateFor(dep.ID).snapshot()
	return 1 - float64(inFlight)/float64(capacity)
}

// backoffDuration computes the capped exponential backoff with ±20% jitter
// spec §4.5 requires for same-deployment retries (base 0.5s, cap 8s).
func (r *Router) backoffDuration(attempt int) time.Duration {
	d := r.backoffBase << attempt
	if d > r.backoffCap || d <= 0 {
		d = r.backoffCap
	}
	jitter := 1 + (rand.Float64()*2-1)*backoffJitterPct
	return time.Duration(float64(d) * jitter)
}

// cooldownDuration scales the default cooldown exponentially by how many
// times this deployment has cooled down in a row, capped at
// maxCooldownDuration, per spec §4.5's "exponential up to a cap" rule.
func (r *Router) cooldownDuration(state *deploymentState) time.Duration {
	state.mu.Lock()
	n := state.consecutiveCooldowns
	state.mu.Unlock()
	d := defaultCooldownDuration << n
	if d > maxCooldownDuration || d <= 0 {
		d = maxCooldownDuration
	}
	return d
}

// shouldCooldown reports whether err's Kind is one of the cooldown-triggering
// classes spec §4.5 names: RateLimited, Unavailable, Timeout. The gateway's
// taxonomy folds "Unavailable" into UpstreamError (spec §7's consolidated
// 5xx class), so that Kind cools down a deployment too.
func shouldCooldown(err error) bool {
	switch apierrors.KindOf(err) {
	case apierrors.RateLimited, apierrors.Timeout, apierrors.UpstreamError:
		return true
	default:
		return false
	}
}

// Call is the operation the Router retries/fallback-chains around: resolve
// credentials, invoke the adapter, return its result. The server layer
// builds this from providers.Registry.Resolve plus the chosen adapter's
// Chat/ChatStream method.
type Call func(ctx context.Context, dep *llm.Deployment) (*llm.Response, error)

// Outcome records what the Router actually did, for the LoggingRecord
// (spec §4.5: "fallback chain is recorded in the LoggingRecord").
type Outcome struct {
	Response       *llm.Response
	DeploymentID   string
	ModelGroup     string
	Attempts       int
	FallbackChain  []string // model groups tried, in order, including the first
}

// Dispatch runs the full selection/retry/fallback cycle for a non-streaming
// call (spec §4.5). It consults the Limiter before every dispatch attempt,
// applies cooldowns for transient failures, retries the same deployment up
// to numRetries times with backoff, then walks the configured fallback
// chain once retries on a model group are exhausted.
func (r *Router) Dispatch(ctx context.Context, cc CallContext, modelGroup string, call Call) (*Outcome, error) {
	chain := []string{modelGroup}
	group := modelGroup
	var lastErr error
	totalAttempts := 0

	r.fallbackMu.RLock()
	remaining := r.fallbacks[modelGroup]
	r.fallbackMu.RUnlock()

	for {
		cc.ModelGroup = group
		resp, attempts, err := r.dispatchModelGroup(ctx, cc, group, call)
		totalAttempts += attempts
		if err == nil {
			return &Outcome{Response: resp.Response, DeploymentID: resp.DeploymentID, ModelGroup: group, Attempts: totalAttempts, FallbackChain: chain}, nil
		}
		lastErr = err

		if len(remaining) == 0 {
			return nil, lastErr
		}
		group = remaining[0]
		remaining = remaining[1:]
		chain = append(chain, group)
	}
}

type dispatchResult struct {
	Response     *llm.Response
	DeploymentID string
}

// dispatchModelGroup selects within a single model group and retries the
// same deployment on transient errors, without crossing into fallbacks.
func (r *Router) dispatchModelGroup(ctx context.Context, cc CallContext, modelGroup string, call Call) (*dispatchResult, int, error) {
	var lastErr error
	attempts := 0

	dep, err := r.Select(ctx, modelGroup)
	if err != nil {
		return nil, attempts, err
	}

	for attempt := 0; attempt <= r.numRetries; attempt++ {
		if r.limiter != nil {
			decision, lerr := r.limiter.Admit(ctx, cc, 0)
			if lerr != nil {
				return nil, attempts, lerr
			}
			if !decision.Allowed {
				return nil, attempts, apierrors.New(apierrors.BudgetExceeded, "%s", decision.Reason)
			}
		}

		state := r.stateFor(dep.ID)
		state.mu.Lock()
		state.inFlight++
		state.mu.Unlock()

		start := time.Now()
		resp, callErr := call(ctx, dep)
		elapsed := time.Since(start)

		state.mu.Lock()
		state.inFlight--
		state.mu.Unlock()

		if r.limiter != nil {
			r.limiter.Release(cc)
		}

		attempts++

		if callErr == nil {
			state.recordLatency(elapsed)
			state.mu.Lock()
			state.consecutiveCooldowns = 0
			state.mu.Unlock()
			return &dispatchResult{Response: resp, DeploymentID: dep.ID}, attempts, nil
		}

		lastErr = callErr
		if shouldCooldown(callErr) && r.cooldowns != nil {
			dur := r.cooldownDuration(state)
			state.mu.Lock()
			state.consecutiveCooldowns++
			state.mu.Unlock()
			_ = r.cooldowns.Cooldown(ctx, dep.ID, dur)
		}

		apiErr, ok := apierrors.As(callErr)
		if !ok || !apiErr.Retriable() {
			return nil, attempts, callErr // non-transient: no same-deployment retry
		}
		if attempt < r.numRetries {
			select {
			case <-ctx.Done():
				return nil, attempts, ctx.Err()
			case <-time.After(r.backoffDuration(attempt)):
			}
		}
	}
	return nil, attempts, lastErr
}

// StreamCall is the streaming counterpart of Call: it must perform the
// entire stream — selecting the provider, writing every SSE frame to the
// client — and report back how many content bytes it actually flushed, so
// Dispatch can apply spec §4.5's "streaming retries only if zero bytes
// delivered" rule.
type StreamCall func(ctx context.Context, dep *llm.Deployment) (bytesSent int, err error)

// DispatchStream mirrors Dispatch for streaming calls. Once bytesSent > 0
// for a given attempt, a later failure is final: no same-deployment retry,
// no fallback, the error is simply returned for the caller to have already
// surfaced via its own terminal SSE error frame.
func (r *Router) DispatchStream(ctx context.Context, cc CallContext, modelGroup string, call StreamCall) (*Outcome, error) {
	chain := []string{modelGroup}
	group := modelGroup
	var lastErr error
	totalAttempts := 0

	r.fallbackMu.RLock()
	remaining := r.fallbacks[modelGroup]
	r.fallbackMu.RUnlock()

	for {
		cc.ModelGroup = group
		depID, attempts, bytesSent, err := r.dispatchStreamModelGroup(ctx, cc, group, call)
		totalAttempts += attempts
		if err == nil {
			return &Outcome{DeploymentID: depID, ModelGroup: group, Attempts: totalAttempts, FallbackChain: chain}, nil
		}
		if bytesSent > 0 {
			return nil, err // streamed content already reached the client; no retry/fallback
		}
		lastErr = err

		if len(remaining) == 0 {
			return nil, lastErr
		}
		group = remaining[0]
		remaining = remaining[1:]
		chain = append(chain, group)
	}
}

func (r *Router) dispatchStreamModelGroup(ctx context.Context, cc CallContext, modelGroup string, call StreamCall) (depID string, attempts int, bytesSent int, err error) {
	var lastErr error

	dep, selErr := r.Select(ctx, modelGroup)
	if selErr != nil {
		return "", attempts, 0, selErr
	}

	for attempt := 0; attempt <= r.numRetries; attempt++ {
		if r.limiter != nil {
			decision, lerr := r.limiter.Admit(ctx, cc, 0)
			if lerr != nil {
				return "", attempts, 0, lerr
			}
			if !decision.Allowed {
				return "", attempts, 0, apierrors.New(apierrors.BudgetExceeded, "%s", decision.Reason)
			}
		}

		state := r.stateFor(dep.ID)
		state.mu.Lock()
		state.inFlight++
		state.mu.Unlock()

		start := time.Now()
		sent, callErr := call(ctx, dep)
		elapsed := time.Since(start)

		state.mu.Lock()
		state.inFlight--
		state.mu.Unlock()

		if r.limiter != nil {
			r.limiter.Release(cc)
		}

		attempts++

		if callErr == nil {
			state.recordLatency(elapsed)
			state.mu.Lock()
			state.consecutiveCooldowns = 0
			state.mu.Unlock()
			return dep.ID, attempts, sent, nil
		}

		lastErr = callErr
		if sent > 0 {
			return dep.ID, attempts, sent, callErr // client already has bytes: final, no retry
		}

		if shouldCooldown(callErr) && r.cooldowns != nil {
			dur := r.cooldownDuration(state)
			state.mu.Lock()
			state.consecutiveCooldowns++
			state.mu.Unlock()
			_ = r.cooldowns.Cooldown(ctx, dep.ID, dur)
		}

		apiErr, ok := apierrors.As(callErr)
		if !ok || !apiErr.Retriable() {
			return dep.ID, attempts, 0, callErr
		}
		if attempt < r.numRetries {
			select {
			case <-ctx.Done():
				return dep.ID, attempts, 0, ctx.Err()
			case <-time.After(r.backoffDuration(attempt)):
			}
		}
	}
	return "", attempts, 0, lastErr
}
