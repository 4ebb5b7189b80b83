package router

import (
	"context"
	"sync"
	"time"

	"github.com/litellm-go/gateway/pkg/apierrors"
)

// LimitScope identifies what a limiter key counts against (spec §4.5's
// "per-key / per-team / per-model concurrency caps").
type LimitScope string

const (
	ScopeKey        LimitScope = "key"
	ScopeTeam       LimitScope = "team"
	ScopeModelGroup LimitScope = "model_group"
)

// CallContext carries the caller identity and priority the limiters key on.
// The server layer populates this from the authenticated virtual key before
// handing a request to the Router.
type CallContext struct {
	KeyID      string
	TeamID     string
	ModelGroup string
	Priority   int // higher runs first once the dynamic limiter is saturated
}

// Decision is a Limiter's verdict on one admission check.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// Limiter is consulted by the Router before dispatch (spec §4.5). Release
// must be called exactly once for every Admit that returned Allowed=true,
// typically via defer once the upstream call has completed.
type Limiter interface {
	Admit(ctx context.Context, cc CallContext, estimatedTokens int64) (Decision, error)
	Release(cc CallContext)
	RecordUsage(cc CallContext, actualTokens int64, cost float64)
}

// usageKey mirrors the teacher ratelimit package's composite-key, fixed-window
// counter shape (pkg/ratelimit/store_memory.go), generalized from
// session/user scopes to the router's key/team/model_group scopes.
type usageKey struct {
	scope LimitScope
	id    string
}

type window struct {
	count     int64
	windowEnd time.Time
}

// ParallelLimiter enforces the "parallel request limiter v3" rule: a
// concurrency cap per key, per team, and per model-group. Admit increments
// an in-flight counter; Release decrements it. A cap of 0 means unbounded.
type ParallelLimiter struct {
	mu        sync.Mutex
	inFlight  map[usageKey]int64
	caps      map[usageKey]int64
}

// NewParallelLimiter builds a ParallelLimiter with no caps set, so every
// scope starts unbounded. Callers set caps via SetCap before serving traffic.
func NewParallelLimiter() *ParallelLimiter {
	return &ParallelLimiter{
		inFlight: make(map[usageKey]int64),
		caps:     make(map[usageKey]int64),
	}
}

// SetCap configures the concurrency ceiling for one (scope, id) pair.
func (l *ParallelLimiter) SetCap(scope LimitScope, id string, limit int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.caps[usageKey{scope, id}] = limit
}

func (l *ParallelLimiter) Admit(ctx context.Context, cc CallContext, estimatedTokens int64) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := l.keysFor(cc)
	for _, k := range keys {
		limit, capped := l.caps[k]
		if !capped || limit <= 0 {
			continue
		}
		if l.inFlight[k] >= limit {
			return Decision{Allowed: false, Reason: "parallel request limit exceeded for " + string(k.scope) + " " + k.id}, nil
		}
	}
	for _, k := range keys {
		l.inFlight[k]++
	}
	return Decision{Allowed: true}, nil
}

func (l *ParallelLimiter) Release(cc CallContext) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range l.keysFor(cc) {
		if l.inFlight[k] > 0 {
			l.inFlight[k]--
		}
	}
}

func (l *ParallelLimiter) RecordUsage(cc CallContext, actualTokens int64, cost float64) {}

func (l *ParallelLimiter) keysFor(cc CallContext) []usageKey {
	var keys []usageKey
	if cc.KeyID != "" {
		keys = append(keys, usageKey{ScopeKey, cc.KeyID})
	}
	if cc.TeamID != "" {
		keys = append(keys, usageKey{ScopeTeam, cc.TeamID})
	}
	if cc.ModelGroup != "" {
		keys = append(keys, usageKey{ScopeModelGroup, cc.ModelGroup})
	}
	return keys
}

// DynamicLimiter implements "dynamic rate limiter v3" (spec §4.5): below an
// 80% RPM-saturation threshold for the model-group, every requester is
// admitted; at or above it, admission becomes priority-weighted so lower
// priority callers starve before higher priority ones do.
type DynamicLimiter struct {
	mu           sync.Mutex
	windows      map[usageKey]*window
	rpmCapacity  map[string]int64 // model-group -> configured RPM
	saturationPct float64
}

const defaultSaturationThreshold = 0.80

// NewDynamicLimiter builds a DynamicLimiter using the default 80% threshold.
func NewDynamicLimiter() *DynamicLimiter {
	return &DynamicLimiter{
		windows:       make(map[usageKey]*window),
		rpmCapacity:   make(map[string]int64),
		saturationPct: defaultSaturationThreshold,
	}
}

// SetModelGroupRPM configures the aggregate RPM ceiling a model-group's
// saturation is measured against.
func (l *DynamicLimiter) SetModelGroupRPM(modelGroup string, rpm int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rpmCapacity[modelGroup] = rpm
}

func (l *DynamicLimiter) Admit(ctx context.Context, cc CallContext, estimatedTokens int64) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	capacity, ok := l.rpmCapacity[cc.ModelGroup]
	if !ok || capacity <= 0 {
		return Decision{Allowed: true}, nil
	}

	key := usageKey{ScopeModelGroup, cc.ModelGroup}
	w := l.currentWindow(key)
	saturation := float64(w.count) / float64(capacity)

	if saturation < l.saturationPct {
		w.count++
		return Decision{Allowed: true}, nil
	}

	// At/above threshold: admit only priorities that clear a bar which rises
	// with saturation, so the highest-priority callers are admitted last to
	// starve and lowest-priority first.
	admitBar := int((saturation - l.saturationPct) / (1 - l.saturationPct) * 10)
	if cc.Priority >= admitBar {
		w.count++
		return Decision{Allowed: true}, nil
	}
	return Decision{
		Allowed:    false,
		Reason:     "model group saturated, priority too low for admission",
		RetryAfter: time.Until(w.windowEnd),
	}, nil
}

func (l *DynamicLimiter) currentWindow(key usageKey) *window {
	w, ok := l.windows[key]
	now := time.Now()
	if !ok || w.windowEnd.Before(now) {
		w = &window{windowEnd: now.Add(time.Minute)}
		l.windows[key] = w
	}
	return w
}

func (l *DynamicLimiter) Release(cc CallContext) {}

func (l *DynamicLimiter) RecordUsage(cc CallContext, actualTokens int64, cost float64) {}

// BudgetLimiter enforces per-key and per-team spend ceilings (spec §4.5).
// Admission is refused with apierrors.BudgetExceeded once recorded spend
// within the current refresh window reaches the configured total.
type BudgetLimiter struct {
	mu      sync.Mutex
	spend   map[usageKey]float64
	budgets map[usageKey]float64
	refresh map[usageKey]time.Time
	period  time.Duration
}

// NewBudgetLimiter builds a BudgetLimiter whose spend counters reset every
// refreshPeriod (e.g. 24h for a daily budget, per spec §6 key/team config).
func NewBudgetLimiter(refreshPeriod time.Duration) *BudgetLimiter {
	return &BudgetLimiter{
		spend:   make(map[usageKey]float64),
		budgets: make(map[usageKey]float64),
		refresh: make(map[usageKey]time.Time),
		period:  refreshPeriod,
	}
}

// SetBudget configures the spend ceiling for one (scope, id) pair.
func (l *BudgetLimiter) SetBudget(scope LimitScope, id string, maxSpend float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.budgets[usageKey{scope, id}] = maxSpend
}

func (l *BudgetLimiter) Admit(ctx context.Context, cc CallContext, estimatedTokens int64) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, k := range []usageKey{{ScopeKey, cc.KeyID}, {ScopeTeam, cc.TeamID}} {
		if k.id == "" {
			continue
		}
		l.resetIfExpired(k)
		budget, capped := l.budgets[k]
		if !capped || budget <= 0 {
			continue
		}
		if l.spend[k] >= budget {
			return Decision{Allowed: false, Reason: string(apierrors.BudgetExceeded)}, nil
		}
	}
	return Decision{Allowed: true}, nil
}

func (l *BudgetLimiter) resetIfExpired(k usageKey) {
	if until, ok := l.refresh[k]; !ok || time.Now().After(until) {
		l.spend[k] = 0
		l.refresh[k] = time.Now().Add(l.period)
	}
}

func (l *BudgetLimiter) Release(cc CallContext) {}

func (l *BudgetLimiter) RecordUsage(cc CallContext, actualTokens int64, cost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range []usageKey{{ScopeKey, cc.KeyID}, {ScopeTeam, cc.TeamID}} {
		if k.id == "" {
			continue
		}
		l.resetIfExpired(k)
		l.spend[k] += cost
	}
}

// CompositeLimiter chains multiple Limiters, admitting only if every one
// agrees; Release/RecordUsage fan out to all of them regardless.
type CompositeLimiter struct {
	limiters []Limiter
}

// NewCompositeLimiter combines the parallel, dynamic, and budget limiters
// into the single Limiter the Router consults, per spec §4.5's three-rule
// admission sequence.
func NewCompositeLimiter(limiters ...Limiter) *CompositeLimiter {
	return &CompositeLimiter{limiters: limiters}
}

func (c *CompositeLimiter) Admit(ctx context.Context, cc CallContext, estimatedTokens int64) (Decision, error) {
	var admitted []Limiter
	for _, l := range c.limiters {
		d, err := l.Admit(ctx, cc, estimatedTokens)
		if err != nil {
			for _, a := range admitted {
				a.Release(cc)
			}
			return Decision{}, err
		}
		if !d.Allowed {
			for _, a := range admitted {
				a.Release(cc)
			}
			return d, nil
		}
		admitted = append(admitted, l)
	}
	return Decision{Allowed: true}, nil
}

func (c *CompositeLimiter) Release(cc CallContext) {
	for _, l := range c.limiters {
		l.Release(cc)
	}
}

func (c *CompositeLimiter) RecordUsage(cc CallContext, actualTokens int64, cost float64) {
	for _, l := range c.limiters {
		l.RecordUsage(cc, actualTokens, cost)
	}
}
