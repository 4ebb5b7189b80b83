package hooks

import (
	"context"
	"regexp"
	"strings"

	"github.com/litellm-go/gateway/pkg/llm"
)

// Guardrail is the concrete hook built from one guardrails[] YAML entry
// (spec §4.4, §6). It ships two built-in content-filter kinds, grounded on
// BaSui01-agentflow's agent/guardrails.PIIDetector: pattern-based PII
// detection and banned-keyword matching. Any other configured kind
// registers as a no-op scanner — concrete third-party backends (Presidio,
// Bedrock Guardrails, Lakera, Noma) are out of scope; only the hook
// contract they'd plug into is.
type Guardrail struct {
	name      string
	scope     Scope
	modes     []Stage
	kind      string
	patterns  map[string]*regexp.Regexp
	keywords  []string
	defaultOn bool
}

// GuardrailConfig is the subset of a guardrails[] entry a Guardrail needs
// to decide what it scans for, at which pipeline stages, and whether it
// runs unless explicitly excluded from a call's `guardrails` selection.
type GuardrailConfig struct {
	Name        string
	Kind        string // "pii" or "keyword"; anything else never blocks
	Modes       []Stage
	Keywords    []string
	PIIEntities []string // empty enables every built-in pattern
	DefaultOn   bool
}

// builtinPIIPatterns are the default regexes for kind "pii", one per
// entity name a guardrails[] entry can list under pii_entities.
var builtinPIIPatterns = map[string]*regexp.Regexp{
	"email":       regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	"phone":       regexp.MustCompile(`\+?\d[\d\-\s]{8,}\d`),
	"credit_card": regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`),
	"ssn":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
}

// NewGuardrail builds a Guardrail from cfg. Every Guardrail runs at
// ScopeGlobal: the YAML guardrails[] list has no notion of model or team
// binding of its own (that's PolicyStore's job, out of scope per spec §6),
// so model/team-level guardrail ordering never has a narrower scope to
// rank above it.
func NewGuardrail(cfg GuardrailConfig) *Guardrail {
	g := &Guardrail{
		name:      cfg.Name,
		scope:     ScopeGlobal,
		modes:     cfg.Modes,
		kind:      cfg.Kind,
		keywords:  cfg.Keywords,
		defaultOn: cfg.DefaultOn,
	}
	if cfg.Kind != "pii" {
		return g
	}
	entities := cfg.PIIEntities
	if len(entities) == 0 {
		for name := range builtinPIIPatterns {
			entities = append(entities, name)
		}
	}
	g.patterns = make(map[string]*regexp.Regexp, len(entities))
	for _, name := range entities {
		if p, ok := builtinPIIPatterns[name]; ok {
			g.patterns[name] = p
		}
	}
	return g
}

func (g *Guardrail) Name() string    { return g.name }
func (g *Guardrail) Scope() Scope    { return g.scope }
func (g *Guardrail) Stages() []Stage { return g.modes }

// applies reports whether g should run given a call's per-call `guardrails`
// selection (spec §3): an empty selection runs every default_on guardrail,
// a non-empty one runs only the guardrails it names.
func (g *Guardrail) applies(selection []string) bool {
	if len(selection) == 0 {
		return g.defaultOn
	}
	for _, name := range selection {
		if name == g.name {
			return true
		}
	}
	return false
}

// scan reports whether content trips this guardrail, and the matched
// entities to surface in a blocked Verdict's Metadata.
func (g *Guardrail) scan(content string) (blocked bool, entities map[string]any) {
	switch g.kind {
	case "pii":
		found := make(map[string]any, len(g.patterns))
		for entity, pattern := range g.patterns {
			if matches := pattern.FindAllString(content, -1); len(matches) > 0 {
				found[entity] = matches
			}
		}
		return len(found) > 0, found
	case "keyword":
		lower := strings.ToLower(content)
		for _, kw := range g.keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return true, map[string]any{"keyword": kw}
			}
		}
		return false, nil
	default:
		return false, nil
	}
}

func requestText(req *llm.Request) string {
	var sb strings.Builder
	for _, m := range req.Messages {
		sb.WriteString(m.Content.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func responseText(resp *llm.Response) string {
	var sb strings.Builder
	for _, c := range resp.Choices {
		sb.WriteString(c.Message.Content.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// PreCall implements PreCallHook: a request whose message content trips
// this guardrail's scan is rejected before any provider call is made.
func (g *Guardrail) PreCall(ctx context.Context, req *llm.Request) (Verdict, error) {
	if !g.applies(req.Guardrails) {
		return Verdict{}, nil
	}
	blocked, entities := g.scan(requestText(req))
	if !blocked {
		return Verdict{}, nil
	}
	return Verdict{Blocked: true, Reason: g.name + ": " + g.kind + " match", Metadata: entities}, nil
}

// DuringCall implements DuringCallHook: identical scan to PreCall, for a
// guardrail configured to run concurrently with the upstream call instead
// of blocking ahead of it (spec §4.4's during_call stage).
func (g *Guardrail) DuringCall(ctx context.Context, req *llm.Request) (Verdict, error) {
	return g.PreCall(ctx, req)
}

// PostCallSuccess implements PostCallSuccessHook: an output-side guardrail
// (mode: post_call) scans the assembled response the same way PreCall
// scans the request.
func (g *Guardrail) PostCallSuccess(ctx context.Context, req *llm.Request, resp *llm.Response) (Verdict, error) {
	if !g.applies(req.Guardrails) {
		return Verdict{}, nil
	}
	blocked, entities := g.scan(responseText(resp))
	if !blocked {
		return Verdict{}, nil
	}
	return Verdict{Blocked: true, Reason: g.name + ": " + g.kind + " match", Metadata: entities}, nil
}
