package providers

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/registry"
)

// Factory builds a fresh Adapter instance for one provider type. Registry
// calls a Factory at most once per provider type, the first time that
// type is resolved, and caches the result — every deployment of that
// provider type then shares the one instance, so its httpclient.Client
// connection pool (and, for bedrock, its per-region client cache) is
// actually reused across calls instead of being rebuilt per request.
type Factory func() Adapter

// Registry resolves a model-group name plus per-call overrides into a
// concrete (Deployment, Adapter) pair (spec §4.1). It wraps the teacher's
// generic BaseRegistry[T] twice: once keyed by provider-type name for
// adapter factories, once keyed by model-group name for the deployments
// that share it.
type Registry struct {
	adapters *registry.BaseRegistry[Factory]
	groups   *registry.BaseRegistry[[]*llm.Deployment]

	instancesMu sync.Mutex
	instances   map[string]Adapter
}

// NewRegistry builds an empty Registry. Call RegisterAdapter for each
// provider type and RegisterDeployment for each configured deployment
// before serving traffic.
func NewRegistry() *Registry {
	return &Registry{
		adapters:  registry.NewBaseRegistry[Factory](),
		groups:    registry.NewBaseRegistry[[]*llm.Deployment](),
		instances: make(map[string]Adapter),
	}
}

// RegisterAdapter makes a provider type available for resolution.
func (r *Registry) RegisterAdapter(providerType string, factory Factory) error {
	return r.adapters.Register(providerType, factory)
}

// RegisterDeployment adds one deployment to its model-group, creating the
// group if this is its first member. Multiple deployments sharing a
// ModelName form a model group the router load-balances across (spec §4.5).
func (r *Registry) RegisterDeployment(dep *llm.Deployment) error {
	if dep.ModelName == "" {
		return fmt.Errorf("deployment model_name cannot be empty")
	}
	existing, _ := r.groups.Get(dep.ModelName)
	r.groups.Upsert(dep.ModelName, append(existing, dep))
	return nil
}

// ModelGroup returns every deployment registered under a model-group name.
// When modelName was never declared in model_list[], spec §4.1's Resolve
// fallback applies: split the string on its first "/"; a recognized
// provider prefix synthesizes a single ad hoc deployment for that
// provider/model pair, otherwise the whole string is treated as a bare
// OpenAI model name. The synthesized deployment carries no static
// credentials, so Resolve falls through to the provider's environment
// variable the same way a configured deployment without api_key would.
func (r *Registry) ModelGroup(modelName string) ([]*llm.Deployment, bool) {
	if group, ok := r.groups.Get(modelName); ok {
		return group, true
	}
	return r.fallbackGroup(modelName)
}

func (r *Registry) fallbackGroup(modelName string) ([]*llm.Deployment, bool) {
	if providerName, modelID, ok := strings.Cut(modelName, "/"); ok {
		if _, known := r.adapters.Get(providerName); known {
			return []*llm.Deployment{{
				ID:        modelName,
				ModelName: modelName,
				Provider:  providerName,
				Model:     modelID,
			}}, true
		}
	}
	if _, known := r.adapters.Get("openai"); known {
		return []*llm.Deployment{{
			ID:        modelName,
			ModelName: modelName,
			Provider:  "openai",
			Model:     modelName,
		}}, true
	}
	return nil, false
}

// Overrides are per-call routing knobs that take precedence over a
// deployment's static config, per spec §4.1's resolution-precedence rule
// (per-call override > per-deployment config > environment variable).
type Overrides struct {
	APIKey  string
	APIBase string
}

// Adapter resolves the provider Adapter for a deployment's Provider field,
// building it via the registered Factory on first use and reusing that
// same instance for every subsequent call against that provider type.
func (r *Registry) Adapter(dep *llm.Deployment) (Adapter, error) {
	r.instancesMu.Lock()
	defer r.instancesMu.Unlock()

	if adapter, ok := r.instances[dep.Provider]; ok {
		return adapter, nil
	}
	factory, ok := r.adapters.Get(dep.Provider)
	if !ok {
		return nil, apierrors.New(apierrors.UnknownProvider, "no adapter registered for provider %q", dep.Provider)
	}
	adapter := factory()
	r.instances[dep.Provider] = adapter
	return adapter, nil
}

// Resolve implements spec §4.1's credential-resolution precedence for one
// deployment: a per-call override wins, then the deployment's static
// api_key/api_base, then the provider's conventional environment variable,
// then — for SAP-shaped providers — the bundled SERVICE_KEY blob. It
// returns a shallow copy of dep so the registry's stored deployment is
// never mutated by a single call's overrides.
func (r *Registry) Resolve(dep *llm.Deployment, ov Overrides) (*llm.Deployment, Adapter, error) {
	adapter, err := r.Adapter(dep)
	if err != nil {
		return nil, nil, err
	}

	resolved := *dep
	if ov.APIKey != "" {
		resolved.APIKey = ov.APIKey
	} else if resolved.APIKey == "" {
		resolved.APIKey = envCredential(dep.Provider)
	}
	if ov.APIBase != "" {
		resolved.APIBase = ov.APIBase
	}

	if resolved.APIKey == "" && resolved.ServiceKey == "" {
		return nil, nil, apierrors.New(apierrors.MissingCredential,
			"no credential resolved for deployment %q (provider %q): set api_key, %s, or service_key",
			dep.ModelName, dep.Provider, envVarName(dep.Provider))
	}

	return &resolved, adapter, nil
}

// envVarName returns the conventional environment variable LiteLLM-style
// tooling reads for a given provider, per spec §4.1 item 3.
func envVarName(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	case "cohere":
		return "COHERE_API_KEY"
	case "bedrock":
		return "AWS_ACCESS_KEY_ID"
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}

func envCredential(provider string) string {
	return os.Getenv(envVarName(provider))
}

// ResolveModel picks one deployment from a model group by id (used when a
// client pins a specific deployment), or returns the group's first
// registered deployment when id is empty — it does no load-balancing,
// which is the router's responsibility (spec §4.5), not the registry's.
func (r *Registry) ResolveModel(modelName, deploymentID string) (*llm.Deployment, error) {
	group, ok := r.groups.Get(modelName)
	if !ok || len(group) == 0 {
		return nil, apierrors.New(apierrors.UnknownModel, "no deployments configured for model_name %q", modelName)
	}
	if deploymentID == "" {
		return group[0], nil
	}
	for _, d := range group {
		if d.ID == deploymentID {
			return d, nil
		}
	}
	return nil, apierrors.New(apierrors.UnknownModel, "deployment %q not found in model group %q", deploymentID, modelName)
}
