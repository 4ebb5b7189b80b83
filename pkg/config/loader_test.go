package config

import (
	"context"
	"testing"
	"time"

	"github.com/litellm-go/gateway/pkg/config/provider"
)

type memProvider struct {
	data    []byte
	changes chan struct{}
}

func newMemProvider(data string) *memProvider {
	return &memProvider{data: []byte(data), changes: make(chan struct{}, 1)}
}

func (m *memProvider) Type() provider.Type                       { return provider.TypeFile }
func (m *memProvider) Load(ctx context.Context) ([]byte, error)  { return m.data, nil }
func (m *memProvider) Watch(ctx context.Context) (<-chan struct{}, error) { return m.changes, nil }
func (m *memProvider) Close() error                              { return nil }

const sampleYAML = `
model_list:
  - model_name: gpt-4o
    litellm_params:
      model: openai/gpt-4o
      api_key: ${TEST_GATEWAY_API_KEY:-sk-default}
router_settings:
  routing_strategy: least-busy
general_settings:
  master_key: sk-master
`

func TestLoaderLoadExpandsDefaultsAndValidates(t *testing.T) {
	p := newMemProvider(sampleYAML)
	l := NewLoader(p)

	cfg, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(cfg.ModelList) != 1 {
		t.Fatalf("ModelList has %d entries, want 1", len(cfg.ModelList))
	}
	if cfg.ModelList[0].LiteLLMParams.APIKey != "sk-default" {
		t.Errorf("APIKey = %q, want sk-default (env var unset, should fall back)", cfg.ModelList[0].LiteLLMParams.APIKey)
	}
	if cfg.RouterSettings.RoutingStrategy != "least-busy" {
		t.Errorf("RoutingStrategy = %q, want least-busy", cfg.RouterSettings.RoutingStrategy)
	}
	if cfg.RouterSettings.NumRetries != 2 {
		t.Errorf("NumRetries default not applied, got %d", cfg.RouterSettings.NumRetries)
	}
}

func TestLoaderLoadPropagatesProviderEnvOverride(t *testing.T) {
	t.Setenv("TEST_GATEWAY_API_KEY", "sk-from-env")

	p := newMemProvider(sampleYAML)
	l := NewLoader(p)

	cfg, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ModelList[0].LiteLLMParams.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want sk-from-env", cfg.ModelList[0].LiteLLMParams.APIKey)
	}
}

func TestLoaderLoadRejectsInvalidConfig(t *testing.T) {
	p := newMemProvider(`
model_list:
  - model_name: ""
    litellm_params:
      model: openai/gpt-4o
`)
	l := NewLoader(p)

	if _, err := l.Load(context.Background()); err == nil {
		t.Fatal("expected validation error for empty model_name")
	}
}

func TestLoaderWatchInvokesOnChangeAfterSignal(t *testing.T) {
	p := newMemProvider(sampleYAML)
	done := make(chan *Config, 1)
	l := NewLoader(p, WithOnChange(func(cfg *Config) {
		done <- cfg
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go l.Watch(ctx)
	p.changes <- struct{}{}

	select {
	case cfg := <-done:
		if cfg.RouterSettings.RoutingStrategy != "least-busy" {
			t.Errorf("reloaded RoutingStrategy = %q, want least-busy", cfg.RouterSettings.RoutingStrategy)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onChange was not invoked after a config change signal")
	}
}
