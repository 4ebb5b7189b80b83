package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/litellm-go/gateway/pkg/config/provider"
	"gopkg.in/yaml.v3"
)

// Loader reads, expands, defaults, and validates a Config from a Provider
// (spec §6's YAML config file), grounded on kadirpekel/hector's
// pkg/config.Loader load-then-watch shape.
type Loader struct {
	provider provider.Provider
	onChange func(*Config)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnChange sets a callback invoked with the freshly reloaded Config
// whenever Watch observes a change.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) { l.onChange = fn }
}

// NewLoader builds a Loader reading from p.
func NewLoader(p provider.Provider, opts ...LoaderOption) *Loader {
	l := &Loader{provider: p}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads raw YAML from the provider, expands ${VAR} references against
// the process environment, decodes into Config, applies defaults, and
// validates.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expanded := ExpandEnvVarsInData(raw)

	remarshaled, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to re-marshal expanded config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(remarshaled, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if expandedMap, ok := expanded.(map[string]any); ok {
		strict, err := validateStrict(expandedMap)
		if err != nil {
			return nil, fmt.Errorf("strict config validation: %w", err)
		}
		if !strict.OK() {
			return nil, fmt.Errorf("config rejected by strict validation:\n%s", strict.Report())
		}
	}

	if err := mergeEnvironmentVariables(cfg); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Watch starts watching the provider for changes, reloading and invoking
// onChange on every change. Blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context) error {
	changes, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}
	if changes == nil {
		slog.Info("config watching not supported by provider", "type", l.provider.Type())
		<-ctx.Done()
		return ctx.Err()
	}

	slog.Info("started watching for config changes", "type", l.provider.Type())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			cfg, err := l.Load(ctx)
			if err != nil {
				slog.Error("failed to reload config", "error", err)
				continue
			}
			if l.onChange != nil {
				l.onChange(cfg)
			}
		}
	}
}
