package main

import (
	"fmt"
	"os"

	"github.com/litellm-go/gateway/pkg/config"
	"gopkg.in/yaml.v3"
)

// ModelsCmd manages model_list deployment definitions.
type ModelsCmd struct {
	Import ModelsImportCmd `cmd:"" help:"Bulk-load deployment definitions into the config file."`
}

// ModelsImportCmd implements `models import <file>` (spec §6): it merges a
// standalone model_list[] YAML file into the gateway's config file.
type ModelsImportCmd struct {
	File string `arg:"" help:"YAML file containing a model_list[] array." type:"path"`
}

func (c *ModelsImportCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return wrapConfigError(fmt.Errorf("--config is required for models import"))
	}

	data, err := os.ReadFile(c.File)
	if err != nil {
		return wrapConfigError(fmt.Errorf("read %s: %w", c.File, err))
	}
	var entries []config.ModelListEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return wrapConfigError(fmt.Errorf("parse %s: %w", c.File, err))
	}
	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return wrapConfigError(fmt.Errorf("%s[%d]: %w", c.File, i, err))
		}
	}

	cfgData, err := os.ReadFile(cli.Config)
	if err != nil {
		return wrapConfigError(fmt.Errorf("read %s: %w", cli.Config, err))
	}
	var cfg config.Config
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		return wrapConfigError(fmt.Errorf("parse %s: %w", cli.Config, err))
	}

	cfg.ModelList = append(cfg.ModelList, entries...)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return wrapConfigError(fmt.Errorf("merged config invalid: %w", err))
	}

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(cli.Config, out, 0644); err != nil {
		return fmt.Errorf("write %s: %w", cli.Config, err)
	}

	fmt.Printf("imported %d model(s) into %s\n", len(entries), cli.Config)
	return nil
}
