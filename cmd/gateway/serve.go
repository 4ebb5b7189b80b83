package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/litellm-go/gateway/pkg/config"
	"github.com/litellm-go/gateway/pkg/config/provider"
	"github.com/litellm-go/gateway/pkg/logger"
	"github.com/litellm-go/gateway/pkg/server"
)

// ServeCmd starts the gateway HTTP server (spec §6: `serve --config <path>`).
type ServeCmd struct {
	Port     int    `help:"Port to listen on." default:"4000"`
	Watch    bool   `help:"Watch the config file for changes and hot-reload."`
	KeysFile string `name:"keys-file" help:"JSON file of virtual keys to load at boot." type:"path"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return wrapConfigError(err)
	}
	logger.Init(level, os.Stderr, "simple")
	log := logger.GetLogger()

	if cli.Config == "" {
		return wrapConfigError(fmt.Errorf("--config is required"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	p, err := provider.New(provider.ProviderConfig{Type: provider.TypeFile, Path: cli.Config})
	if err != nil {
		return wrapConfigError(fmt.Errorf("config provider: %w", err))
	}
	defer p.Close()

	loader := config.NewLoader(p)
	cfg, err := loader.Load(ctx)
	if err != nil {
		return wrapConfigError(err)
	}

	deps, err := server.BuildDeps(ctx, cfg)
	if err != nil {
		return wrapConfigError(fmt.Errorf("build gateway: %w", err))
	}

	if c.KeysFile != "" {
		records, err := server.LoadKeysFile(c.KeysFile)
		if err != nil {
			return wrapConfigError(fmt.Errorf("keys file: %w", err))
		}
		n := deps.Keys.Import(records)
		log.Info("loaded virtual keys", "count", n, "file", c.KeysFile)
	}

	addr := fmt.Sprintf(":%d", c.Port)
	gw := server.New(deps, addr)

	if c.Watch {
		loader = config.NewLoader(p, config.WithOnChange(func(newCfg *config.Config) {
			log.Info("config file changed, reloading")
			newDeps, err := server.BuildDeps(ctx, newCfg)
			if err != nil {
				log.Error("failed to rebuild gateway from reloaded config", "error", err)
				return
			}
			if c.KeysFile != "" {
				if records, err := server.LoadKeysFile(c.KeysFile); err != nil {
					log.Error("failed to reload keys file", "error", err)
				} else {
					newDeps.Keys.Import(records)
				}
			}
			gw.Reload(newDeps)
		}))
		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Error("config watch error", "error", err)
			}
		}()
	}

	log.Info("gateway listening", "addr", addr, "config", cli.Config)
	if err := gw.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}
