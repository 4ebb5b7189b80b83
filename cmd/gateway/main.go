// Command gateway is the CLI for the litellm-go unified LLM gateway.
//
// Usage:
//
//	gateway serve --config config.yaml
//	gateway models import deployments.yaml --config config.yaml
//	gateway keys import keys.json --config config.yaml
//	gateway login
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// CLI is the gateway's command-line interface (spec §6). Exit codes: 0
// success, 2 config error, 3 runtime fatal.
type CLI struct {
	Serve  ServeCmd  `cmd:"" help:"Start the gateway HTTP server."`
	Models ModelsCmd `cmd:"" help:"Manage model_list deployment definitions."`
	Keys   KeysCmd   `cmd:"" help:"Manage virtual keys."`
	Login  LoginCmd  `cmd:"" help:"Obtain an operator token."`
	Schema SchemaCmd `cmd:"" help:"Print the JSON Schema for the gateway config file."`

	Config   string `short:"c" help:"Path to the gateway config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// configError marks an error that should exit with code 2 (spec §6):
// config file missing, malformed, or failing validation.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func wrapConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &configError{err: err}
}

func isConfigError(err error) bool {
	var ce *configError
	return errors.As(err, &ce)
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("gateway"),
		kong.Description("litellm-go gateway - unified LLM provider proxy"),
		kong.UsageOnError(),
	)

	if err := kctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if isConfigError(err) {
			os.Exit(2)
		}
		os.Exit(3)
	}
}
