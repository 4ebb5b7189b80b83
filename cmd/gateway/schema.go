package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/litellm-go/gateway/pkg/config"
)

// SchemaCmd implements `gateway schema`: it emits the JSON Schema for the
// gateway's YAML config, the document an editor or CI lint step can
// validate a config file against before it ever reaches `gateway serve`.
type SchemaCmd struct {
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = "https://litellm-go.dev/schemas/config.json"
	schema.Title = "litellm-go Gateway Configuration Schema"
	schema.Description = "model_list, router_settings, guardrails, mcp_servers and general_settings for the gateway config file"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	return nil
}
