package main

import (
	"fmt"

	"github.com/litellm-go/gateway/pkg/server"
)

// KeysCmd manages virtual keys.
type KeysCmd struct {
	Import KeysImportCmd `cmd:"" help:"Bulk-load virtual keys from a file."`
}

// KeysImportCmd implements `keys import <file>` (spec §6): it validates a
// virtual-key file against the shape `serve --keys-file` expects at boot.
// Keys themselves live in the file passed to serve, never in the gateway
// config, so that a raw key never round-trips through YAML meant for
// version control.
type KeysImportCmd struct {
	File string `arg:"" help:"JSON file containing an array of virtual keys." type:"path"`
}

func (c *KeysImportCmd) Run(cli *CLI) error {
	records, err := server.LoadKeysFile(c.File)
	if err != nil {
		return wrapConfigError(err)
	}

	fmt.Printf("validated %d virtual key(s) in %s\n", len(records), c.File)
	fmt.Printf("pass --keys-file %s to `gateway serve` to load them at boot\n", c.File)
	return nil
}
