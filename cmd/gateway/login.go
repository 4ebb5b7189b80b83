package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/term"
)

// LoginCmd implements `login` (spec §6): it interactively obtains an
// operator token, an HS256 JWT signed with the gateway's master_key so it
// can be verified without a separate identity provider.
type LoginCmd struct {
	User string `help:"Operator username embedded in the token subject." default:"operator"`
	TTL  string `help:"Token lifetime." default:"24h"`
}

func (c *LoginCmd) Run(cli *CLI) error {
	ttl, err := time.ParseDuration(c.TTL)
	if err != nil {
		return wrapConfigError(fmt.Errorf("invalid --ttl: %w", err))
	}

	masterKey, err := readMasterKey(os.Stdin, os.Stderr)
	if err != nil {
		return err
	}
	if masterKey == "" {
		return wrapConfigError(fmt.Errorf("master key is required"))
	}

	now := time.Now()
	tok, err := jwt.NewBuilder().
		Subject(c.User).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim("scope", "operator").
		Build()
	if err != nil {
		return fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(masterKey)))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	fmt.Println(string(signed))
	return nil
}

// readMasterKey prompts for the master key on prompt, masking keystrokes
// when stdin is an interactive terminal (golang.org/x/term, the same
// terminal-state package the teacher uses to gate colored approval prompts
// on pkg/cli's IsTerminal check). Piped input (a non-terminal stdin, e.g.
// from a CI secret) falls back to a plain line read.
func readMasterKey(stdin *os.File, prompt *os.File) (string, error) {
	fmt.Fprint(prompt, "Master key: ")
	if term.IsTerminal(int(stdin.Fd())) {
		key, err := term.ReadPassword(int(stdin.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read master key: %w", err)
		}
		return strings.TrimSpace(string(key)), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read master key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
