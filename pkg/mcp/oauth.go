package mcp

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// safetyMargin is subtracted from a cached token's expiry so a call started
// just before expiry doesn't race a still-in-flight upstream request with an
// already-stale bearer token (spec §4.7: "caches tokens per (server_id,
// principal) until expiry minus a safety margin").
const safetyMargin = 30 * time.Second

// OAuthConfig configures the client-credentials exchange the gateway
// performs on an MCP server's behalf (spec §4.7).
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// oauthCache performs and caches per-principal client-credentials token
// exchanges for one MCP server, golang.org/x/oauth2/clientcredentials doing
// the actual exchange (the same oauth2 family the simple-container-com-api
// example pulls in for its own service-to-service auth).
type oauthCache struct {
	cfg *clientcredentials.Config

	mu     sync.Mutex
	tokens map[string]*oauth2.Token // keyed by principal
}

func newOAuthCache(c *OAuthConfig) *oauthCache {
	return &oauthCache{
		cfg: &clientcredentials.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			TokenURL:     c.TokenURL,
			Scopes:       c.Scopes,
		},
		tokens: make(map[string]*oauth2.Token),
	}
}

// Token returns a cached, still-valid access token for principal, or
// performs a fresh exchange and caches the result.
func (c *oauthCache) Token(ctx context.Context, principal string) (string, error) {
	c.mu.Lock()
	tok, ok := c.tokens[principal]
	c.mu.Unlock()

	if ok && tok.Valid() && time.Until(tok.Expiry) > safetyMargin {
		return tok.AccessToken, nil
	}

	fresh, err := c.cfg.Token(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.tokens[principal] = fresh
	c.mu.Unlock()

	return fresh.AccessToken, nil
}
