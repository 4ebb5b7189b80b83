// Package sap adapts SAP Generative AI Hub's deployment model: a single
// AICORE_SERVICE_KEY JSON blob credential (spec §3 item 4, §4.1 item 4) and
// a `--`-namespaced sub-model id (e.g. "anthropic--claude-4.5-sonnet", spec
// §3 item 3) that selects which underlying wire shape to speak. Rather than
// reimplement translation, this adapter delegates to the gateway's own
// Anthropic/Gemini adapters once it has exchanged the service key for a
// bearer token and rewritten the deployment to point at AI Core's proxy
// endpoint — the same "adapter owns provider-specific parsing" split spec
// §3 item 3 calls out.
package sap

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/httpclient"
	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/providers"
)

// serviceKey is the shape of the AICORE_SERVICE_KEY / Deployment.ServiceKey
// JSON blob SAP issues instead of discrete env vars.
type serviceKey struct {
	ClientID     string `json:"clientid"`
	ClientSecret string `json:"clientsecret"`
	URL          string `json:"url"` // OAuth token endpoint base
	ServiceURLs  struct {
		AICore string `json:"AI_API_URL"`
	} `json:"serviceurls"`
}

// Delegate is the subset of providers.Adapter + ChatAdapter + ChatStreamAdapter
// that a wrapped sub-model provider must implement; anthropic.Provider and
// gemini.Provider both satisfy it.
type Delegate interface {
	providers.ChatAdapter
	providers.ChatStreamAdapter
}

// Provider fronts the anthropic/gemini sub-model adapters behind SAP's
// OAuth2-client-credentials exchange and deployment-id-based routing.
type Provider struct {
	delegates map[string]Delegate // sub-model prefix -> delegate adapter

	httpClient *httpclient.Client

	mu     sync.Mutex
	tokens map[string]cachedToken // clientID -> cached bearer token
}

type cachedToken struct {
	value   string
	expires time.Time
}

// New builds a SAP adapter delegating to the given sub-model adapters,
// keyed by the prefix before the `--` separator (e.g. "anthropic", "gemini").
func New(delegates map[string]Delegate) *Provider {
	return &Provider{
		delegates: delegates,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithMaxRetries(1),
		),
		tokens: make(map[string]cachedToken),
	}
}

func (p *Provider) Name() string { return "sap" }

func (p *Provider) Capabilities() []providers.Capability {
	return []providers.Capability{providers.CapChat, providers.CapChatStream}
}

// splitSubModel implements spec §3 item 3's `--` sub-model parsing: the
// prefix selects the delegate, the suffix is the sub-model's own native id.
func splitSubModel(model string) (prefix, subModel string, ok bool) {
	idx := strings.Index(model, "--")
	if idx < 0 {
		return "", "", false
	}
	return model[:idx], model[idx+2:], true
}

func (p *Provider) resolve(dep *llm.Deployment) (Delegate, *llm.Deployment, error) {
	prefix, subModel, ok := splitSubModel(dep.Model)
	if !ok {
		return nil, nil, apierrors.New(apierrors.BadRequest, "sap model %q is missing a --sub-model separator", dep.Model)
	}
	delegate, ok := p.delegates[prefix]
	if !ok {
		return nil, nil, apierrors.New(apierrors.UnknownProvider, "no sap sub-model delegate registered for %q", prefix)
	}

	resolved := *dep
	resolved.Model = subModel

	if dep.ServiceKey != "" {
		token, apiBase, err := p.exchangeToken(dep.ServiceKey)
		if err != nil {
			return nil, nil, err
		}
		resolved.APIKey = token
		resolved.APIBase = apiBase + "/v2/inference/deployments/" + dep.ID
	}
	return delegate, &resolved, nil
}

// exchangeToken performs the OAuth2 client-credentials grant against the
// service key's token endpoint, caching the result until 60s before expiry.
func (p *Provider) exchangeToken(rawKey string) (token string, apiBase string, err error) {
	var key serviceKey
	if err := json.Unmarshal([]byte(rawKey), &key); err != nil {
		return "", "", apierrors.Wrap(apierrors.MissingCredential, err, "parse sap service_key blob")
	}

	p.mu.Lock()
	if cached, ok := p.tokens[key.ClientID]; ok && time.Now().Before(cached.expires) {
		p.mu.Unlock()
		return cached.value, key.ServiceURLs.AICore, nil
	}
	p.mu.Unlock()

	form := "grant_type=client_credentials&client_id=" + key.ClientID + "&client_secret=" + key.ClientSecret
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(key.URL, "/")+"/oauth/token", bytes.NewReader([]byte(form)))
	if err != nil {
		return "", "", apierrors.Wrap(apierrors.InternalError, err, "build sap oauth request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil && resp == nil {
		return "", "", apierrors.Wrap(apierrors.UpstreamError, err, "sap oauth token exchange failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", apierrors.New(apierrors.AuthenticationError, "sap oauth token exchange failed (HTTP %d)", resp.StatusCode)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", apierrors.Wrap(apierrors.UpstreamError, err, "decode sap oauth response")
	}

	expiry := time.Now().Add(time.Duration(parsed.ExpiresIn)*time.Second - 60*time.Second)
	p.mu.Lock()
	p.tokens[key.ClientID] = cachedToken{value: parsed.AccessToken, expires: expiry}
	p.mu.Unlock()

	return parsed.AccessToken, key.ServiceURLs.AICore, nil
}

func (p *Provider) Chat(ctx context.Context, dep *llm.Deployment, req *llm.Request) (*llm.Response, error) {
	delegate, resolved, err := p.resolve(dep)
	if err != nil {
		return nil, err
	}
	return delegate.Chat(ctx, resolved, req)
}

func (p *Provider) ChatStream(ctx context.Context, dep *llm.Deployment, req *llm.Request) (<-chan llm.StreamChunk, error) {
	delegate, resolved, err := p.resolve(dep)
	if err != nil {
		return nil, err
	}
	return delegate.ChatStream(ctx, resolved, req)
}

func (p *Provider) MapError(statusCode int, body []byte) *apierrors.Error {
	return apierrors.New(apierrors.UpstreamError, "sap error (HTTP %d): %s", statusCode, string(body))
}
