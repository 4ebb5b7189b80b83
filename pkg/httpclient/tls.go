package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// TLSConfig lets a deployment point at a provider behind a corporate proxy
// or a self-hosted OpenAI-compatible endpoint with a private CA, the two
// cases spec §4.2's api_base override exists for.
type TLSConfig struct {
	InsecureSkipVerify bool   // skip certificate verification; local/dev self-hosted endpoints only
	CACertificate      string // path to a PEM-encoded CA bundle to trust in addition to the system roots
}

// ConfigureTLS builds an http.Transport trusting CACertificate (if set) and
// honoring InsecureSkipVerify.
func ConfigureTLS(config *TLSConfig) (*http.Transport, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{},
	}

	if config != nil && config.CACertificate != "" {
		caCert, err := os.ReadFile(config.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate from %s: %w", config.CACertificate, err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA certificate from %s", config.CACertificate)
		}

		transport.TLSClientConfig.RootCAs = pool
	}

	if config != nil && config.InsecureSkipVerify {
		transport.TLSClientConfig.InsecureSkipVerify = true
	}

	return transport, nil
}

// WithTLSConfig configures a Client's transport for a self-hosted or
// proxied deployment. Must be applied after WithHTTPClient: see the
// ordering note on that option.
func WithTLSConfig(config *TLSConfig) Option {
	return func(c *Client) {
		if config == nil {
			return
		}

		transport, err := ConfigureTLS(config)
		if err != nil {
			slog.Warn("tls configuration failed, falling back to default transport", "error", err)
			return
		}

		if c.client != nil {
			c.client.Transport = transport
		} else {
			c.client = &http.Client{
				Transport: transport,
				Timeout:   60 * time.Second,
			}
		}
	}
}
