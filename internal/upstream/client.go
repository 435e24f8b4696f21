package upstream

// Package upstream is the single configured request pipeline for all
// marketplace API calls. Requests made through the authed client pick up the
// current access token from the token vault; the raw client is the escape
// hatch for calls that must not depend on the bearer interceptor (the
// cookie-authenticated refresh, login/register, and the explicit-header
// logout).

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/propaddadjs/portal-gateway/internal/tokens"
)

// DefaultBaseURL is the fallback marketplace API origin used when no
// UPSTREAM_BASE_URL is configured.
const DefaultBaseURL = "https://api.propadda.in"

// Config groups the client's construction parameters.
type Config struct {
	// BaseURL is the marketplace API origin. Empty falls back to DefaultBaseURL.
	BaseURL string
	// Timeout bounds every upstream round-trip. Zero means 15s.
	Timeout time.Duration
}

// Client is the shared upstream pipeline. It is safe for concurrent use.
type Client struct {
	base   *url.URL
	authed *http.Client
	raw    *http.Client
	logger *slog.Logger
}

// NewClient constructs the upstream client over the given token vault.
func NewClient(cfg Config, vault *tokens.Vault, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream base URL %q must be absolute", cfg.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Client{
		base: base,
		authed: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &bearerTransport{vault: vault, next: http.DefaultTransport},
		},
		raw: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		logger: logger,
	}, nil
}

// BaseURL returns the configured upstream origin.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// AuthedTransport returns the bearer-injecting round tripper, for use by the
// guarded reverse proxy. Requests must carry a session id in their context
// (see WithSession) to be authenticated.
func (c *Client) AuthedTransport() http.RoundTripper {
	return c.authed.Transport
}

// sessionIDKey is an unexported context key type to avoid collisions.
type sessionIDKey struct{}

// WithSession returns a child context carrying the browser session id the
// bearer interceptor resolves tokens for.
func WithSession(ctx context.Context, sid string) context.Context {
	if sid == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey{}, sid)
}

// SessionIDFrom returns the session id carried by ctx, if any.
func SessionIDFrom(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionIDKey{}).(string)
	return sid, ok && sid != ""
}

// bearerTransport reads the current access token from the vault on every
// outgoing request and sets the Authorization header when one is held.
// Absence of a token sends the request unauthenticated; no error is raised.
type bearerTransport struct {
	vault *tokens.Vault
	next  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	sid, ok := SessionIDFrom(req.Context())
	if !ok {
		return t.next.RoundTrip(req)
	}

	token, err := t.vault.Access(req.Context(), sid)
	if err != nil || token == "" {
		return t.next.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.next.RoundTrip(clone)
}
