// Package vendorhttp is the vendor HTTP client: retrying request envelope,
// circuit breaker, pagination, endpoint rewrite, and metrics.
package vendorhttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/yungbote/vendorqueue/internal/config"
	"github.com/yungbote/vendorqueue/internal/metrics"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
)

// Response is the result shape every client operation returns: body is
// decoded JSON when the response content allows, else the raw bytes.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
	JSON    map[string]interface{}
}

func (r *Response) decodeJSON() {
	if len(r.Body) == 0 {
		return
	}
	ct := r.Headers.Get("Content-Type")
	if ct != "" && !isJSONContentType(ct) {
		return
	}
	var out map[string]interface{}
	if err := json.Unmarshal(r.Body, &out); err == nil {
		r.JSON = out
	}
}

func isJSONContentType(ct string) bool {
	for _, want := range []string{"application/json", "application/hal+json", "+json"} {
		if len(ct) >= len(want) {
			if ct == want || (len(ct) > len(want) && containsSubstr(ct, want)) {
				return true
			}
		}
	}
	return false
}

func containsSubstr(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// TokenResolver resolves a bearer access token; satisfied by oauth.Manager.
type TokenResolver interface {
	EnsureValid(ctx context.Context) (string, error)
}

// TokenRefresher additionally supports a forced refresh, used for the
// client's single 401-triggered reauth-and-retry.
// oauth.Manager satisfies this; callers that only need plain resolution
// (tests, mock mode) can supply a TokenResolver alone.
type TokenRefresher interface {
	TokenResolver
	ForceRefresh(ctx context.Context) (string, error)
}

// Client is the vendor HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenResolver
	store      config.Store
	sink       metrics.Sink
	breaker    *Breaker
	log        *logger.Logger

	retryAttempts int
	timeout       time.Duration

	rewrites []rewriteRule

	mockMu   sync.Mutex
	mockSeen map[string]bool
}

// Config bundles Client construction parameters.
type Config struct {
	BaseURL       string
	HTTPClient    *http.Client
	Tokens        TokenResolver
	Store         config.Store
	Sink          metrics.Sink
	Log           *logger.Logger
	RetryAttempts int
	Timeout       time.Duration
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Sink == nil {
		cfg.Sink = metrics.Noop{}
	}
	cfg.HTTPClient.Timeout = cfg.Timeout
	return &Client{
		httpClient:    cfg.HTTPClient,
		baseURL:       cfg.BaseURL,
		tokens:        cfg.Tokens,
		store:         cfg.Store,
		sink:          cfg.Sink,
		breaker:       NewBreaker(cfg.Store, cfg.Log),
		log:           cfg.Log.With("component", "vendorhttp"),
		retryAttempts: cfg.RetryAttempts,
		timeout:       cfg.Timeout,
		mockSeen:      make(map[string]bool),
	}
}

// WithRewriteRule registers a one-shot endpoint rewrite.
func (c *Client) WithRewriteRule(matchPrefix, rewritePrefix string, retryOnce404 bool) *Client {
	c.rewrites = append(c.rewrites, rewriteRule{matchPrefix: matchPrefix, rewritePrefix: rewritePrefix, retryOnce404: retryOnce404})
	return c
}

func (c *Client) GET(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, headers, "")
}

func (c *Client) PostJSON(ctx context.Context, path string, body interface{}, headers map[string]string, idempotencyKey string) (*Response, error) {
	return c.doJSON(ctx, http.MethodPost, path, body, headers, idempotencyKey)
}

func (c *Client) PutJSON(ctx context.Context, path string, body interface{}, headers map[string]string) (*Response, error) {
	return c.doJSON(ctx, http.MethodPut, path, body, headers, "")
}

func (c *Client) PatchJSON(ctx context.Context, path string, body interface{}, headers map[string]string) (*Response, error) {
	return c.doJSON(ctx, http.MethodPatch, path, body, headers, "")
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, headers map[string]string, idempotencyKey string) (*Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, method, path, raw, headers, idempotencyKey)
}

func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}
