package vendorhttp

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/yungbote/vendorqueue/internal/pkg/ctxutil"
	"github.com/yungbote/vendorqueue/internal/pkg/errors"
	"github.com/yungbote/vendorqueue/internal/pkg/httpx"
)

// outcome is the named break condition for the retry loop, replacing a
// goto-based state machine.
type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetryAfterDuration
	outcomeReauthRetry
)

const httpDisabledKey = "http.kill_switch"
const mockModeKey = "http.mock_mode"

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string, idempotencyKey string) (*Response, error) {
	if c.store != nil {
		if v, found, _ := c.store.Get(ctx, httpDisabledKey); found && v == "true" {
			return nil, fmt.Errorf("http_disabled")
		}
		if v, found, _ := c.store.Get(ctx, mockModeKey); found && v == "true" {
			return c.mockResponse(ctx, method, path, body, idempotencyKey)
		}
	}

	if err := c.breaker.Allow(ctx); err != nil {
		return nil, err
	}

	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve access token: %w", err)
	}

	url, rewritten := c.applyRewrite(path)
	reauthed := false
	rewriteRetried := false

	var resp *Response
	var finalErr error

attempts:
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		httpResp, latencyMS, reqErr := c.issue(ctx, method, url, body, headers, token, idempotencyKey)
		if reqErr != nil {
			finalErr = reqErr
			resp = nil
			if attempt == c.retryAttempts {
				break attempts
			}
			time.Sleep(httpx.JitterSleep(time.Duration(attempt) * time.Second))
			continue attempts
		}

		c.recordMetrics(method, httpResp.Status, latencyMS)

		switch c.classify(httpResp, attempt) {
		case outcomeReauthRetry:
			if reauthed {
				resp, finalErr = httpResp, nil
				break attempts
			}
			reauthed = true
			refreshed, refreshErr := c.forceRefreshToken(ctx)
			if refreshErr != nil {
				resp, finalErr = httpResp, refreshErr
				break attempts
			}
			token = refreshed
			// The one-time reauth retry is granted outside the normal attempt
			// budget: undo the loop's own increment so a 401 on the last
			// allowed attempt still gets its retry instead of falling out of
			// the loop with resp/finalErr unset.
			attempt--
			continue attempts

		case outcomeRetryAfterDuration:
			c.breaker.RecordFailure(ctx)
			if attempt == c.retryAttempts {
				resp = httpResp
				finalErr = &errors.TransientVendorError{StatusCode: httpResp.Status, Path: path, Attempts: attempt}
				break attempts
			}
			sleep := httpx.RetryAfterDuration(&http.Response{Header: httpResp.Headers}, c.fallbackRetryDelay(attempt), 0)
			sleep += httpx.JitterDuration0to(0, 2*time.Second)
			c.logNonSuccess(ctx, method, path, httpResp, attempt)
			time.Sleep(sleep)
			continue attempts

		default: // outcomeDone
			if httpResp.Status == 404 && rewritten && !rewriteRetried && c.retryOnce404(path) {
				rewriteRetried = true
				url = path
				continue attempts
			}
			c.breaker.RecordSuccess(ctx)
			if httpResp.Status == 409 {
				httpResp.Status = 200
			}
			if httpResp.Status >= 400 {
				c.logNonSuccess(ctx, method, path, httpResp, attempt)
			}
			resp, finalErr = httpResp, nil
			break attempts
		}
	}

	if finalErr != nil {
		return resp, finalErr
	}
	if resp != nil {
		resp.decodeJSON()
	}
	return resp, nil
}

// forceRefreshToken uses the stronger ForceRefresh contract when the
// configured token source supports it (oauth.Manager does), else falls back
// to a plain EnsureValid for resolvers that don't distinguish the two.
func (c *Client) forceRefreshToken(ctx context.Context) (string, error) {
	if refresher, ok := c.tokens.(TokenRefresher); ok {
		return refresher.ForceRefresh(ctx)
	}
	return c.tokens.EnsureValid(ctx)
}

func (c *Client) classify(resp *Response, attempt int) outcome {
	if resp.Status == http.StatusUnauthorized {
		return outcomeReauthRetry
	}
	if httpx.IsRetryableHTTPStatus(resp.Status) {
		return outcomeRetryAfterDuration
	}
	return outcomeDone
}

func (c *Client) fallbackRetryDelay(attempt int) time.Duration {
	secs := 60 * attempt
	if secs > 240 {
		secs = 240
	}
	return time.Duration(secs) * time.Second
}

func (c *Client) issue(ctx context.Context, method, url string, body []byte, headers map[string]string, token, idempotencyKey string) (*Response, float64, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	latencyMS := float64(time.Since(start).Milliseconds())
	if err != nil {
		return nil, latencyMS, err
	}
	defer httpResp.Body.Close()

	respBody, err := readAllLimited(httpResp.Body, 10<<20)
	if err != nil {
		return nil, latencyMS, err
	}

	return &Response{Status: httpResp.StatusCode, Headers: httpResp.Header, Body: respBody}, latencyMS, nil
}

func (c *Client) recordMetrics(method string, status int, latencyMS float64) {
	class := httpx.StatusClass(status)
	c.sink.Incr("vendor.request.count", map[string]string{"method": method, "class": class}, 1)
	c.sink.Observe("vendor.request.latency_ms", map[string]string{"method": method}, latencyMS)
	bucket := httpx.LatencyBucketLabel(latencyMS)
	c.sink.Incr("vendor.request.latency_bucket", map[string]string{"method": method, "le": bucket}, 1)
}

func (c *Client) logNonSuccess(ctx context.Context, method, path string, resp *Response, attempt int) {
	bodyPreview := resp.Body
	if len(bodyPreview) > 500 {
		bodyPreview = bodyPreview[:500]
	}
	c.log.Warn("vendor request non-2xx",
		"method", method, "path", path, "status", resp.Status, "attempt", attempt,
		"retry_after", resp.Headers.Get("Retry-After"),
		"x_rate_limit_reset", resp.Headers.Get("X-RateLimit-Reset"),
		"body_preview", string(bodyPreview),
		"trace_id", ctxutil.TraceID(ctx),
	)
}
