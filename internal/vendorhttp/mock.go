package vendorhttp

import (
	"context"
	"encoding/json"
	"net/http"
)

// mockResponse synthesizes a response without touching the network or the
// circuit breaker, for local development and tests driven entirely by the
// http.mock_mode config flag. A POST whose idempotency
// key was already seen on this path is answered as a duplicate-create, the
// same way the real vendor's 409 would be translated by the retry loop;
// everything else is echoed back with status 200.
func (c *Client) mockResponse(ctx context.Context, method, path string, body []byte, idempotencyKey string) (*Response, error) {
	if method == http.MethodPost && idempotencyKey != "" {
		key := path + "|" + idempotencyKey
		c.mockMu.Lock()
		duplicate := c.mockSeen[key]
		c.mockSeen[key] = true
		c.mockMu.Unlock()
		if duplicate {
			return c.echo(200, body, map[string]interface{}{"mock_duplicate": true})
		}
	}
	return c.echo(200, body, nil)
}

func (c *Client) echo(status int, body []byte, extra map[string]interface{}) (*Response, error) {
	resp := &Response{
		Status:  status,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
		Body:    body,
	}
	if len(body) == 0 && extra == nil {
		return resp, nil
	}
	payload := map[string]interface{}{}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &payload)
	}
	for k, v := range extra {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return resp, nil
	}
	resp.Body = raw
	resp.JSON = payload
	return resp, nil
}
