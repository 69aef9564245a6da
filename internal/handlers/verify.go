package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/vendorqueue/internal/pkg/httpx"
)

// pollUntilMatch polls fetch with exponential backoff until match reports
// true or the verification timeout elapses, throwing if unconfirmed.
func pollUntilMatch(ctx context.Context, timeout time.Duration, fetch func(ctx context.Context) (map[string]interface{}, error), match func(observed map[string]interface{}) bool) error {
	deadline := time.Now().Add(timeout)
	backoff := 200 * time.Millisecond
	const maxBackoff = 3 * time.Second

	for {
		observed, err := fetch(ctx)
		if err == nil && match(observed) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("write verification timed out after %s", timeout)
		}
		sleep := httpx.JitterSleep(backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
