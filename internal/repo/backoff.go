package jobrepo

import (
	"math/rand"
	"time"
)

// retryBackoff computes 2^attempts minutes plus uniform jitter in [0, 30]
// seconds.
func retryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	base := time.Duration(1<<uint(attempts)) * time.Minute
	jitter := time.Duration(rand.Int63n(int64(30 * time.Second)))
	return base + jitter
}

// deadlockRetryDelay is the linear-plus-jitter sleep used between deadlock
// retries, capped at 1.2 seconds.
func deadlockRetryDelay(attempt int) time.Duration {
	base := time.Duration(attempt) * 300 * time.Millisecond
	if base > 1200*time.Millisecond {
		base = 1200 * time.Millisecond
	}
	jitter := time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
	d := base + jitter
	if d > 1200*time.Millisecond {
		d = 1200 * time.Millisecond
	}
	return d
}
