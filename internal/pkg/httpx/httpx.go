package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

func IsRetryableHTTPStatus(code int) bool {
	if code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() || netErr.Temporary() {
			return true
		}
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

// RetryAfterDuration resolves the sleep for a 429/5xx response: Retry-After
// if it parses as positive integer seconds; X-RateLimit-Reset (integer
// seconds) only when Retry-After is absent; else fallback, capped at max
// when max > 0. The two headers are not compared, and a Retry-After that is
// not an integer (an HTTP date) yields fallback.
func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	sleepFor := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				sleepFor = time.Duration(secs) * time.Second
			}
		} else if rl := strings.TrimSpace(resp.Header.Get("X-RateLimit-Reset")); rl != "" {
			if secs, err := strconv.Atoi(rl); err == nil && secs > 0 {
				sleepFor = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && sleepFor > max {
		sleepFor = max
	}
	return sleepFor
}

func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

// JitterDuration0to adds a uniform [0, max) jitter on top of base. Used for
// the job retry backoff (2^attempts minutes + 0..30s jitter).
func JitterDuration0to(base, max time.Duration) time.Duration {
	if max <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(max)))
}

// LatencyBucketBoundsMS are the histogram thresholds the vendor HTTP client
// records request latency against.
var LatencyBucketBoundsMS = []float64{50, 100, 200, 400, 800, 1600, 3200, 10000}

// LatencyBucketLabel returns the smallest bound latencyMS falls under, or "+Inf".
func LatencyBucketLabel(latencyMS float64) string {
	for _, b := range LatencyBucketBoundsMS {
		if latencyMS <= b {
			return strconv.FormatFloat(b, 'f', 0, 64)
		}
	}
	return "+Inf"
}

// StatusClass buckets a status code into "2xx"/"3xx"/"429"/"4xx"/"5xx" for metrics labels.
func StatusClass(code int) string {
	switch {
	case code == 429:
		return "429"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
