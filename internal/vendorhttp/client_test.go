package vendorhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/vendorqueue/internal/config"
	"github.com/yungbote/vendorqueue/internal/metrics"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
)

type fakeTokens struct {
	token     string
	refreshed int32
}

func (f *fakeTokens) EnsureValid(ctx context.Context) (string, error) {
	return f.token, nil
}

func (f *fakeTokens) ForceRefresh(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.refreshed, 1)
	f.token = "refreshed-token"
	return f.token, nil
}

func newTestClient(t *testing.T, srvURL string, tokens TokenResolver) (*Client, *metrics.Memory) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	sink := metrics.NewMemory()
	c := New(Config{
		BaseURL:       srvURL,
		Tokens:        tokens,
		Store:         config.NewMemoryStore(),
		Sink:          sink,
		Log:           log,
		RetryAttempts: 3,
		Timeout:       5 * time.Second,
	})
	return c, sink
}

func TestRetriesOn503ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &fakeTokens{token: "tok"})
	resp, err := c.GET(context.Background(), "/widgets", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls (1 failure + 1 success), got %d", calls)
	}
}

func TestReauthRetryOn401(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer refreshed-token" {
			t.Errorf("expected refreshed token on retry, got %q", auth)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "stale-token"}
	c, _ := newTestClient(t, srv.URL, tokens)
	resp, err := c.GET(context.Background(), "/widgets/1", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("expected 200 after reauth retry, got %d", resp.Status)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly 2 requests, got %d", calls)
	}
}

func TestReauthRetryOnLastAttemptStillRetriesOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer refreshed-token" {
			t.Errorf("expected refreshed token on retry, got %q", auth)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	tokens := &fakeTokens{token: "stale-token"}
	c := New(Config{
		BaseURL:       srv.URL,
		Tokens:        tokens,
		Store:         config.NewMemoryStore(),
		Sink:          metrics.NewMemory(),
		Log:           log,
		RetryAttempts: 1,
		Timeout:       5 * time.Second,
	})

	resp, err := c.GET(context.Background(), "/widgets/1", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp == nil {
		t.Fatalf("expected a non-nil response, got (nil, nil)")
	}
	if resp.Status != 200 {
		t.Fatalf("expected 200 after reauth retry, got %d", resp.Status)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly 2 requests (initial 401 + reauth retry) even with retryAttempts=1, got %d", calls)
	}
}

func TestReauthRetryFailsTwiceOnLastAttemptReturnsResponseNotNilNil(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	c := New(Config{
		BaseURL:       srv.URL,
		Tokens:        &fakeTokens{token: "stale-token"},
		Store:         config.NewMemoryStore(),
		Sink:          metrics.NewMemory(),
		Log:           log,
		RetryAttempts: 1,
		Timeout:       5 * time.Second,
	})

	resp, err := c.GET(context.Background(), "/widgets/1", nil)
	if err == nil && resp == nil {
		t.Fatalf("do() must never return (nil, nil); got a nil response with a nil error")
	}
	if resp == nil {
		t.Fatalf("expected the final 401 response to be returned, got nil")
	}
	if resp.Status != http.StatusUnauthorized {
		t.Fatalf("expected the final 401 to be surfaced, got %d", resp.Status)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly 2 requests (initial 401 + one reauth retry), got %d", calls)
	}
}

func TestDuplicateCreateTranslates409To200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &fakeTokens{token: "tok"})
	resp, err := c.PostJSON(context.Background(), "/widgets", map[string]string{"name": "a"}, nil, "idem-1")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("expected 409 translated to 200, got %d", resp.Status)
	}
}

func TestCircuitBreakerTripsAfterThresholdFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &fakeTokens{token: "tok"})
	c.retryAttempts = 1 // one attempt per call so each GET contributes exactly one failure

	for i := 0; i < breakerThreshold; i++ {
		if _, err := c.GET(context.Background(), "/widgets", nil); err == nil {
			t.Fatalf("expected error on attempt %d", i)
		}
	}

	if err := c.breaker.Allow(context.Background()); err == nil {
		t.Fatalf("expected circuit breaker to be open after %d consecutive failures", breakerThreshold)
	}
}

func TestRewriteRetriesOnce404AgainstOriginalPath(t *testing.T) {
	var sawOriginal, sawRewritten int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/widgets/1":
			atomic.AddInt32(&sawRewritten, 1)
			w.WriteHeader(http.StatusNotFound)
		case "/v1/widgets/1":
			atomic.AddInt32(&sawOriginal, 1)
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &fakeTokens{token: "tok"})
	c.WithRewriteRule("/v1/", "/v2/", true)

	resp, err := c.GET(context.Background(), "/v1/widgets/1", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("expected 200 after fallback to original path, got %d", resp.Status)
	}
	if atomic.LoadInt32(&sawRewritten) != 1 || atomic.LoadInt32(&sawOriginal) != 1 {
		t.Fatalf("expected exactly one rewritten attempt and one original fallback, got rewritten=%d original=%d", sawRewritten, sawOriginal)
	}
}

func TestMockModeNeverHitsNetworkAndSignalsDuplicate(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := config.NewMemoryStore()
	_ = store.Set(context.Background(), mockModeKey, "true")

	log, _ := logger.New("test")
	c := New(Config{BaseURL: srv.URL, Tokens: &fakeTokens{token: "tok"}, Store: store, Log: log})

	first, err := c.PostJSON(context.Background(), "/widgets", map[string]string{"name": "a"}, nil, "dup-key")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if first.JSON["mock_duplicate"] == true {
		t.Fatalf("first call should not be flagged as duplicate")
	}

	second, err := c.PostJSON(context.Background(), "/widgets", map[string]string{"name": "a"}, nil, "dup-key")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if second.JSON["mock_duplicate"] != true {
		t.Fatalf("expected second call with same idempotency key to be flagged duplicate")
	}
	if hit {
		t.Fatalf("mock mode must never reach the network")
	}
}

func TestPaginateWalksNumericPagesUntilEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		if page == "1" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{"a", "b"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, &fakeTokens{token: "tok"})
	var pages int
	err := c.Paginate(context.Background(), "/widgets", nil, func(page map[string]interface{}) (bool, error) {
		pages++
		return true, nil
	})
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if pages != 1 {
		t.Fatalf("expected exactly 1 non-empty page, got %d", pages)
	}
}
