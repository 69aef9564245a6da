package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/vendorqueue/internal/config"
	"github.com/yungbote/vendorqueue/internal/locks"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
)

func testManager(t *testing.T, tokenURL string, store config.Store) Manager {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	repo := lockAdapter{locker: locks.NewMemoryLocker()}
	return New(store, repo, http.DefaultClient, tokenURL, "client-id", "client-secret", log)
}

// lockAdapter adapts locks.Locker to oauth.LockRunner, mirroring how
// jobrepo.Repository.WithLock adds a timeout and tolerance for lock
// unavailability around the same interface.
type lockAdapter struct {
	locker locks.Locker
}

func (a lockAdapter) WithLock(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return a.locker.WithLock(lockCtx, name, fn)
}

func TestEnsureValidReturnsCachedTokenWhenFresh(t *testing.T) {
	store := config.NewMemoryStore()
	ctx := context.Background()
	if err := store.Set(ctx, "oauth_vendor_access_token", "cached-token"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "oauth_vendor_expires_at", "9999999999"); err != nil {
		t.Fatalf("set: %v", err)
	}

	m := testManager(t, "http://unused.invalid", store)
	token, err := m.EnsureValid(ctx)
	if err != nil {
		t.Fatalf("ensure valid: %v", err)
	}
	if token != "cached-token" {
		t.Fatalf("expected cached token, got %q", token)
	}
}

func TestEnsureValidRefreshesWhenExpired(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "fresh-token",
			"refresh_token": "new-refresh",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	store := config.NewMemoryStore()
	ctx := context.Background()
	_ = store.Set(ctx, "oauth_vendor_access_token", "stale-token")
	_ = store.Set(ctx, "oauth_vendor_expires_at", "1")
	_ = store.Set(ctx, "oauth_vendor_refresh_token", "old-refresh")

	m := testManager(t, srv.URL, store)
	token, err := m.EnsureValid(ctx)
	if err != nil {
		t.Fatalf("ensure valid: %v", err)
	}
	if token != "fresh-token" {
		t.Fatalf("expected refreshed token, got %q", token)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 token endpoint call, got %d", calls)
	}

	v, found, _ := store.Get(ctx, "oauth_vendor_refresh_token")
	if !found || v != "new-refresh" {
		t.Fatalf("expected persisted refresh token, got %q found=%v", v, found)
	}
}

func TestEnsureValidCollapsesConcurrentRefreshes(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "fresh-token",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	store := config.NewMemoryStore()
	ctx := context.Background()
	_ = store.Set(ctx, "oauth_vendor_refresh_token", "old-refresh")

	m := testManager(t, srv.URL, store)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.EnsureValid(ctx); err != nil {
				t.Errorf("ensure valid: %v", err)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected the concurrent refreshes to collapse into 1 call, got %d", calls)
	}
}

func TestExchangePersistsBundleAlias(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "exchanged-token",
			"refresh_token": "exchanged-refresh",
			"expires_in":    1800,
		})
	}))
	defer srv.Close()

	store := config.NewMemoryStore()
	ctx := context.Background()
	m := testManager(t, srv.URL, store)

	if _, err := m.Exchange(ctx, "one-time-code"); err != nil {
		t.Fatalf("exchange: %v", err)
	}

	raw, found, err := store.Get(ctx, "oauth_vendor_bundle")
	if err != nil || !found {
		t.Fatalf("expected bundle alias persisted, found=%v err=%v", found, err)
	}
	var bundle map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		t.Fatalf("unmarshal bundle: %v", err)
	}
	if bundle["access_token"] != "exchanged-token" {
		t.Fatalf("expected bundle access_token, got %v", bundle["access_token"])
	}
}
