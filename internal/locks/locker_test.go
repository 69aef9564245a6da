package locks

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestKey64Stable(t *testing.T) {
	a := Key64("oauth", "vendor")
	b := Key64("oauth", "vendor")
	if a != b {
		t.Fatalf("expected stable hash, got %d and %d", a, b)
	}
	if Key64("oauth", "vendor") == Key64("oauth", "other") {
		t.Fatalf("expected different ids to hash differently")
	}
}

func TestMemoryLockerSerializesSameName(t *testing.T) {
	l := NewMemoryLocker()
	var mu sync.Mutex
	active := 0
	maxActive := 0
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock(context.Background(), "oauth:vendor", func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected max 1 concurrent holder, saw %d", maxActive)
	}
}

func TestMemoryLockerDifferentNamesRunConcurrently(t *testing.T) {
	l := NewMemoryLocker()
	start := make(chan struct{})
	done := make(chan struct{}, 2)

	go func() {
		_ = l.WithLock(context.Background(), "a", func(ctx context.Context) error {
			close(start)
			time.Sleep(20 * time.Millisecond)
			done <- struct{}{}
			return nil
		})
	}()

	<-start
	_ = l.WithLock(context.Background(), "b", func(ctx context.Context) error {
		done <- struct{}{}
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected lock b to proceed without waiting on lock a")
	}
}
