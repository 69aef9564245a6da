package cursor

import (
	"context"
	"testing"

	"github.com/yungbote/vendorqueue/internal/config"
)

func TestGetReturnsEmptyWhenUnset(t *testing.T) {
	s := New(config.NewMemoryStore())
	v, err := s.Get(context.Background(), "pull_products")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "" {
		t.Fatalf("expected empty cursor, got %q", v)
	}
}

func TestAdvanceThenGetRoundTrips(t *testing.T) {
	s := New(config.NewMemoryStore())
	ctx := context.Background()
	if err := s.Advance(ctx, "pull_inventory", "page-17"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	v, err := s.Get(ctx, "pull_inventory")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "page-17" {
		t.Fatalf("expected page-17, got %q", v)
	}
}

func TestStreamsAreIndependent(t *testing.T) {
	s := New(config.NewMemoryStore())
	ctx := context.Background()
	_ = s.Advance(ctx, "pull_products", "a")
	_ = s.Advance(ctx, "pull_consignments", "b")
	pv, _ := s.Get(ctx, "pull_products")
	cv, _ := s.Get(ctx, "pull_consignments")
	if pv != "a" || cv != "b" {
		t.Fatalf("expected independent cursors, got products=%q consignments=%q", pv, cv)
	}
}
