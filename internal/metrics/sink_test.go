package metrics

import "testing"

func TestMemoryIncrAndCounter(t *testing.T) {
	m := NewMemory()
	m.Incr("job.claimed", map[string]string{"type": "sync_product"}, 1)
	m.Incr("job.claimed", map[string]string{"type": "sync_product"}, 2)
	m.Incr("job.claimed", map[string]string{"type": "sync_inventory"}, 5)

	if got := m.Counter("job.claimed", map[string]string{"type": "sync_product"}); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := m.Counter("job.claimed", map[string]string{"type": "sync_inventory"}); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}

func TestMemoryObserveDoesNotPanic(t *testing.T) {
	m := NewMemory()
	m.Observe("vendor.request.latency_ms", map[string]string{"path": "/products"}, 123.4)
	m.Observe("vendor.request.latency_ms", map[string]string{"path": "/products"}, 456.7)
}

func TestNoopSatisfiesSink(t *testing.T) {
	var s Sink = Noop{}
	s.Incr("anything", nil, 1)
	s.Observe("anything", nil, 1.0)
}
