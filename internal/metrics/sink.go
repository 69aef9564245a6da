// Package metrics is a minimal counter/histogram sink used by the vendor
// HTTP client and webhook receiver to record
// operational counts without pulling in a metrics server (spec §1
// excludes a metrics/observability surface from this system's scope).
package metrics

import (
	"sort"
	"sync"
)

// Sink records counters and latency observations keyed by name plus a
// small set of labels flattened into the key.
type Sink interface {
	Incr(name string, labels map[string]string, delta int64)
	Observe(name string, labels map[string]string, value float64)
}

// Noop discards everything; used when a caller has no sink configured.
type Noop struct{}

func (Noop) Incr(string, map[string]string, int64)    {}
func (Noop) Observe(string, map[string]string, float64) {}

// Memory is a process-memory Sink for tests and the admin API's metrics
// snapshot endpoint.
type Memory struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string][]float64
}

func NewMemory() *Memory {
	return &Memory{
		counters:   make(map[string]int64),
		histograms: make(map[string][]float64),
	}
}

func key(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := name
	for _, k := range keys {
		out += "|" + k + "=" + labels[k]
	}
	return out
}

func (m *Memory) Incr(name string, labels map[string]string, delta int64) {
	k := key(name, labels)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[k] += delta
}

func (m *Memory) Observe(name string, labels map[string]string, value float64) {
	k := key(name, labels)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[k] = append(m.histograms[k], value)
}

// Counter returns the current value of a counter, for test assertions and
// the admin API's metrics snapshot.
func (m *Memory) Counter(name string, labels map[string]string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key(name, labels)]
}

// Snapshot returns a flat copy of all counters, keyed by their flattened name.
func (m *Memory) Snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}
