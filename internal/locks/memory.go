package locks

import (
	"context"
	"sync"
)

// MemoryLocker serializes WithLock calls per name within a single process,
// for unit tests that exercise the single-flight/double-check paths without
// a database.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MemoryLocker) namedMutex(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	return m
}

func (l *MemoryLocker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	m := l.namedMutex(name)
	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
