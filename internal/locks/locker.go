// Package locks provides cross-process mutual exclusion for the job queue's
// idempotent enqueue and the OAuth token refresh single-flight (both reached
// through the repository's WithLock): a named scope is locked for the
// duration of a function, guaranteed to release on every exit path
// including panic.
package locks

import (
	"context"
	"hash/fnv"
)

// Locker acquires and releases named, process-wide mutual exclusion scopes.
type Locker interface {
	// WithLock runs fn while holding the named lock, releasing it before
	// returning regardless of how fn exits (return, error, or panic).
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Key64 hashes a namespace and id into the int64 key that Postgres
// advisory locks (pg_advisory_xact_lock) need. RedisLocker does not use it;
// its keys are the lock name itself.
func Key64(namespace, id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}
