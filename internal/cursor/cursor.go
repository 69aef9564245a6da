// Package cursor is the opaque per-stream pull cursor used by the
// pull_products / pull_inventory / pull_consignments handlers: a thin,
// monotonic wrapper over config.Store keyed by stream name.
package cursor

import (
	"context"
	"fmt"

	"github.com/yungbote/vendorqueue/internal/config"
)

const keyPrefix = "cursor:"

// Store reads and advances a single opaque cursor value per stream.
type Store struct {
	backing config.Store
}

func New(backing config.Store) *Store {
	return &Store{backing: backing}
}

// Get returns the current cursor for stream, or "" if none has been set yet.
func (s *Store) Get(ctx context.Context, stream string) (string, error) {
	v, found, err := s.backing.Get(ctx, key(stream))
	if err != nil {
		return "", err
	}
	if !found {
		return "", nil
	}
	return v, nil
}

// Advance unconditionally overwrites the cursor for stream. Callers are
// responsible for only calling this after the corresponding page of work
// has been durably applied, so a crash between apply and advance simply
// re-processes the last page rather than skipping one.
func (s *Store) Advance(ctx context.Context, stream, value string) error {
	return s.backing.Set(ctx, key(stream), value)
}

func key(stream string) string {
	return fmt.Sprintf("%s%s", keyPrefix, stream)
}
