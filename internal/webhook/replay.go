package webhook

import "context"

// Replay re-marks the given provider event ids as replayed; exposed for the
// admin API's replay endpoint so it doesn't need to reach into Store's gorm
// internals directly.
func (r *Receiver) Replay(ctx context.Context, eventIDs []string, reason string) (int, error) {
	return r.store.Replay(ctx, eventIDs, reason)
}
