package vendorhttp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/yungbote/vendorqueue/internal/config"
	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/errors"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
)

const (
	breakerStateKey  = "circuit_breaker_vendor_state"
	breakerWindow    = 120 * time.Second
	breakerThreshold = 8
	breakerCooldown  = 180 * time.Second
)

// Breaker keeps the circuit-breaker record in config.Store (the shared
// source of truth across workers); every trip/reset writes through so a
// newly-started worker observes shared state immediately. A per-process
// sony/gobreaker/v2 instance is fed every outcome and logs its own state
// changes, but nothing reads its state: Allow reads the persisted record on
// every call.
type Breaker struct {
	store config.Store
	log   *logger.Logger
	cb    *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(store config.Store, log *logger.Logger) *Breaker {
	b := &Breaker{store: store, log: log.With("component", "circuit_breaker")}
	b.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "vendor",
		MaxRequests: 1,
		Interval:    breakerWindow,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Info("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return b
}

// Allow checks the persisted record for tripped+cooldown and returns
// CircuitOpenError when the call should be short-circuited without network
// I/O.
func (b *Breaker) Allow(ctx context.Context) error {
	state, err := b.readState(ctx)
	if err != nil {
		b.log.Warn("failed to read circuit breaker state, allowing call", "error", err)
		return nil
	}
	if state.Tripped && state.CooldownUntil != nil && time.Now().Before(*state.CooldownUntil) {
		return &errors.CircuitOpenError{CooldownUntilUnixSeconds: state.CooldownUntil.Unix()}
	}
	return nil
}

// RecordSuccess resets the failure window on any non-transient response.
func (b *Breaker) RecordSuccess(ctx context.Context) {
	_, _ = b.cb.Execute(func() (struct{}, error) { return struct{}{}, nil })
	state, err := b.readState(ctx)
	if err != nil {
		return
	}
	if !state.Tripped && state.FailuresInWindow == 0 {
		return
	}
	state.Tripped = false
	state.CooldownUntil = nil
	state.FailuresInWindow = 0
	state.WindowStartedAt = time.Now().UTC()
	_ = b.writeState(ctx, state)
}

// RecordFailure increments the failure count of the current window and
// trips the breaker once the threshold within the window is reached. The
// window is fixed, not sliding: it starts at WindowStartedAt, and the first
// failure more than breakerWindow after that start opens a new window with
// the count reset.
func (b *Breaker) RecordFailure(ctx context.Context) {
	_, _ = b.cb.Execute(func() (struct{}, error) { return struct{}{}, errProbeFailure })

	state, err := b.readState(ctx)
	if err != nil {
		state = model.CircuitBreakerState{WindowStartedAt: time.Now().UTC()}
	}
	now := time.Now().UTC()
	if now.Sub(state.WindowStartedAt) > breakerWindow {
		state.WindowStartedAt = now
		state.FailuresInWindow = 0
	}
	state.FailuresInWindow++
	if state.FailuresInWindow >= breakerThreshold {
		state.Tripped = true
		until := now.Add(breakerCooldown)
		state.CooldownUntil = &until
	}
	_ = b.writeState(ctx, state)
}

// errProbeFailure marks the in-process gobreaker counter without carrying
// any meaning beyond "non-nil"; the persisted record is the real state.
var errProbeFailure = &errors.TransientVendorError{StatusCode: 0, Path: "probe", Attempts: 1}

// State exposes the persisted circuit-breaker record for the admin health
// endpoint; unlike Allow it never translates a tripped+cooldown state into
// an error, it just reports it.
func (b *Breaker) State(ctx context.Context) (model.CircuitBreakerState, error) {
	return b.readState(ctx)
}

func (b *Breaker) readState(ctx context.Context) (model.CircuitBreakerState, error) {
	raw, found, err := b.store.Get(ctx, breakerStateKey)
	if err != nil || !found || raw == "" {
		return model.CircuitBreakerState{Name: "vendor", WindowStartedAt: time.Now().UTC()}, err
	}
	var state model.CircuitBreakerState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return model.CircuitBreakerState{Name: "vendor", WindowStartedAt: time.Now().UTC()}, nil
	}
	return state, nil
}

func (b *Breaker) writeState(ctx context.Context, state model.CircuitBreakerState) error {
	state.Name = "vendor"
	state.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return b.store.Set(ctx, breakerStateKey, string(raw))
}
