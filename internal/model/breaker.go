package model

import "time"

// CircuitBreakerState is the persisted source of truth for the vendor
// client's breaker, shared across dispatcher processes (spec §6.5). A
// per-process gobreaker instance fronts this as a hot-path cache and writes
// through on every trip/reset.
type CircuitBreakerState struct {
	Name             string     `gorm:"column:name;primaryKey" json:"name"`
	Tripped          bool       `gorm:"column:tripped;not null;default:false" json:"tripped"`
	CooldownUntil    *time.Time `gorm:"column:cooldown_until" json:"cooldown_until,omitempty"`
	FailuresInWindow int        `gorm:"column:failures_in_window;not null;default:0" json:"failures_in_window"`
	WindowStartedAt  time.Time  `gorm:"column:window_started_at;not null" json:"window_started_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (CircuitBreakerState) TableName() string { return "circuit_breaker_state" }
