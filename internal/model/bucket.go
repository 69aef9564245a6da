package model

import "time"

// RateLimitBucket is a minute-aligned counter keyed by an arbitrary string
// (the client IP for the webhook receiver's per-IP limiter). Rows of past
// windows are not deleted by this service.
type RateLimitBucket struct {
	Key         string    `gorm:"column:key;primaryKey" json:"key"`
	WindowStart time.Time `gorm:"column:window_start;primaryKey" json:"window_start"`
	Count       int64     `gorm:"column:count;not null;default:0" json:"count"`
}

func (RateLimitBucket) TableName() string { return "rate_limit_bucket" }

// ConfigEntry backs the opaque key/value config store, including the
// alias-list resolution spec §4.4 requires for renamed settings.
type ConfigEntry struct {
	Key       string    `gorm:"column:key;primaryKey" json:"key"`
	Value     string    `gorm:"column:value" json:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (ConfigEntry) TableName() string { return "config_entry" }
