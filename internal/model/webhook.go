package model

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEventStatus is the closed set a webhook event row moves through.
type WebhookEventStatus string

const (
	WebhookReceived   WebhookEventStatus = "received"
	WebhookProcessing WebhookEventStatus = "processing"
	WebhookCompleted  WebhookEventStatus = "completed"
	WebhookFailed     WebhookEventStatus = "failed"
	WebhookReplayed   WebhookEventStatus = "replayed"
)

// WebhookEvent is identified by the provider-supplied event id (spec §3).
type WebhookEvent struct {
	EventID        string             `gorm:"column:event_id;primaryKey" json:"event_id"`
	Topic          string             `gorm:"column:topic;not null;index" json:"topic"`
	Status         WebhookEventStatus `gorm:"column:status;not null;index" json:"status"`
	RawBody        []byte             `gorm:"column:raw_body" json:"-"`
	Payload        datatypes.JSON     `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`
	Headers        datatypes.JSON     `gorm:"column:headers;type:jsonb" json:"headers,omitempty"`
	Signature      string             `gorm:"column:signature" json:"signature,omitempty"`
	SourceIP       string             `gorm:"column:source_ip" json:"source_ip,omitempty"`
	UserAgent      string             `gorm:"column:user_agent" json:"user_agent,omitempty"`
	ReceivedAt     time.Time          `gorm:"column:received_at;not null" json:"received_at"`
	ProcessedAt    *time.Time         `gorm:"column:processed_at" json:"processed_at,omitempty"`
	Attempts       int                `gorm:"column:attempts;not null;default:0" json:"attempts"`
	QueueJobID     *int64             `gorm:"column:queue_job_id" json:"queue_job_id,omitempty"`
	ReplayedFrom   *string            `gorm:"column:replayed_from" json:"replayed_from,omitempty"`
	ReplayedReason string             `gorm:"column:replayed_reason" json:"replayed_reason,omitempty"`
}

func (WebhookEvent) TableName() string { return "webhook_event" }

// WebhookSubscription tracks the topics the vendor can push and rollup counters.
type WebhookSubscription struct {
	ID           int64      `gorm:"column:id;primaryKey" json:"id"`
	Topic        string     `gorm:"column:topic;not null;uniqueIndex" json:"topic"`
	EndpointURL  string     `gorm:"column:endpoint_url" json:"endpoint_url,omitempty"`
	Active       bool       `gorm:"column:active;not null;default:true" json:"active"`
	TodayCount   int64      `gorm:"column:today_count;not null;default:0" json:"today_count"`
	TotalCount   int64      `gorm:"column:total_count;not null;default:0" json:"total_count"`
	LastReceived *time.Time `gorm:"column:last_received" json:"last_received,omitempty"`
}

func (WebhookSubscription) TableName() string { return "webhook_subscription" }

// WebhookHealthEvent is a warning/info ledger row for signature soft-failures
// and processing anomalies; the service only writes these rows.
type WebhookHealthEvent struct {
	ID        int64     `gorm:"column:id;primaryKey" json:"id"`
	EventID   string    `gorm:"column:event_id;index" json:"event_id,omitempty"`
	Kind      string    `gorm:"column:kind;not null" json:"kind"`
	Detail    string    `gorm:"column:detail" json:"detail,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (WebhookHealthEvent) TableName() string { return "webhook_health_event" }
