// Package model holds the persisted row shapes the job queue and webhook
// gateway own: Job, dead-letter entries, job log rows, webhook events and
// subscriptions, and the circuit-breaker record.
package model

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatus is the closed set of states a Job moves through.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobWorking JobStatus = "working"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job types recognized by the dispatcher's selection table (spec §6.3).
const (
	TypeCreateConsignment     = "create_consignment"
	TypeUpdateConsignment     = "update_consignment"
	TypeCancelConsignment     = "cancel_consignment"
	TypeEditConsignmentLines  = "edit_consignment_lines"
	TypeAddConsignmentProduct = "add_consignment_products"
	TypeMarkTransferPartial   = "mark_transfer_partial"
	TypePushProductUpdate     = "push_product_update"
	TypeInventoryCommand      = "inventory.command"
	TypeWebhookEvent          = "webhook.event"
	TypeSyncProduct           = "sync_product"
	TypeSyncInventory         = "sync_inventory"
	TypeSyncCustomer          = "sync_customer"
	TypeSyncSale              = "sync_sale"
	TypePullProducts          = "pull_products"
	TypePullInventory         = "pull_inventory"
	TypePullConsignments      = "pull_consignments"
)

// AllJobTypes is the closed set the dispatcher iterates when no explicit
// type was requested (spec §4.2 step 3).
var AllJobTypes = []string{
	TypeCreateConsignment,
	TypeUpdateConsignment,
	TypeCancelConsignment,
	TypeEditConsignmentLines,
	TypeAddConsignmentProduct,
	TypeMarkTransferPartial,
	TypePushProductUpdate,
	TypeInventoryCommand,
	TypeWebhookEvent,
	TypeSyncProduct,
	TypeSyncInventory,
	TypeSyncCustomer,
	TypeSyncSale,
	TypePullProducts,
	TypePullInventory,
	TypePullConsignments,
}

const MaxIdempotencyKeyLen = 128

// MinPriority/MaxPriority/DefaultPriority bound and default Job.Priority (spec §4.1).
const (
	MinPriority     = 1
	MaxPriority     = 9
	DefaultPriority = 5
)

// DefaultMaxAttempts is the retry budget used when a job doesn't override it.
const DefaultMaxAttempts = 3

// LeaseDuration is how far into the future ClaimBatch extends lease_until.
const LeaseDuration = 2 * time.Minute

// Job is the central unit of work. Identity is an opaque numeric id assigned
// at insertion (spec §3); the column is a Postgres bigserial in production.
type Job struct {
	ID             int64          `gorm:"column:id;primaryKey" json:"id"`
	Type           string         `gorm:"column:type;not null;index:idx_job_type_status" json:"type"`
	Priority       int            `gorm:"column:priority;not null;default:5" json:"priority"`
	Payload        datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	IdempotencyKey *string        `gorm:"column:idempotency_key;uniqueIndex" json:"idempotency_key,omitempty"`
	Attempts       int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts    int            `gorm:"column:max_attempts;not null;default:3" json:"max_attempts"`
	Status         JobStatus      `gorm:"column:status;not null;index:idx_job_type_status" json:"status"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
	StartedAt      *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt     *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	NextRunAt      *time.Time     `gorm:"column:next_run_at;index" json:"next_run_at,omitempty"`
	LastError      string         `gorm:"column:last_error" json:"last_error,omitempty"`
	LeaseUntil     *time.Time     `gorm:"column:lease_until" json:"lease_until,omitempty"`
	HeartbeatAt    *time.Time     `gorm:"column:heartbeat_at" json:"heartbeat_at,omitempty"`
}

func (Job) TableName() string { return "job" }

// ClampPriority enforces spec §4.1's [1..9] range, defaulting to 5.
func ClampPriority(p int) int {
	if p == 0 {
		return DefaultPriority
	}
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// LogLevel is the closed set of job-log severities.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// JobLog is an append-only audit row keyed by job id.
type JobLog struct {
	ID            int64     `gorm:"column:id;primaryKey" json:"id"`
	JobID         int64     `gorm:"column:job_id;not null;index" json:"job_id"`
	Level         LogLevel  `gorm:"column:level;not null" json:"level"`
	Message       string    `gorm:"column:message;not null" json:"message"`
	CorrelationID string    `gorm:"column:correlation_id" json:"correlation_id,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (JobLog) TableName() string { return "job_log" }

// DeadLetterEntry mirrors a failed Job, immutable until redriven.
type DeadLetterEntry struct {
	JobID          int64          `gorm:"column:job_id;primaryKey" json:"job_id"`
	Type           string         `gorm:"column:type;not null" json:"type"`
	Payload        datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	IdempotencyKey *string        `gorm:"column:idempotency_key" json:"idempotency_key,omitempty"`
	FailureClass   string         `gorm:"column:failure_class" json:"failure_class,omitempty"`
	Message        string         `gorm:"column:message" json:"message"`
	Attempts       int            `gorm:"column:attempts;not null" json:"attempts"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	MovedAt        time.Time      `gorm:"column:moved_at;not null" json:"moved_at"`
}

func (DeadLetterEntry) TableName() string { return "job_dead_letter" }

// AuditLog is the generic domain side-effect table handlers write through a
// guarded insert helper (no-op if the table is absent, spec §4.7).
type AuditLog struct {
	ID        int64          `gorm:"column:id;primaryKey" json:"id"`
	JobID     int64          `gorm:"column:job_id;not null;index" json:"job_id"`
	Action    string         `gorm:"column:action;not null" json:"action"`
	Detail    datatypes.JSON `gorm:"column:detail;type:jsonb" json:"detail,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "job_audit_log" }
