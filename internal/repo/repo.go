// Package jobrepo is the work-item repository: the sole owner of the Job
// and dead-letter tables, and the home of the advisory-lock abstraction
// every other component borrows (spec §3 "Ownership", §4.1).
package jobrepo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/vendorqueue/internal/locks"
	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
)

// Repository is the work-item repository's public contract.
type Repository interface {
	Enqueue(dbc dbctx.Context, jobType string, payload []byte, idempotencyKey *string, priority int) (int64, error)
	ClaimBatch(dbc dbctx.Context, limit int, jobType string) ([]*model.Job, error)
	Heartbeat(dbc dbctx.Context, id int64) error
	Complete(dbc dbctx.Context, id int64) error
	Fail(dbc dbctx.Context, id int64, failErr error) error
	WithLock(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error
	CountByStatusAndType(dbc dbctx.Context, statuses []model.JobStatus, jobType string) (int64, error)
	RedriveDeadLetter(dbc dbctx.Context, jobID int64) error
	ListDeadLetter(dbc dbctx.Context, limit int) ([]*model.DeadLetterEntry, error)
	ActivitySnapshot(dbc dbctx.Context) (ActivitySnapshot, error)
}

type repository struct {
	db     *gorm.DB
	log    *logger.Logger
	caps   Capabilities
	locker locks.Locker

	maxAttempts int
}

// New constructs the repository. locker is used for WithLock and for
// serializing idempotency-key races in Enqueue; caps selects which claim
// strategy ClaimBatch uses.
func New(db *gorm.DB, baseLog *logger.Logger, caps Capabilities, locker locks.Locker, maxAttempts int) Repository {
	if maxAttempts <= 0 {
		maxAttempts = model.DefaultMaxAttempts
	}
	return &repository{
		db:          db,
		log:         baseLog.With("repo", "jobrepo"),
		caps:        caps,
		locker:      locker,
		maxAttempts: maxAttempts,
	}
}

func txOrDB(dbc dbctx.Context, db *gorm.DB) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return db
}

// withRetryableTransaction runs fn inside a transaction, retrying up to 3
// times on deadlock with linear-plus-jitter backoff capped at 1.2s.
func (r *repository) withRetryableTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	const maxRetries = 3
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := r.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isDeadlock(err) || attempt == maxRetries {
			return err
		}
		r.log.Warn("deadlock detected, retrying transaction", "attempt", attempt, "error", err)
		time.Sleep(deadlockRetryDelay(attempt))
	}
	return lastErr
}

func (r *repository) WithLock(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := r.locker.WithLock(lockCtx, name, fn)
	if err == nil {
		return nil
	}
	// Spec §4.1: "failure to acquire is not fatal — the protected section
	// still runs, but the caller is notified." We run fn unlocked and wrap
	// the lock error so the caller can log/act on degraded safety.
	r.log.Warn("advisory lock unavailable, running unprotected", "name", name, "error", err)
	if runErr := fn(ctx); runErr != nil {
		return runErr
	}
	return &LockUnavailableError{Name: name, Cause: err}
}

// LockUnavailableError signals that a WithLock section ran without the
// advisory lock held; it is never a reason to fail the overall operation.
type LockUnavailableError struct {
	Name  string
	Cause error
}

func (e *LockUnavailableError) Error() string {
	return "advisory lock unavailable for " + e.Name + ": " + e.Cause.Error()
}

func (e *LockUnavailableError) Unwrap() error { return e.Cause }

func (r *repository) appendLog(tx *gorm.DB, jobID int64, level model.LogLevel, message, correlationID string) error {
	return tx.Create(&model.JobLog{
		JobID:         jobID,
		Level:         level,
		Message:       message,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}).Error
}

func (r *repository) CountByStatusAndType(dbc dbctx.Context, statuses []model.JobStatus, jobType string) (int64, error) {
	db := txOrDB(dbc, r.db).WithContext(dbc.Ctx).Model(&model.Job{})
	if len(statuses) > 0 {
		db = db.Where("status IN ?", statuses)
	}
	if jobType != "" {
		db = db.Where("type = ?", jobType)
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func newTraceID() string { return uuid.New().String() }

// DB exposes the underlying *gorm.DB for collaborators (handlers' guarded
// audit-log writer) that need direct access to a table the Repository
// interface doesn't own. It is not part of the Repository interface itself
// so most callers stay honest about only touching job/DLQ rows through the
// named operations above.
func (r *repository) DB() *gorm.DB { return r.db }
