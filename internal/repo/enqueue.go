package jobrepo

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
	queueerrors "github.com/yungbote/vendorqueue/internal/pkg/errors"
)

// Enqueue inserts a new job, deduplicating on idempotency key. A caller
// hitting the same key concurrently gets back the existing row's id without
// a second insert; contention is serialized by an advisory lock keyed on
// the idempotency key, acquired for up to 5 seconds.
func (r *repository) Enqueue(dbc dbctx.Context, jobType string, payload []byte, idempotencyKey *string, priority int) (int64, error) {
	if jobType == "" {
		return 0, &queueerrors.ValidationError{Field: "type", Message: "job type is required"}
	}
	if idempotencyKey != nil && len(*idempotencyKey) > model.MaxIdempotencyKeyLen {
		return 0, &queueerrors.ValidationError{Field: "idempotency_key", Message: "exceeds max length"}
	}

	priority = model.ClampPriority(priority)
	if payload == nil {
		payload = []byte("{}")
	}

	var id int64
	insert := func() error {
		return r.withRetryableTransaction(dbc.Ctx, func(tx *gorm.DB) error {
			if idempotencyKey != nil && *idempotencyKey != "" {
				var existing model.Job
				err := tx.Where("idempotency_key = ?", *idempotencyKey).First(&existing).Error
				if err == nil {
					id = existing.ID
					return nil
				}
				if err != gorm.ErrRecordNotFound {
					return err
				}
			}

			now := time.Now().UTC()
			job := model.Job{
				Type:           jobType,
				Priority:       priority,
				Payload:        payload,
				IdempotencyKey: idempotencyKey,
				Attempts:       0,
				MaxAttempts:    r.maxAttempts,
				Status:         model.JobPending,
				CreatedAt:      now,
				UpdatedAt:      now,
			}

			err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&job).Error
			if err != nil {
				if isUniqueViolation(err) && idempotencyKey != nil {
					var existing model.Job
					if lookupErr := tx.Where("idempotency_key = ?", *idempotencyKey).First(&existing).Error; lookupErr == nil {
						id = existing.ID
						return nil
					}
				}
				return err
			}
			id = job.ID

			return r.appendLog(tx, id, model.LogInfo, "job.created", traceIDFromPayload(payload))
		})
	}

	if idempotencyKey == nil || *idempotencyKey == "" {
		if err := insert(); err != nil {
			return 0, err
		}
		return id, nil
	}

	lockCtx, cancel := context.WithTimeout(dbc.Ctx, 5*time.Second)
	defer cancel()
	lockName := "enqueue:idempotency:" + *idempotencyKey
	if err := r.locker.WithLock(lockCtx, lockName, func(context.Context) error { return insert() }); err != nil {
		return 0, err
	}
	return id, nil
}

func traceIDFromPayload(payload []byte) string {
	var probe struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.TraceID
}
