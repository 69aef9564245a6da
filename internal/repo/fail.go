package jobrepo

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
)

// Fail increments attempts and either schedules a retry or moves the job to
// the dead-letter queue once attempts reach the configured max.
func (r *repository) Fail(dbc dbctx.Context, id int64, failErr error) error {
	message := ""
	if failErr != nil {
		message = failErr.Error()
	}

	return r.withRetryableTransaction(dbc.Ctx, func(tx *gorm.DB) error {
		var job model.Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&job).Error; err != nil {
			return err
		}

		attempts := job.Attempts + 1
		now := time.Now().UTC()

		if attempts >= job.MaxAttempts {
			if err := tx.Model(&model.Job{}).Where("id = ?", id).Updates(map[string]interface{}{
				"attempts":   attempts,
				"status":     model.JobFailed,
				"last_error": message,
				"updated_at": now,
			}).Error; err != nil {
				return err
			}

			entry := model.DeadLetterEntry{
				JobID:          job.ID,
				Type:           job.Type,
				Payload:        job.Payload,
				IdempotencyKey: job.IdempotencyKey,
				FailureClass:   "max_attempts_exceeded",
				Message:        message,
				Attempts:       attempts,
				CreatedAt:      job.CreatedAt,
				MovedAt:        now,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "job_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"message", "attempts", "moved_at", "failure_class"}),
			}).Create(&entry).Error; err != nil {
				return err
			}

			return r.appendLog(tx, id, model.LogError, "job.failed.final", newTraceID())
		}

		backoff := retryBackoff(attempts)
		nextRun := now.Add(backoff)
		if err := tx.Model(&model.Job{}).Where("id = ?", id).Updates(map[string]interface{}{
			"attempts":    attempts,
			"status":      model.JobPending,
			"last_error":  message,
			"next_run_at": nextRun,
			"updated_at":  now,
		}).Error; err != nil {
			return err
		}
		return r.appendLog(tx, id, model.LogWarning, "job.retry", newTraceID())
	})
}

// RedriveDeadLetter resets a dead-lettered job back to pending: attempts is
// decremented by one (floored at zero) and next_run_at is set a minute out.
func (r *repository) RedriveDeadLetter(dbc dbctx.Context, jobID int64) error {
	return r.withRetryableTransaction(dbc.Ctx, func(tx *gorm.DB) error {
		var job model.Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", jobID).First(&job).Error; err != nil {
			return err
		}

		attempts := job.Attempts - 1
		if attempts < 0 {
			attempts = 0
		}
		now := time.Now().UTC()
		nextRun := now.Add(time.Minute)

		if err := tx.Model(&model.Job{}).Where("id = ?", jobID).Updates(map[string]interface{}{
			"status":      model.JobPending,
			"attempts":    attempts,
			"last_error":  "",
			"next_run_at": nextRun,
			"updated_at":  now,
		}).Error; err != nil {
			return err
		}

		if err := tx.Where("job_id = ?", jobID).Delete(&model.DeadLetterEntry{}).Error; err != nil {
			return err
		}

		return r.appendLog(tx, jobID, model.LogInfo, "job.redriven", newTraceID())
	})
}

func (r *repository) ListDeadLetter(dbc dbctx.Context, limit int) ([]*model.DeadLetterEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []*model.DeadLetterEntry
	db := txOrDB(dbc, r.db).WithContext(dbc.Ctx)
	err := db.Order("moved_at ASC").Limit(limit).Find(&rows).Error
	return rows, err
}
