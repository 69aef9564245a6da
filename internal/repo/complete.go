package jobrepo

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
)

// Complete transitions working → done. Idempotent: a job already done is
// left untouched.
func (r *repository) Complete(dbc dbctx.Context, id int64) error {
	return r.withRetryableTransaction(dbc.Ctx, func(tx *gorm.DB) error {
		var job model.Job
		if err := tx.Where("id = ?", id).First(&job).Error; err != nil {
			return err
		}
		if job.Status == model.JobDone {
			return nil
		}
		now := time.Now().UTC()
		if err := tx.Model(&model.Job{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":      model.JobDone,
			"finished_at": now,
			"updated_at":  now,
		}).Error; err != nil {
			return err
		}
		return r.appendLog(tx, id, model.LogInfo, "job.completed", newTraceID())
	})
}
