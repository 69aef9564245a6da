package jobrepo

import (
	"time"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
)

// Heartbeat is an idempotent lease extension: it only touches rows still in
// working status, and is a silent no-op otherwise.
func (r *repository) Heartbeat(dbc dbctx.Context, id int64) error {
	now := time.Now().UTC()
	lease := now.Add(model.LeaseDuration)
	db := txOrDB(dbc, r.db).WithContext(dbc.Ctx)
	return db.Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobWorking).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"lease_until":  lease,
			"updated_at":   now,
		}).Error
}
