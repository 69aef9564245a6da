package jobrepo

import (
	"time"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
)

// ActivitySnapshot is the liveness picture the watchdog reads every tick:
// timestamps of last-started and last-completed plus a one-minute
// completion count, the DB-native substitute for log/lock-file
// mtimes in a system with no filesystem state of its own.
type ActivitySnapshot struct {
	LastStartedAt       *time.Time
	LastCompletedAt     *time.Time
	CompletedLastMinute int64
}

func (r *repository) ActivitySnapshot(dbc dbctx.Context) (ActivitySnapshot, error) {
	db := txOrDB(dbc, r.db).WithContext(dbc.Ctx)
	var snap ActivitySnapshot

	var lastStarted model.Job
	if err := db.Where("started_at IS NOT NULL").Order("started_at DESC").Limit(1).First(&lastStarted).Error; err == nil {
		snap.LastStartedAt = lastStarted.StartedAt
	}

	var lastCompleted model.Job
	if err := db.Where("finished_at IS NOT NULL").Order("finished_at DESC").Limit(1).First(&lastCompleted).Error; err == nil {
		snap.LastCompletedAt = lastCompleted.FinishedAt
	}

	cutoff := time.Now().UTC().Add(-time.Minute)
	if err := db.Model(&model.Job{}).Where("status = ? AND finished_at >= ?", model.JobDone, cutoff).Count(&snap.CompletedLastMinute).Error; err != nil {
		return snap, err
	}
	return snap, nil
}
