package jobrepo

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
)

const maxClaimBatch = 200

// ClaimBatch selects up to limit pending, runnable jobs and transitions them
// to working, extending the lease. The strategy is chosen once from the
// sealed Capabilities record rather than probed per call.
func (r *repository) ClaimBatch(dbc dbctx.Context, limit int, jobType string) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 1
	}
	if limit > maxClaimBatch {
		limit = maxClaimBatch
	}

	var claimed []*model.Job
	err := r.withRetryableTransaction(dbc.Ctx, func(tx *gorm.DB) error {
		var rows []*model.Job
		var err error
		switch {
		case r.caps.SkipLocked:
			rows, err = r.claimSkipLocked(tx, limit, jobType)
		case r.caps.ForUpdate:
			rows, err = r.claimPessimistic(tx, limit, jobType)
		default:
			rows, err = r.claimBySubquery(tx, limit, jobType)
		}
		if err != nil {
			return err
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func runnableScope(db *gorm.DB, jobType string) *gorm.DB {
	now := time.Now().UTC()
	q := db.Where("status = ? AND (next_run_at IS NULL OR next_run_at <= ?)", model.JobPending, now)
	if jobType != "" {
		q = q.Where("type = ?", jobType)
	}
	return q.Order("priority ASC").Order("updated_at ASC").Order("id ASC")
}

func (r *repository) markClaimed(tx *gorm.DB, job *model.Job, now time.Time) error {
	lease := now.Add(model.LeaseDuration)
	if err := tx.Model(&model.Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":       model.JobWorking,
		"started_at":   now,
		"updated_at":   now,
		"lease_until":  lease,
		"heartbeat_at": now,
	}).Error; err != nil {
		return err
	}
	job.Status = model.JobWorking
	job.StartedAt = &now
	job.UpdatedAt = now
	job.LeaseUntil = &lease
	job.HeartbeatAt = &now
	return r.appendLog(tx, job.ID, model.LogInfo, "job.claimed", newTraceID())
}

// claimSkipLocked is the primary strategy: `SELECT ... FOR UPDATE SKIP
// LOCKED` so concurrent claimers skip rows locked by each other instead of
// blocking.
func (r *repository) claimSkipLocked(tx *gorm.DB, limit int, jobType string) ([]*model.Job, error) {
	var rows []*model.Job
	q := runnableScope(tx, jobType).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Limit(limit)
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if err := r.markClaimed(tx, row, now); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// claimPessimistic is the fallback when SKIP LOCKED isn't available: plain
// `SELECT ... FOR UPDATE`, which blocks on contended rows rather than
// skipping them, but still guarantees no two claimers get the same row.
func (r *repository) claimPessimistic(tx *gorm.DB, limit int, jobType string) ([]*model.Job, error) {
	var rows []*model.Job
	q := runnableScope(tx, jobType).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Limit(limit)
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if err := r.markClaimed(tx, row, now); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// claimBySubquery is the legacy fallback for backends with no row locking
// at all (e.g. SQLite in unit tests): an atomic UPDATE against a subquery of
// candidate ids, then a re-read of whichever ids the UPDATE actually
// touched. Two concurrent UPDATEs against overlapping id sets can only ever
// each affect the subset they actually flipped, so no row is claimed twice.
func (r *repository) claimBySubquery(tx *gorm.DB, limit int, jobType string) ([]*model.Job, error) {
	var candidateIDs []int64
	idQuery := runnableScope(tx, jobType).Model(&model.Job{}).Limit(limit)
	if err := idQuery.Pluck("id", &candidateIDs).Error; err != nil {
		return nil, err
	}
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	lease := now.Add(model.LeaseDuration)
	res := tx.Model(&model.Job{}).
		Where("id IN ? AND status = ?", candidateIDs, model.JobPending).
		Updates(map[string]interface{}{
			"status":       model.JobWorking,
			"started_at":   now,
			"updated_at":   now,
			"lease_until":  lease,
			"heartbeat_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var rows []*model.Job
	if err := tx.Where("id IN ? AND status = ?", candidateIDs, model.JobWorking).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := r.appendLog(tx, row.ID, model.LogInfo, "job.claimed", newTraceID()); err != nil {
			return nil, err
		}
	}
	return rows, nil
}
