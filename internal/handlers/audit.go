package handlers

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/vendorqueue/internal/model"
)

// writeAudit records a domain side-effect row through a guarded insert: a
// missing job_audit_log table (e.g. a deployment that hasn't migrated yet)
// is logged and swallowed, never surfaced as a handler failure.
func (d *deps) writeAudit(ctx context.Context, jobID int64, action string, detail interface{}) {
	raw, err := json.Marshal(detail)
	if err != nil {
		d.log.Warn("failed to marshal audit detail", "job_id", jobID, "action", action, "error", err)
		return
	}
	db := d.repoDB()
	if db == nil {
		d.log.Debug("no direct db access available, skipping audit write", "action", action)
		return
	}
	row := &model.AuditLog{JobID: jobID, Action: action, Detail: raw, CreatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		if isMissingTable(err) {
			d.log.Debug("audit table absent, skipping audit write", "action", action)
			return
		}
		d.log.Warn("audit write failed", "job_id", jobID, "action", action, "error", err)
	}
}

// repoDB narrows the repository down to a *gorm.DB for the one call site
// (audit writes) that needs direct table access outside the job/DLQ tables
// the repository interface otherwise guards exclusively.
func (d *deps) repoDB() *gorm.DB {
	type dbExposer interface {
		DB() *gorm.DB
	}
	if exposer, ok := d.repo.(dbExposer); ok {
		return exposer.DB()
	}
	return nil
}

func isMissingTable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg, []string{"does not exist", "no such table", "Unknown table"})
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}
