package locks

import (
	"context"

	"gorm.io/gorm"
)

// PostgresLocker uses pg_advisory_xact_lock inside a transaction scoped to
// fn's lifetime, so the lock releases on commit, rollback, or panic without
// needing to pin a single connection across separate Exec calls.
type PostgresLocker struct {
	db *gorm.DB
}

func NewPostgresLocker(db *gorm.DB) *PostgresLocker {
	return &PostgresLocker{db: db}
}

func (l *PostgresLocker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := Key64("lock", name)
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", key).Error; err != nil {
			return err
		}
		return fn(ctx)
	})
}
