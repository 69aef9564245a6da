package config

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/vendorqueue/internal/model"
)

// PostgresStore is the Store backed by the config_entry table.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	key = canonical(key)
	var row model.ConfigEntry
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	key = canonical(key)
	row := model.ConfigEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	key = canonical(key)
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&model.ConfigEntry{}).Error
}
