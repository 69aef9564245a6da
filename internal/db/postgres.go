// Package db opens and migrates the service's Postgres connection.
package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/env"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(baseLog *logger.Logger) (*PostgresService, error) {
	svcLog := baseLog.With("service", "PostgresService")

	host := env.GetEnv("POSTGRES_HOST", "localhost", baseLog)
	port := env.GetEnv("POSTGRES_PORT", "5432", baseLog)
	user := env.GetEnv("POSTGRES_USER", "postgres", baseLog)
	password := env.GetEnv("POSTGRES_PASSWORD", "", baseLog)
	name := env.GetEnv("POSTGRES_NAME", "vendorqueue", baseLog)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                 gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	svcLog.Info("connecting to postgres")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &PostgresService{db: gdb, log: svcLog}, nil
}

func (s *PostgresService) DB() *gorm.DB { return s.db }

// AutoMigrateAll migrates every table this service owns: job/dead-letter
// rows, webhook rows, breaker state, config entries, and rate-limit
// buckets.
func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("auto migrating postgres tables")
	return s.db.AutoMigrate(
		&model.Job{},
		&model.JobLog{},
		&model.DeadLetterEntry{},
		&model.AuditLog{},
		&model.WebhookEvent{},
		&model.WebhookSubscription{},
		&model.WebhookHealthEvent{},
		&model.CircuitBreakerState{},
		&model.ConfigEntry{},
		&model.RateLimitBucket{},
	)
}
