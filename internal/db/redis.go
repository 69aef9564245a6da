package db

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/vendorqueue/internal/pkg/env"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
)

// NewRedisClient connects to REDIS_ADDR if set, used as the distributed
// lock backend and the webhook rate-limit cache. A nil return (no address
// configured) is a valid, supported configuration: every Redis-backed
// collaborator has a Postgres-only fallback.
func NewRedisClient(baseLog *logger.Logger) *goredis.Client {
	addr := env.GetEnv("REDIS_ADDR", "", baseLog)
	if addr == "" {
		return nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		baseLog.Warn("redis ping failed, continuing without redis", "addr", addr, "error", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}
