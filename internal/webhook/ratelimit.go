package webhook

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
)

// RateLimiter reports whether key (the caller's IP) may proceed under a
// fixed, minute-aligned one-minute window. A nil RateLimiter on Receiver
// disables the check entirely.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64) (bool, error)
}

// dbRateLimitBucket is the durable fallback: every replica sees the same
// minute-aligned row through Postgres, so the limit holds even when no
// Redis cache is configured.
type dbRateLimitBucket struct {
	db *gorm.DB
}

func newDBRateLimitBucket(db *gorm.DB) *dbRateLimitBucket { return &dbRateLimitBucket{db: db} }

func (b *dbRateLimitBucket) Allow(ctx context.Context, key string, limit int64) (bool, error) {
	window := time.Now().UTC().Truncate(time.Minute)
	row := model.RateLimitBucket{Key: key, WindowStart: window, Count: 1}
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}, {Name: "window_start"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("rate_limit_bucket.count + 1")}),
	}).Create(&row).Error
	if err != nil {
		return false, err
	}
	var current model.RateLimitBucket
	if err := b.db.WithContext(ctx).Where("key = ? AND window_start = ?", key, window).First(&current).Error; err != nil {
		return false, err
	}
	return current.Count <= limit, nil
}

// redisRateLimitCache is a best-effort cache in front of dbRateLimitBucket:
// a Redis INCR+EXPIRE is cheaper than a Postgres upsert on every webhook
// delivery, but Redis being unreachable never blocks intake — it only
// means every request falls through to the durable bucket table.
type redisRateLimitCache struct {
	rdb    *goredis.Client
	fall   RateLimiter
	log    *logger.Logger
}

func newRedisRateLimitCache(rdb *goredis.Client, fall RateLimiter, log *logger.Logger) *redisRateLimitCache {
	return &redisRateLimitCache{rdb: rdb, fall: fall, log: log.With("component", "webhook_ratelimit")}
}

func (c *redisRateLimitCache) Allow(ctx context.Context, key string, limit int64) (bool, error) {
	redisKey := fmt.Sprintf("webhook:ratelimit:%s:%d", key, time.Now().UTC().Unix()/60)
	count, err := c.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		c.log.Warn("redis rate-limit cache unreachable, falling back to durable bucket", "error", err)
		return c.fall.Allow(ctx, key, limit)
	}
	if count == 1 {
		c.rdb.Expire(ctx, redisKey, 90*time.Second)
	}
	return count <= limit, nil
}

// NewRateLimiter builds the webhook receiver's per-IP limiter. rdb may be
// nil, in which case the durable Postgres bucket is used directly.
func NewRateLimiter(db *gorm.DB, rdb *goredis.Client, log *logger.Logger) RateLimiter {
	durable := newDBRateLimitBucket(db)
	if rdb == nil {
		return durable
	}
	return newRedisRateLimitCache(rdb, durable, log)
}
