package locks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when the Redis fallback can't obtain the
// lock before ctx is done.
var ErrLockNotAcquired = errors.New("lock not acquired")

// releaseScript only deletes the key if it still holds this holder's token,
// so a lock one process's TTL expired can't be released out from under
// whoever re-acquired it.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// RedisLocker implements Locker with SET NX EX, used when no Postgres
// connection is available to the caller (e.g. a sidecar that only talks to
// the vendor API and the cache).
type RedisLocker struct {
	rdb        *goredis.Client
	ttl        time.Duration
	retryEvery time.Duration
}

func NewRedisLocker(rdb *goredis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, retryEvery: 100 * time.Millisecond}
}

func (l *RedisLocker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := "lock:" + name
	token := uuid.New().String()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.rdb.Eval(releaseCtx, releaseScript, []string{key}, token).Err()
	}()

	return fn(ctx)
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrLockNotAcquired
		case <-ticker.C:
		}
	}
}
