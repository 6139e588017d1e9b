package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	logx "memocare/pkg/logx"
)

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// redisConn is the subset of *redis.Client the lock uses.
type redisConn interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Redis is a single-instance SET NX PX lock. The TTL bounds how long a
// crashed holder blocks other instances, so it must exceed a tick's runtime.
type Redis struct {
	rdb redisConn
	key string
	ttl time.Duration
	log logx.Logger
}

func NewRedis(rdb redisConn, key string, ttl time.Duration, log logx.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, key: key, ttl: ttl, log: log}
}

func (l *Redis) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func() {
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := l.rdb.Eval(uctx, releaseScript, []string{l.key}, token).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			l.log.Warn("failed to release lock", logx.String("key", l.key), logx.Err(err))
			return
		}
		if n == 0 {
			l.log.Warn("lock expired before release", logx.String("key", l.key), logx.Duration("ttl", l.ttl))
		}
	}
	return unlock, true, nil
}
