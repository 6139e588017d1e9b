// Package lock keeps scheduler ticks exclusive across instances that share
// one store.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "memocare/pkg/logx"
)

// Locker is a non-blocking mutual-exclusion primitive.
//
// TryLock returns ok=false without error when another holder owns the lock.
// When ok is true the caller must call unlock exactly once.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

type Config struct {
	Driver string // none | postgres | redis
	Key    string
	TTL    time.Duration // redis only
}

const (
	DefaultKey = "memocare:scheduler:tick"
	DefaultTTL = 2 * time.Minute
)

// Open builds the configured locker. db is required for postgres, rdb for redis.
func Open(cfg Config, db *sql.DB, rdb *redis.Client, log logx.Logger) (Locker, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = DefaultKey
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return Noop{}, nil
	case "postgres", "pg":
		if db == nil {
			return nil, errors.New("postgres lock requires the postgres storage driver")
		}
		return NewPostgres(db, key, log), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis lock requires redis.addr")
		}
		return NewRedis(rdb, key, cfg.TTL, log), nil
	default:
		return nil, errors.New("unknown lock driver: " + cfg.Driver)
	}
}

// Noop always succeeds.
type Noop struct{}

func (Noop) TryLock(context.Context) (func(), bool, error) { return func() {}, true, nil }

// keyID maps a lock name onto the int64 space of postgres advisory locks.
func keyID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
