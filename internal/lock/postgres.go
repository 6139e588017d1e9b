package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	logx "memocare/pkg/logx"
)

// Postgres uses session-level advisory locks. The session is pinned to a
// dedicated connection from the pool for as long as the lock is held.
type Postgres struct {
	db  *sql.DB
	id  int64
	log logx.Logger
}

func NewPostgres(db *sql.DB, key string, log logx.Logger) *Postgres {
	return &Postgres{db: db, id: keyID(key), log: log}
}

func (l *Postgres) TryLock(ctx context.Context) (func(), bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.id).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		_ = conn.Close()
		return nil, false, nil
	}

	unlock := func() {
		// The tick context may already be cancelled.
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var released bool
		if err := conn.QueryRowContext(uctx, "SELECT pg_advisory_unlock($1)", l.id).Scan(&released); err != nil {
			l.log.Warn("failed to release lock", logx.Int64("lock_id", l.id), logx.Err(err))
		} else if !released {
			l.log.Warn("advisory lock was not held at release", logx.Int64("lock_id", l.id))
		}
		_ = conn.Close()
	}
	return unlock, true, nil
}
