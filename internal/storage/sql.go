package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"memocare/internal/reminder"
	logx "memocare/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqlStore implements Store over database/sql. Queries are written with '?'
// placeholders and rebound per dialect.
type sqlStore struct {
	db      *sql.DB
	log     logx.Logger
	dialect string
	now     func() time.Time

	opCount    atomic.Uint64
	pruneEvery uint64
}

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

const reminderCols = `id, owner_id, label, category, rec_kind, rec_weekday, rec_hour, rec_minute, next_run_at, active, created_at, updated_at`

func newSQLStore(db *sql.DB, dialect string, log logx.Logger) *sqlStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &sqlStore{db: db, log: log, dialect: dialect, now: time.Now, pruneEvery: 500}
}

// DB exposes the pool for components sharing the connection (advisory locks).
func (s *sqlStore) DB() *sql.DB { return s.db }

func (s *sqlStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/" + s.dialect + ".sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("migrate %s: %w", s.dialect, err)
	}
	return nil
}

// rebind rewrites '?' placeholders to '$n' for postgres.
func (s *sqlStore) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(sc rowScanner) (reminder.Reminder, error) {
	var (
		r                      reminder.Reminder
		category, kind         string
		weekday, hour, minute  int
		next, created, updated int64
	)
	err := sc.Scan(&r.ID, &r.OwnerID, &r.Label, &category, &kind, &weekday, &hour, &minute,
		&next, &r.Active, &created, &updated)
	if err != nil {
		return reminder.Reminder{}, err
	}
	r.Category = reminder.Category(category)
	r.Recurrence = reminder.Recurrence{
		Kind:    reminder.Kind(kind),
		Weekday: time.Weekday(weekday),
		Hour:    hour,
		Minute:  minute,
	}
	r.NextRunAt = fromMillis(next)
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	return r, nil
}

func (s *sqlStore) queryReminders(ctx context.Context, q string, args ...any) ([]reminder.Reminder, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]reminder.Reminder, 0, 8)
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) ListDue(ctx context.Context, asOf time.Time) ([]reminder.Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE active = ? AND next_run_at <= ? ORDER BY next_run_at, id`,
		true, toMillis(asOf))
}

func (s *sqlStore) MarkFired(ctx context.Context, id string, next *time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	now := toMillis(s.now())
	var (
		res sql.Result
		err error
	)
	if next != nil {
		res, err = s.exec(ctx, `UPDATE reminders SET next_run_at = ?, updated_at = ? WHERE id = ?`, toMillis(*next), now, id)
	} else {
		res, err = s.exec(ctx, `UPDATE reminders SET active = ?, updated_at = ? WHERE id = ?`, false, now, id)
	}
	return affectedOne(res, err)
}

func (s *sqlStore) Create(ctx context.Context, r reminder.Reminder) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if err := r.Validate(); err != nil {
		return err
	}
	_, err := s.exec(ctx,
		`INSERT INTO reminders(`+reminderCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.OwnerID, r.Label, string(r.Category), string(r.Recurrence.Kind),
		int(r.Recurrence.Weekday), r.Recurrence.Hour, r.Recurrence.Minute,
		toMillis(r.NextRunAt), r.Active, toMillis(r.CreatedAt), toMillis(r.UpdatedAt),
	)
	return err
}

func (s *sqlStore) Get(ctx context.Context, id string) (reminder.Reminder, error) {
	if s == nil || s.db == nil {
		return reminder.Reminder{}, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+reminderCols+` FROM reminders WHERE id = ?`), id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Reminder{}, ErrNotFound
	}
	return r, err
}

func (s *sqlStore) ListByOwner(ctx context.Context, ownerID string) ([]reminder.Reminder, error) {
	return s.queryReminders(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE owner_id = ? ORDER BY next_run_at, id`, ownerID)
}

func (s *sqlStore) Update(ctx context.Context, r reminder.Reminder) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if err := r.Validate(); err != nil {
		return err
	}
	res, err := s.exec(ctx,
		`UPDATE reminders SET label = ?, category = ?, rec_kind = ?, rec_weekday = ?, rec_hour = ?, rec_minute = ?,
		 next_run_at = ?, active = ?, updated_at = ? WHERE id = ?`,
		r.Label, string(r.Category), string(r.Recurrence.Kind), int(r.Recurrence.Weekday),
		r.Recurrence.Hour, r.Recurrence.Minute, toMillis(r.NextRunAt), r.Active, toMillis(s.now()), r.ID,
	)
	return affectedOne(res, err)
}

func (s *sqlStore) SetActive(ctx context.Context, id string, active bool) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.exec(ctx, `UPDATE reminders SET active = ?, updated_at = ? WHERE id = ?`, active, toMillis(s.now()), id)
	return affectedOne(res, err)
}

func (s *sqlStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.exec(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return affectedOne(res, err)
}

func (s *sqlStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	_, err := s.exec(ctx,
		`INSERT INTO delivery_dedup(dedup_key, expires_at) VALUES(?,?)
		 ON CONFLICT(dedup_key) DO UPDATE SET expires_at = excluded.expires_at`,
		key, toMillis(until),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.pruneExpired(pctx); perr != nil {
			s.log.Debug("dedup prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqlStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT expires_at FROM delivery_dedup WHERE dedup_key = ?`), key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return fromMillis(ms), true, nil
}

func (s *sqlStore) pruneExpired(ctx context.Context) error {
	_, err := s.exec(ctx, `DELETE FROM delivery_dedup WHERE expires_at < ?`, toMillis(s.now()))
	return err
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
