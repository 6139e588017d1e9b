package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"memocare/internal/reminder"
	logx "memocare/pkg/logx"
)

func newMockStore(t *testing.T) (*sqlStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	st := newSQLStore(db, dialectPostgres, logx.Nop())
	st.now = func() time.Time { return base }
	return st, mock
}

func TestRebind(t *testing.T) {
	t.Parallel()
	pg := &sqlStore{dialect: dialectPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("postgres rebind = %q", got)
	}
	lite := &sqlStore{dialect: dialectSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind = %q", got)
	}
}

func TestPostgresListDue(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	cols := []string{"id", "owner_id", "label", "category", "rec_kind", "rec_weekday", "rec_hour", "rec_minute",
		"next_run_at", "active", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+reminderCols+` FROM reminders WHERE active = $1 AND next_run_at <= $2 ORDER BY next_run_at, id`)).
		WithArgs(true, base.UnixMilli()).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("r1", "alice", "pills", "medication", "weekly", 1, 9, 0, base.UnixMilli(), true, base.UnixMilli(), base.UnixMilli()))

	got, err := st.ListDue(context.Background(), base)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListDue = %d rows", len(got))
	}
	want := reminder.WeeklyAt(time.Monday, 9, 0)
	if got[0].Recurrence != want || got[0].Category != reminder.CategoryMedication || !got[0].NextRunAt.Equal(base) {
		t.Fatalf("row = %+v", got[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresMarkFired(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	next := base.Add(time.Hour)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reminders SET next_run_at = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs(next.UnixMilli(), base.UnixMilli(), "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reminders SET active = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs(false, base.UnixMilli(), "r2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reminders SET active = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs(false, base.UnixMilli(), "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	if err := st.MarkFired(ctx, "r1", &next); err != nil {
		t.Fatalf("MarkFired(next): %v", err)
	}
	if err := st.MarkFired(ctx, "r2", nil); err != nil {
		t.Fatalf("MarkFired(nil): %v", err)
	}
	if err := st.MarkFired(ctx, "gone", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkFired(gone) = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresGetNotFound(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM reminders WHERE id = $1`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := st.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestPostgresListDueError(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	boom := errors.New("connection refused")
	mock.ExpectQuery(`SELECT .* FROM reminders`).WillReturnError(boom)

	if _, err := st.ListDue(context.Background(), base); !errors.Is(err, boom) {
		t.Fatalf("ListDue = %v, want %v", err, boom)
	}
}

func TestPostgresDedupUpsert(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	until := base.Add(time.Minute)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO delivery_dedup(dedup_key, expires_at) VALUES($1,$2)`)).
		WithArgs("k", until.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT expires_at FROM delivery_dedup WHERE dedup_key = $1`)).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(until.UnixMilli()))

	ctx := context.Background()
	if err := st.PutDedup(ctx, "k", until); err != nil {
		t.Fatalf("PutDedup: %v", err)
	}
	got, ok, err := st.GetDedup(ctx, "k")
	if err != nil || !ok || !got.Equal(until) {
		t.Fatalf("GetDedup = %v %v %v", got, ok, err)
	}
}
