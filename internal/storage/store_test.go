package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"memocare/internal/reminder"
	logx "memocare/pkg/logx"
)

var base = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

func mustReminder(t *testing.T, owner, label string, rec reminder.Recurrence, next time.Time) reminder.Reminder {
	t.Helper()
	r, err := reminder.New(owner, label, reminder.CategoryTask, rec, next, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("reminder.New: %v", err)
	}
	return r
}

func ids(rs []reminder.Reminder) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

// runStoreContract checks the behaviour every driver must share.
func runStoreContract(t *testing.T, st Store) {
	ctx := context.Background()

	due := mustReminder(t, "alice", "pills", reminder.DailyAt(9, 0), base)
	early := mustReminder(t, "alice", "breakfast", reminder.DailyAt(8, 0), base.Add(-time.Hour))
	later := mustReminder(t, "bob", "walk", reminder.Hourly(), base.Add(time.Minute))
	off := mustReminder(t, "bob", "old", reminder.Once(), base.Add(-2*time.Hour))
	off.Active = false
	for _, r := range []reminder.Reminder{due, early, later, off} {
		if err := st.Create(ctx, r); err != nil {
			t.Fatalf("Create(%s): %v", r.Label, err)
		}
	}

	t.Run("list due is inclusive and ordered", func(t *testing.T) {
		got, err := st.ListDue(ctx, base)
		if err != nil {
			t.Fatalf("ListDue: %v", err)
		}
		want := []string{early.ID, due.ID}
		if len(got) != 2 || got[0].ID != want[0] || got[1].ID != want[1] {
			t.Fatalf("ListDue = %v, want %v", ids(got), want)
		}
		again, _ := st.ListDue(ctx, base)
		if len(again) != len(got) {
			t.Fatalf("ListDue not idempotent: %v then %v", ids(got), ids(again))
		}
	})

	t.Run("get round trips fields", func(t *testing.T) {
		got, err := st.Get(ctx, due.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.OwnerID != "alice" || got.Label != "pills" || got.Recurrence != due.Recurrence {
			t.Fatalf("Get = %+v", got)
		}
		if !got.NextRunAt.Equal(base) || !got.Active {
			t.Fatalf("Get next/active = %v/%v", got.NextRunAt, got.Active)
		}
		if _, err := st.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
		}
	})

	t.Run("mark fired advances or deactivates", func(t *testing.T) {
		next := base.Add(24 * time.Hour)
		if err := st.MarkFired(ctx, due.ID, &next); err != nil {
			t.Fatalf("MarkFired(next): %v", err)
		}
		if err := st.MarkFired(ctx, early.ID, nil); err != nil {
			t.Fatalf("MarkFired(nil): %v", err)
		}
		got, _ := st.ListDue(ctx, base)
		if len(got) != 0 {
			t.Fatalf("ListDue after fire = %v, want empty", ids(got))
		}
		e, _ := st.Get(ctx, early.ID)
		if e.Active || !e.NextRunAt.Equal(early.NextRunAt) {
			t.Fatalf("deactivated = %+v", e)
		}
		d, _ := st.Get(ctx, due.ID)
		if !d.Active || !d.NextRunAt.Equal(next) {
			t.Fatalf("advanced = %+v", d)
		}
		if err := st.MarkFired(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
			t.Fatalf("MarkFired(missing) = %v", err)
		}
	})

	t.Run("owner listing and edits", func(t *testing.T) {
		bobs, err := st.ListByOwner(ctx, "bob")
		if err != nil || len(bobs) != 2 {
			t.Fatalf("ListByOwner(bob) = %v, %v", ids(bobs), err)
		}

		upd := later
		upd.Label = "evening walk"
		upd.Recurrence = reminder.DailyAt(18, 30)
		upd.NextRunAt = base.Add(9*time.Hour + 30*time.Minute)
		if err := st.Update(ctx, upd); err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, _ := st.Get(ctx, later.ID)
		if got.Label != "evening walk" || got.Recurrence.Hour != 18 || got.OwnerID != "bob" {
			t.Fatalf("after Update = %+v", got)
		}

		bad := upd
		bad.Label = ""
		if err := st.Update(ctx, bad); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Update(invalid) = %v, want ErrInvalid", err)
		}

		if err := st.SetActive(ctx, off.ID, true); err != nil {
			t.Fatalf("SetActive: %v", err)
		}
		got, _ = st.Get(ctx, off.ID)
		if !got.Active {
			t.Fatal("SetActive did not activate")
		}

		if err := st.Delete(ctx, off.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := st.Delete(ctx, off.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Delete twice = %v", err)
		}
	})

	t.Run("dedup", func(t *testing.T) {
		until := time.Now().Add(time.Minute)
		if err := st.PutDedup(ctx, "telegram|1|x|2025-01-06T09:00", until); err != nil {
			t.Fatalf("PutDedup: %v", err)
		}
		got, ok, err := st.GetDedup(ctx, "telegram|1|x|2025-01-06T09:00")
		if err != nil || !ok || got.UnixMilli() != until.UnixMilli() {
			t.Fatalf("GetDedup = %v %v %v", got, ok, err)
		}
		if _, ok, _ := st.GetDedup(ctx, "nope"); ok {
			t.Fatal("unexpected dedup hit")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreContract(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "memocare.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	runStoreContract(t, st)
}

func TestOpen(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(default): %v", err)
	}
	if _, ok := st.(*Memory); !ok {
		t.Fatalf("default driver = %T, want *Memory", st)
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("expected missing path error")
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected missing dsn error")
	}
}

func TestMemoryCreateRejectsDuplicate(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	r := mustReminder(t, "alice", "x", reminder.Hourly(), base)
	if err := st.Create(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if err := st.Create(context.Background(), r); !errors.Is(err, ErrInvalid) {
		t.Fatalf("duplicate Create = %v", err)
	}
}
