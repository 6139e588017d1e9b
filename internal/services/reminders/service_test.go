package reminders

import (
	"context"
	"testing"
	"time"

	"memocare/internal/reminder"
	"memocare/internal/storage"
	logx "memocare/pkg/logx"
)

// Monday 2025-01-06 09:00 UTC.
var base = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, now *time.Time) (*Service, *storage.Memory) {
	t.Helper()
	st := storage.NewMemory()
	s := New(st, logx.Nop(),
		WithClock(func() time.Time { return *now }),
		WithLocation(func() *time.Location { return time.UTC }),
	)
	return s, st
}

func ptr(t time.Time) *time.Time { return &t }

func TestAddResolvesNextRun(t *testing.T) {
	t.Parallel()
	now := base.Add(30 * time.Minute)
	s, _ := newService(t, &now)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      Input
		want    time.Time
		wantErr bool
	}{
		{"daily defaults to next occurrence", Input{Label: "pills", Category: "medication", Recurrence: reminder.DailyAt(9, 0)}, base.AddDate(0, 0, 1), false},
		{"hourly defaults to top of hour", Input{Label: "water", Recurrence: reminder.Hourly()}, base.Add(time.Hour), false},
		{"explicit time wins", Input{Label: "call", Recurrence: reminder.DailyAt(9, 0), NextRunAt: ptr(base.Add(3 * time.Hour))}, base.Add(3 * time.Hour), false},
		{"once needs a time", Input{Label: "dentist", Recurrence: reminder.Once()}, time.Time{}, true},
		{"once in the past", Input{Label: "dentist", Recurrence: reminder.Once(), NextRunAt: ptr(base)}, time.Time{}, true},
		{"unknown category", Input{Label: "x", Category: "nap", Recurrence: reminder.Hourly()}, time.Time{}, true},
		{"unknown kind", Input{Label: "x", Recurrence: reminder.Recurrence{Kind: "monthly"}}, time.Time{}, true},
		{"empty label", Input{Label: " ", Recurrence: reminder.Hourly()}, time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := s.Add(ctx, "alice", tt.in)
		if tt.wantErr {
			if !IsInvalid(err) {
				t.Fatalf("%s: err = %v, want invalid", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: Add: %v", tt.name, err)
		}
		if !got.NextRunAt.Equal(tt.want) || !got.Active || got.OwnerID != "alice" {
			t.Fatalf("%s: got %+v, want next %v", tt.name, got, tt.want)
		}
	}
}

func TestAddNeverStartsBeforeCreation(t *testing.T) {
	t.Parallel()
	now := base.Add(45 * time.Second)
	s, _ := newService(t, &now)

	_, err := s.Add(context.Background(), "alice", Input{
		Label:      "dentist",
		Recurrence: reminder.Once(),
		NextRunAt:  ptr(now.Add(-40 * time.Second)),
	})
	if !IsInvalid(err) {
		t.Fatalf("err = %v, want invalid", err)
	}

	r, err := s.Add(context.Background(), "alice", Input{Label: "dentist", Recurrence: reminder.Once(), NextRunAt: ptr(now)})
	if err != nil {
		t.Fatalf("Add at now: %v", err)
	}
	if r.NextRunAt.Before(r.CreatedAt) {
		t.Fatalf("next_run_at %v before created_at %v", r.NextRunAt, r.CreatedAt)
	}
}

func TestOwnerScoping(t *testing.T) {
	t.Parallel()
	now := base
	s, _ := newService(t, &now)
	ctx := context.Background()

	r, err := s.Add(ctx, "alice", Input{Label: "pills", Recurrence: reminder.DailyAt(20, 0)})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Get(ctx, "bob", r.ID); !IsNotFound(err) {
		t.Fatalf("Get as bob err = %v, want not found", err)
	}
	if _, err := s.SetActive(ctx, "bob", r.ID, false); !IsNotFound(err) {
		t.Fatalf("SetActive as bob err = %v", err)
	}
	if err := s.Delete(ctx, "bob", r.ID); !IsNotFound(err) {
		t.Fatalf("Delete as bob err = %v", err)
	}
	list, err := s.List(ctx, "bob")
	if err != nil || len(list) != 0 {
		t.Fatalf("List bob = %v, %v", list, err)
	}
	list, err = s.List(ctx, "alice")
	if err != nil || len(list) != 1 {
		t.Fatalf("List alice = %v, %v", list, err)
	}
	if _, err := s.List(ctx, ""); !IsInvalid(err) {
		t.Fatalf("List without owner err = %v", err)
	}

	if err := s.Delete(ctx, "alice", r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "alice", r.ID); !IsNotFound(err) {
		t.Fatalf("Get after delete err = %v", err)
	}
}

func TestEditKeepsActiveFlag(t *testing.T) {
	t.Parallel()
	now := base
	s, _ := newService(t, &now)
	ctx := context.Background()

	r, _ := s.Add(ctx, "alice", Input{Label: "pills", Recurrence: reminder.DailyAt(20, 0)})
	if _, err := s.SetActive(ctx, "alice", r.ID, false); err != nil {
		t.Fatalf("pause: %v", err)
	}
	got, err := s.Edit(ctx, "alice", r.ID, Input{Label: "evening pills", Category: "medication", Recurrence: reminder.WeeklyAt(time.Friday, 18, 30)})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	want := time.Date(2025, 1, 10, 18, 30, 0, 0, time.UTC)
	if got.Label != "evening pills" || got.Category != reminder.CategoryMedication || !got.NextRunAt.Equal(want) || got.Active {
		t.Fatalf("edited = %+v", got)
	}
}

func TestResumeRecomputesStaleRecurring(t *testing.T) {
	t.Parallel()
	now := base
	s, _ := newService(t, &now)
	ctx := context.Background()

	r, _ := s.Add(ctx, "alice", Input{Label: "pills", Recurrence: reminder.DailyAt(9, 30)})
	if _, err := s.SetActive(ctx, "alice", r.ID, false); err != nil {
		t.Fatalf("pause: %v", err)
	}

	now = base.Add(72 * time.Hour)
	got, err := s.SetActive(ctx, "alice", r.ID, true)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	want := time.Date(2025, 1, 9, 9, 30, 0, 0, time.UTC)
	if !got.Active || !got.NextRunAt.Equal(want) {
		t.Fatalf("resumed = %+v, want next %v", got, want)
	}
}

func TestResumeStaleOnceRejected(t *testing.T) {
	t.Parallel()
	now := base
	s, _ := newService(t, &now)
	ctx := context.Background()

	r, _ := s.Add(ctx, "alice", Input{Label: "dentist", Recurrence: reminder.Once(), NextRunAt: ptr(base.Add(time.Hour))})
	if _, err := s.SetActive(ctx, "alice", r.ID, false); err != nil {
		t.Fatalf("pause: %v", err)
	}
	now = base.Add(2 * time.Hour)
	if _, err := s.SetActive(ctx, "alice", r.ID, true); !IsInvalid(err) {
		t.Fatalf("resume err = %v, want invalid", err)
	}
}

func TestListDueDefaultsToNow(t *testing.T) {
	t.Parallel()
	now := base
	s, _ := newService(t, &now)
	ctx := context.Background()

	if _, err := s.Add(ctx, "alice", Input{Label: "water", Recurrence: reminder.Hourly()}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	due, err := s.ListDue(ctx, time.Time{})
	if err != nil || len(due) != 0 {
		t.Fatalf("due now = %v, %v", due, err)
	}
	now = base.Add(time.Hour)
	due, err = s.ListDue(ctx, time.Time{})
	if err != nil || len(due) != 1 {
		t.Fatalf("due after an hour = %v, %v", due, err)
	}
}
