package storage

import (
	"context"
	"errors"
	"time"

	"memocare/internal/reminder"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("reminder not found")

	// ErrInvalid is returned for reminders that fail validation.
	ErrInvalid = reminder.ErrInvalid
)

// Config configures storage.
//
// Driver values:
//   - "memory" (or empty): in-process maps, lost on restart
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL reachable through DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API shared by the scheduler, the owner surfaces
// (HTTP, MCP) and the delivery pipeline.
type Store interface {
	// ListDue returns active reminders with next_run_at <= asOf, oldest first.
	ListDue(ctx context.Context, asOf time.Time) ([]reminder.Reminder, error)
	// MarkFired advances next_run_at to *next, or deactivates the reminder
	// when next is nil (next_run_at is left untouched).
	MarkFired(ctx context.Context, id string, next *time.Time) error

	Create(ctx context.Context, r reminder.Reminder) error
	Get(ctx context.Context, id string) (reminder.Reminder, error)
	ListByOwner(ctx context.Context, ownerID string) ([]reminder.Reminder, error)
	// Update overwrites the mutable fields (label, category, recurrence,
	// next_run_at, active). Last write wins.
	Update(ctx context.Context, r reminder.Reminder) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

// toMillis and fromMillis fix the storage precision shared by every driver.
func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func normTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return fromMillis(toMillis(t))
}

// normalize returns r as a driver would read it back.
func normalize(r reminder.Reminder) reminder.Reminder {
	r.NextRunAt = normTime(r.NextRunAt)
	r.CreatedAt = normTime(r.CreatedAt)
	r.UpdatedAt = normTime(r.UpdatedAt)
	return r
}
