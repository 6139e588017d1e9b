package scheduler

import (
	"context"
	"time"

	"memocare/internal/lock"
	"memocare/internal/reminder"
)

// DefaultTick fires once per minute.
const DefaultTick = "* * * * *"

// EventTick is the bus event type carrying a Report after every tick.
const EventTick = "scheduler.tick"

type Config struct {
	Enabled  bool
	Tick     string // cron expression or interval, see ParseTick
	Timezone string // IANA name; empty means time.Local
}

// Store is the part of the reminder store the scheduler needs.
type Store interface {
	ListDue(ctx context.Context, asOf time.Time) ([]reminder.Reminder, error)
	MarkFired(ctx context.Context, id string, next *time.Time) error
}

// Report summarizes one tick.
type Report struct {
	At            time.Time     `json:"at"`
	Due           int           `json:"due"`
	Fired         int           `json:"fired"`
	Rescheduled   int           `json:"rescheduled"`
	Deactivated   int           `json:"deactivated"`
	Failed        int           `json:"failed"`
	PublishFailed int           `json:"publish_failed"`
	Took          time.Duration `json:"took"`

	// Errors holds the *ItemError and *PublishError values of this tick.
	Errors []error `json:"-"`
}

type Totals struct {
	Ticks         uint64 `json:"ticks"`
	Skipped       uint64 `json:"skipped"`
	Errors        uint64 `json:"errors"`
	Fired         uint64 `json:"fired"`
	Failed        uint64 `json:"failed"`
	PublishFailed uint64 `json:"publish_failed"`
}

type Snapshot struct {
	Enabled   bool      `json:"enabled"`
	Running   bool      `json:"running"`
	Timezone  string    `json:"timezone"`
	Tick      string    `json:"tick"`
	Next      time.Time `json:"next,omitempty"`
	Prev      time.Time `json:"prev,omitempty"`
	Last      *Report   `json:"last,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Totals    Totals    `json:"totals"`
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLocker makes every tick take l first; a held lock skips the tick.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}
