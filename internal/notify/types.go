package notify

import (
	"context"
	"errors"
	"time"

	"memocare/internal/reminder"
)

// Publisher fans a due event out to everything subscribed to ownerID.
type Publisher interface {
	Publish(ctx context.Context, ownerID string, ev reminder.DueEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ownerID string, ev reminder.DueEvent) error

func (f PublisherFunc) Publish(ctx context.Context, ownerID string, ev reminder.DueEvent) error {
	return f(ctx, ownerID, ev)
}

// EventDue is the bus event type carrying a reminder.DueEvent.
const EventDue = "reminder.due"

// Bus event types emitted by Delivery.
const (
	EventQueued  = "notify.queued"
	EventDeduped = "notify.deduped"
	EventDropped = "notify.dropped"
	EventSent    = "notify.sent"
	EventFailed  = "notify.failed"
)

var (
	ErrDisabled  = errors.New("notify: delivery disabled")
	ErrQueueFull = errors.New("notify: queue full")
	ErrStopped   = errors.New("notify: delivery stopped")
	ErrNoBus     = errors.New("notify: no event bus")
)

// Config controls the Delivery pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

// Recipient is one external destination of an owner's reminders.
type Recipient struct {
	Sink    string // sink name, e.g. "telegram" or "email"
	Address string // chat id or mail address
}

// DeliveryEvent is the Data of notify.* bus events.
type DeliveryEvent struct {
	Sink       string    `json:"sink"`
	Recipient  string    `json:"recipient"`
	OwnerID    string    `json:"owner_id"`
	ReminderID string    `json:"reminder_id"`
	Key        string    `json:"key"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}

// Stats are cumulative Delivery counters.
type Stats struct {
	Running bool   `json:"running"`
	Queued  uint64 `json:"queued"`
	Deduped uint64 `json:"deduped"`
	Dropped uint64 `json:"dropped"`
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Backlog int    `json:"backlog"`
}
