package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable aborts a tick when due items cannot be read.
	// Nothing is fired; the next tick retries.
	ErrStoreUnavailable = errors.New("scheduler: store unavailable")
	// ErrTickInProgress is returned to a caller that races a running tick.
	ErrTickInProgress = errors.New("scheduler: tick in progress")
	// ErrLockHeld means another instance holds the tick lock.
	ErrLockHeld = errors.New("scheduler: tick lock held elsewhere")
)

// ItemError is a failure to process one reminder. Other reminders in the
// same tick are unaffected and the reminder was not published.
type ItemError struct {
	ReminderID string
	Op         string // "mark_fired" or "panic"
	Err        error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("scheduler: reminder %s: %s: %v", e.ReminderID, e.Op, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// PublishError is a lost notification. The reminder was already advanced.
type PublishError struct {
	ReminderID string
	OwnerID    string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("scheduler: publish reminder %s to owner %s: %v", e.ReminderID, e.OwnerID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
