package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"memocare/internal/eventbus"
	"memocare/internal/reminder"
	logx "memocare/pkg/logx"
)

// Tick runs one evaluation: read due reminders once, then advance or
// deactivate each and publish its DueEvent.
//
// The returned error is non-nil only when the tick as a whole did not run
// (ErrTickInProgress, ErrLockHeld, lock failures, ErrStoreUnavailable).
// Per-item failures are counted in the Report.
func (s *Service) Tick(ctx context.Context) (Report, error) {
	if !s.tickMu.TryLock() {
		s.countSkip()
		return Report{}, ErrTickInProgress
	}
	defer s.tickMu.Unlock()

	unlock, ok, err := s.locker.TryLock(ctx)
	if err != nil {
		err = fmt.Errorf("scheduler: tick lock: %w", err)
		s.record(nil, err)
		return Report{}, err
	}
	if !ok {
		s.countSkip()
		return Report{}, ErrLockHeld
	}
	defer unlock()

	start := time.Now()
	now := s.clock().In(s.Location())
	rep := Report{At: now}

	items, err := s.store.ListDue(ctx, now)
	if err != nil {
		rep.Took = time.Since(start)
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		s.record(&rep, err)
		return rep, err
	}
	rep.Due = len(items)

	for _, it := range items {
		deactivated, err := s.fire(ctx, it, now)
		var ie *ItemError
		if errors.As(err, &ie) {
			rep.Failed++
			rep.Errors = append(rep.Errors, err)
			s.log.Warn("reminder not fired", logx.String("reminder_id", it.ID), logx.String("op", ie.Op), logx.Err(ie.Err))
			continue
		}
		rep.Fired++
		if deactivated {
			rep.Deactivated++
		} else {
			rep.Rescheduled++
		}
		if err != nil {
			rep.PublishFailed++
			rep.Errors = append(rep.Errors, err)
			s.log.Warn("reminder fired but not delivered",
				logx.String("reminder_id", it.ID), logx.String("owner_id", it.OwnerID), logx.Err(err))
		}
	}

	rep.Took = time.Since(start)
	s.record(&rep, nil)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventTick, Time: time.Now(), Data: rep})
	}
	return rep, nil
}

// fire persists the outcome for one reminder and then publishes it.
// It returns an *ItemError when nothing was published, or a *PublishError
// when the reminder advanced but the event was lost.
func (s *Service) fire(ctx context.Context, r reminder.Reminder, now time.Time) (deactivated bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("reminder processing panicked",
				logx.String("reminder_id", r.ID), logx.Any("panic", p), logx.Stack(string(debug.Stack())))
			err = &ItemError{ReminderID: r.ID, Op: "panic", Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	var next *time.Time
	if r.Recurrence.Repeats() {
		if !r.Recurrence.Known() {
			s.log.Debug("unknown recurrence kind; falling back to +1 day",
				logx.String("reminder_id", r.ID), logx.String("kind", string(r.Recurrence.Kind)))
		}
		n := r.Recurrence.Next(now)
		next = &n
	}

	if err := s.store.MarkFired(ctx, r.ID, next); err != nil {
		return false, &ItemError{ReminderID: r.ID, Op: "mark_fired", Err: err}
	}
	if err := s.pub.Publish(ctx, r.OwnerID, r.DueEvent(now)); err != nil {
		return next == nil, &PublishError{ReminderID: r.ID, OwnerID: r.OwnerID, Err: err}
	}
	return next == nil, nil
}

func isSkip(err error) bool {
	return errors.Is(err, ErrTickInProgress) || errors.Is(err, ErrLockHeld)
}
