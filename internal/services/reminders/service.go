package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"memocare/internal/reminder"
	"memocare/internal/storage"
	logx "memocare/pkg/logx"
)

// Input is the editable part of a reminder.
type Input struct {
	Label      string
	Category   string
	Recurrence reminder.Recurrence
	// NextRunAt is required for one-time reminders. Recurring reminders
	// default to Recurrence.Next(now).
	NextRunAt *time.Time
}

type Service struct {
	store storage.Store
	log   logx.Logger
	now   func() time.Time
	loc   func() *time.Location
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone used to compute wall-clock recurrences. It is a
// func so a scheduler timezone change applies without rebuilding the service.
func WithLocation(loc func() *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func New(store storage.Store, log logx.Logger, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   log.With(logx.String("comp", "reminders")),
		now:   time.Now,
		loc:   func() *time.Location { return time.Local },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	loc := s.loc()
	if loc == nil {
		loc = time.Local
	}
	return s.now().In(loc)
}

func (s *Service) List(ctx context.Context, ownerID string) ([]reminder.Reminder, error) {
	ownerID, err := ownerOf(ownerID)
	if err != nil {
		return nil, err
	}
	return s.store.ListByOwner(ctx, ownerID)
}

func (s *Service) Add(ctx context.Context, ownerID string, in Input) (reminder.Reminder, error) {
	ownerID, err := ownerOf(ownerID)
	if err != nil {
		return reminder.Reminder{}, err
	}
	cat, err := reminder.ParseCategory(in.Category)
	if err != nil {
		return reminder.Reminder{}, err
	}
	if err := in.Recurrence.Validate(); err != nil {
		return reminder.Reminder{}, err
	}
	now := s.clock()
	next, err := reminder.ResolveNextRun(in.Recurrence, in.NextRunAt, now)
	if err != nil {
		return reminder.Reminder{}, err
	}
	r, err := reminder.New(ownerID, in.Label, cat, in.Recurrence, next, now)
	if err != nil {
		return reminder.Reminder{}, err
	}
	if err := s.store.Create(ctx, r); err != nil {
		return reminder.Reminder{}, err
	}
	s.log.Info("reminder created",
		logx.String("id", r.ID),
		logx.String("owner", ownerID),
		logx.String("recurrence", r.Recurrence.String()),
		logx.Time("next_run_at", r.NextRunAt),
	)
	return s.store.Get(ctx, r.ID)
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (reminder.Reminder, error) {
	ownerID, err := ownerOf(ownerID)
	if err != nil {
		return reminder.Reminder{}, err
	}
	r, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return reminder.Reminder{}, err
	}
	if r.OwnerID != ownerID {
		return reminder.Reminder{}, storage.ErrNotFound
	}
	return r, nil
}

// Edit replaces label, category, recurrence and next run of an owned reminder.
// The active flag is preserved.
func (s *Service) Edit(ctx context.Context, ownerID, id string, in Input) (reminder.Reminder, error) {
	cur, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return reminder.Reminder{}, err
	}
	cat, err := reminder.ParseCategory(in.Category)
	if err != nil {
		return reminder.Reminder{}, err
	}
	if err := in.Recurrence.Validate(); err != nil {
		return reminder.Reminder{}, err
	}
	next, err := reminder.ResolveNextRun(in.Recurrence, in.NextRunAt, s.clock())
	if err != nil {
		return reminder.Reminder{}, err
	}
	cur.Label = strings.TrimSpace(in.Label)
	cur.Category = cat
	cur.Recurrence = in.Recurrence.Normalize()
	cur.NextRunAt = next
	if err := s.store.Update(ctx, cur); err != nil {
		return reminder.Reminder{}, err
	}
	s.log.Info("reminder updated", logx.String("id", cur.ID), logx.String("owner", cur.OwnerID))
	return s.store.Get(ctx, cur.ID)
}

// SetActive pauses or resumes an owned reminder.
//
// Resuming a recurring reminder whose next run already passed moves it to the
// next occurrence so it does not fire immediately for a stale slot. A one-time
// reminder in the past cannot be resumed; Edit it with a new time instead.
func (s *Service) SetActive(ctx context.Context, ownerID, id string, active bool) (reminder.Reminder, error) {
	cur, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return reminder.Reminder{}, err
	}
	if !active || cur.Active {
		if cur.Active != active {
			if err := s.store.SetActive(ctx, cur.ID, active); err != nil {
				return reminder.Reminder{}, err
			}
			s.log.Info("reminder paused", logx.String("id", cur.ID), logx.String("owner", cur.OwnerID))
		}
		return s.store.Get(ctx, cur.ID)
	}

	now := s.clock()
	if cur.NextRunAt.Before(now) {
		if !cur.Recurrence.Repeats() {
			return reminder.Reminder{}, fmt.Errorf("%w: one-time reminder at %s already passed", reminder.ErrInvalid, cur.NextRunAt.Format(time.RFC3339))
		}
		cur.NextRunAt = cur.Recurrence.Next(now)
	}
	cur.Active = true
	if err := s.store.Update(ctx, cur); err != nil {
		return reminder.Reminder{}, err
	}
	s.log.Info("reminder resumed", logx.String("id", cur.ID), logx.String("owner", cur.OwnerID), logx.Time("next_run_at", cur.NextRunAt))
	return s.store.Get(ctx, cur.ID)
}

func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	cur, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, cur.ID); err != nil {
		return err
	}
	s.log.Info("reminder deleted", logx.String("id", cur.ID), logx.String("owner", cur.OwnerID))
	return nil
}

// ListDue is the operator view of what the next tick would fire. A zero asOf
// means now.
func (s *Service) ListDue(ctx context.Context, asOf time.Time) ([]reminder.Reminder, error) {
	if asOf.IsZero() {
		asOf = s.clock()
	}
	return s.store.ListDue(ctx, asOf)
}

func ownerOf(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", fmt.Errorf("%w: owner_id required", reminder.ErrInvalid)
	}
	return ownerID, nil
}

// IsNotFound and IsInvalid classify errors for the transport layers.
func IsNotFound(err error) bool { return errors.Is(err, storage.ErrNotFound) }

func IsInvalid(err error) bool { return errors.Is(err, reminder.ErrInvalid) }
