package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrInvalid marks input validation failures.
var ErrInvalid = errors.New("invalid reminder")

const maxLabelRunes = 200

type Category string

const (
	CategoryMedication  Category = "medication"
	CategoryMeal        Category = "meal"
	CategoryAppointment Category = "appointment"
	CategoryTask        Category = "task"
	CategoryOther       Category = "other"
)

// ParseCategory accepts the known categories case-insensitively.
// An empty value maps to CategoryOther.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case "":
		return CategoryOther, nil
	case CategoryMedication, CategoryMeal, CategoryAppointment, CategoryTask, CategoryOther:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalid, s)
	}
}

// Reminder is a persisted, owner-scoped scheduled item.
type Reminder struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Label      string     `json:"label"`
	Category   Category   `json:"category"`
	Recurrence Recurrence `json:"recurrence"`
	NextRunAt  time.Time  `json:"next_run_at"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// New builds an active reminder with a fresh id.
// nextRunAt must already be resolved (see ResolveNextRun).
func New(ownerID, label string, cat Category, rec Recurrence, nextRunAt, now time.Time) (Reminder, error) {
	r := Reminder{
		ID:         uuid.NewString(),
		OwnerID:    strings.TrimSpace(ownerID),
		Label:      strings.TrimSpace(label),
		Category:   cat,
		Recurrence: rec.Normalize(),
		NextRunAt:  nextRunAt,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.Validate(); err != nil {
		return Reminder{}, err
	}
	return r, nil
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id required", ErrInvalid)
	}
	if strings.TrimSpace(r.Label) == "" {
		return fmt.Errorf("%w: label required", ErrInvalid)
	}
	if utf8.RuneCountInString(r.Label) > maxLabelRunes {
		return fmt.Errorf("%w: label longer than %d characters", ErrInvalid, maxLabelRunes)
	}
	if _, err := ParseCategory(string(r.Category)); err != nil {
		return err
	}
	if err := r.Recurrence.Validate(); err != nil {
		return err
	}
	if r.NextRunAt.IsZero() {
		return fmt.Errorf("%w: next_run_at required", ErrInvalid)
	}
	return nil
}

// ResolveNextRun picks the first trigger for a new or edited reminder.
//
// A requested time must not lie in the past. One-time reminders require one;
// recurring reminders default to rec.Next(now).
func ResolveNextRun(rec Recurrence, requested *time.Time, now time.Time) (time.Time, error) {
	if requested != nil && !requested.IsZero() {
		if requested.Before(now) {
			return time.Time{}, fmt.Errorf("%w: next_run_at %s is in the past", ErrInvalid, requested.Format(time.RFC3339))
		}
		return *requested, nil
	}
	if !rec.Repeats() {
		return time.Time{}, fmt.Errorf("%w: next_run_at required for one-time reminders", ErrInvalid)
	}
	return rec.Next(now), nil
}

// DueEvent is published when a reminder fires.
type DueEvent struct {
	ID       string    `json:"id"`
	OwnerID  string    `json:"owner_id"`
	Label    string    `json:"label"`
	Category Category  `json:"category"`
	FiredAt  time.Time `json:"fired_at"`
}

func (r Reminder) DueEvent(firedAt time.Time) DueEvent {
	return DueEvent{
		ID:       r.ID,
		OwnerID:  r.OwnerID,
		Label:    r.Label,
		Category: r.Category,
		FiredAt:  firedAt,
	}
}

// Text renders the event for human-facing sinks (chat, email).
func (e DueEvent) Text() string {
	return fmt.Sprintf("Reminder (%s): %s", e.Category, e.Label)
}
