package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"memocare/internal/reminder"
)

// Memory is a Store backed by maps. The zero value is not usable; use NewMemory.
type Memory struct {
	mu        sync.RWMutex
	reminders map[string]reminder.Reminder
	dedup     map[string]int64 // unix milli

	dedupWrites int
	pruneEvery  int
}

func NewMemory() *Memory {
	return &Memory{
		reminders:  map[string]reminder.Reminder{},
		dedup:      map[string]int64{},
		pruneEvery: 500,
	}
}

func (m *Memory) ListDue(_ context.Context, asOf time.Time) ([]reminder.Reminder, error) {
	cut := toMillis(asOf)
	m.mu.RLock()
	out := make([]reminder.Reminder, 0, 8)
	for _, r := range m.reminders {
		if r.Active && toMillis(r.NextRunAt) <= cut {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sortDue(out)
	return out, nil
}

func (m *Memory) MarkFired(_ context.Context, id string, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return ErrNotFound
	}
	if next != nil {
		r.NextRunAt = normTime(*next)
	} else {
		r.Active = false
	}
	r.UpdatedAt = normTime(time.Now())
	m.reminders[id] = r
	return nil
}

func (m *Memory) Create(_ context.Context, r reminder.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reminders[r.ID]; exists {
		return fmt.Errorf("%w: duplicate id %q", ErrInvalid, r.ID)
	}
	m.reminders[r.ID] = normalize(r)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (reminder.Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reminders[id]
	if !ok {
		return reminder.Reminder{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListByOwner(_ context.Context, ownerID string) ([]reminder.Reminder, error) {
	m.mu.RLock()
	out := make([]reminder.Reminder, 0, 8)
	for _, r := range m.reminders {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sortDue(out)
	return out, nil
}

func (m *Memory) Update(_ context.Context, r reminder.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.reminders[r.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Label = r.Label
	cur.Category = r.Category
	cur.Recurrence = r.Recurrence
	cur.NextRunAt = normTime(r.NextRunAt)
	cur.Active = r.Active
	cur.UpdatedAt = normTime(time.Now())
	m.reminders[r.ID] = cur
	return nil
}

func (m *Memory) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return ErrNotFound
	}
	r.Active = active
	r.UpdatedAt = normTime(time.Now())
	m.reminders[id] = r
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reminders[id]; !ok {
		return ErrNotFound
	}
	delete(m.reminders, id)
	return nil
}

func (m *Memory) PutDedup(_ context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dedup[key] = toMillis(until)
	m.dedupWrites++
	if m.dedupWrites%m.pruneEvery == 0 {
		now := toMillis(time.Now())
		for k, v := range m.dedup {
			if v < now {
				delete(m.dedup, k)
			}
		}
	}
	return nil
}

func (m *Memory) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return fromMillis(ms), true, nil
}

func (m *Memory) Close() error { return nil }

func sortDue(rs []reminder.Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].NextRunAt.Equal(rs[j].NextRunAt) {
			return rs[i].NextRunAt.Before(rs[j].NextRunAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
