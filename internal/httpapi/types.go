package httpapi

import (
	"context"
	"time"

	"memocare/internal/eventbus"
	"memocare/internal/notify"
	"memocare/internal/reminder"
	"memocare/internal/runtime/supervisor"
	"memocare/internal/scheduler"
	"memocare/internal/services/reminders"
)

const defaultAddr = "127.0.0.1:8080"

type Config struct {
	Enabled      bool
	Addr         string
	JWTSecret    string
	OpsToken     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func needsRestart(a, b Config) bool {
	if a.Addr != b.Addr || a.JWTSecret != b.JWTSecret || a.OpsToken != b.OpsToken {
		return true
	}
	return a.ReadTimeout != b.ReadTimeout || a.WriteTimeout != b.WriteTimeout || a.IdleTimeout != b.IdleTimeout
}

// Reminders is the owner-scoped API implemented by reminders.Service.
type Reminders interface {
	List(ctx context.Context, ownerID string) ([]reminder.Reminder, error)
	Add(ctx context.Context, ownerID string, in reminders.Input) (reminder.Reminder, error)
	Get(ctx context.Context, ownerID, id string) (reminder.Reminder, error)
	Edit(ctx context.Context, ownerID, id string, in reminders.Input) (reminder.Reminder, error)
	SetActive(ctx context.Context, ownerID, id string, active bool) (reminder.Reminder, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// Scheduler is the operator view of scheduler.Service.
type Scheduler interface {
	Snapshot() scheduler.Snapshot
	Tick(ctx context.Context) (scheduler.Report, error)
}

type DeliveryStats interface {
	Stats() notify.Stats
}

// Deps are the components the routes call into. Nil fields disable the
// routes that need them.
type Deps struct {
	Reminders   Reminders
	Scheduler   Scheduler
	Delivery    DeliveryStats
	Supervisors *supervisor.Registry
	Bus         eventbus.Bus
}
