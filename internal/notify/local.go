package notify

import (
	"context"
	"time"

	"memocare/internal/eventbus"
	"memocare/internal/reminder"
)

// Local publishes due events on the in-process bus.
type Local struct {
	bus eventbus.Bus
}

func NewLocal(bus eventbus.Bus) *Local { return &Local{bus: bus} }

func (l *Local) Publish(ctx context.Context, ownerID string, ev reminder.DueEvent) error {
	if l == nil || l.bus == nil {
		return ErrNoBus
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	publishDue(l.bus, ownerID, ev)
	return nil
}

func publishDue(bus eventbus.Bus, ownerID string, ev reminder.DueEvent) {
	bus.Publish(eventbus.Event{
		Topic: eventbus.OwnerTopic(ownerID),
		Type:  EventDue,
		Time:  time.Now(),
		Data:  ev,
	})
}
