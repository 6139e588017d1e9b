package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"memocare/internal/eventbus"
	"memocare/internal/reminder"
	logx "memocare/pkg/logx"
)

const DefaultChannelPrefix = "memocare:due:"

// redisPubSub is the subset of *redis.Client the relay uses.
type redisPubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	PSubscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Redis relays due events between instances. Publish sends to
// "<prefix><ownerID>"; Run receives every instance's events (including this
// one's) and republishes them on the local bus.
//
// Use it instead of Local, not next to it, or local subscribers see each
// event twice.
type Redis struct {
	rdb    redisPubSub
	prefix string
	bus    eventbus.Bus
	log    logx.Logger
}

func NewRedis(rdb redisPubSub, prefix string, bus eventbus.Bus, log logx.Logger) *Redis {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultChannelPrefix
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Redis{rdb: rdb, prefix: prefix, bus: bus, log: log}
}

func (r *Redis) Publish(ctx context.Context, ownerID string, ev reminder.DueEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.prefix+ownerID, b).Err()
}

// Run blocks until ctx is done or the subscription fails.
func (r *Redis) Run(ctx context.Context) error {
	if r.bus == nil {
		return ErrNoBus
	}
	ps := r.rdb.PSubscribe(ctx, r.prefix+"*")
	defer ps.Close()

	// Wait for the subscription confirmation so connection errors surface here.
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	r.log.Info("redis relay subscribed", logx.String("pattern", r.prefix+"*"))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis relay channel closed")
			}
			r.handle(msg)
		}
	}
}

func (r *Redis) handle(msg *redis.Message) {
	if msg == nil || !strings.HasPrefix(msg.Channel, r.prefix) {
		return
	}
	ownerID := strings.TrimPrefix(msg.Channel, r.prefix)
	var ev reminder.DueEvent
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		r.log.Warn("redis relay: bad payload", logx.String("channel", msg.Channel), logx.Err(err))
		return
	}
	publishDue(r.bus, ownerID, ev)
}
