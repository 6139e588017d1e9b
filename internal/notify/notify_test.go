package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"memocare/internal/eventbus"
	"memocare/internal/reminder"
	logx "memocare/pkg/logx"
)

var firedAt = time.Date(2025, 1, 6, 9, 0, 12, 0, time.UTC)

func dueEvent(id string) reminder.DueEvent {
	return reminder.DueEvent{ID: id, OwnerID: "alice", Label: "pills", Category: reminder.CategoryMedication, FiredAt: firedAt}
}

func recv(t *testing.T, ch <-chan eventbus.Event) eventbus.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return eventbus.Event{}
	}
}

func TestLocalPublishesOnOwnerTopic(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	mine, unsub := bus.Subscribe(eventbus.OwnerTopic("alice"), 4)
	defer unsub()
	other, unsub2 := bus.Subscribe(eventbus.OwnerTopic("bob"), 4)
	defer unsub2()

	if err := NewLocal(bus).Publish(context.Background(), "alice", dueEvent("r1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ev := recv(t, mine)
	if ev.Type != EventDue || ev.Data.(reminder.DueEvent).ID != "r1" {
		t.Fatalf("event = %+v", ev)
	}
	select {
	case ev := <-other:
		t.Fatalf("bob received %+v", ev)
	default:
	}

	if err := NewLocal(nil).Publish(context.Background(), "alice", dueEvent("r1")); !errors.Is(err, ErrNoBus) {
		t.Fatalf("nil bus = %v", err)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	t.Parallel()
	var calls int
	ok := PublisherFunc(func(context.Context, string, reminder.DueEvent) error { calls++; return nil })
	boom := errors.New("boom")
	bad := PublisherFunc(func(context.Context, string, reminder.DueEvent) error { calls++; return boom })
	off := PublisherFunc(func(context.Context, string, reminder.DueEvent) error { calls++; return ErrDisabled })

	err := Fanout{bad, ok, off, nil}.Publish(context.Background(), "alice", dueEvent("r1"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want every child tried", calls)
	}
	if err := (Fanout{ok, off}).Publish(context.Background(), "alice", dueEvent("r1")); err != nil {
		t.Fatalf("disabled child should be skipped: %v", err)
	}
}

type fakeRedisPub struct {
	mu   sync.Mutex
	sent map[string]string
}

func (f *fakeRedisPub) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[channel] = string(message.([]byte))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedisPub) PSubscribe(context.Context, ...string) *redis.PubSub { return nil }

func TestRedisPublishAndRelay(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(eventbus.OwnerTopic("alice"), 4)
	defer unsub()

	rdb := &fakeRedisPub{sent: map[string]string{}}
	r := NewRedis(rdb, "", bus, logx.Nop())
	if err := r.Publish(context.Background(), "alice", dueEvent("r1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	payload, ok := rdb.sent[DefaultChannelPrefix+"alice"]
	if !ok {
		t.Fatalf("nothing published: %v", rdb.sent)
	}
	var decoded reminder.DueEvent
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil || decoded.ID != "r1" {
		t.Fatalf("payload = %s (%v)", payload, err)
	}

	// What Run does with each received message.
	r.handle(&redis.Message{Channel: DefaultChannelPrefix + "alice", Payload: payload})
	r.handle(&redis.Message{Channel: DefaultChannelPrefix + "alice", Payload: "{not json"})
	r.handle(&redis.Message{Channel: "elsewhere", Payload: payload})

	ev := recv(t, ch)
	if got := ev.Data.(reminder.DueEvent); got.ID != "r1" || !got.FiredAt.Equal(firedAt) {
		t.Fatalf("relayed = %+v", got)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event %+v", ev)
	default:
	}
}

type fakeSink struct {
	name string

	mu    sync.Mutex
	fails int
	got   []string
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Send(_ context.Context, address string, ev reminder.DueEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("temporary")
	}
	f.got = append(f.got, address+":"+ev.ID)
	return nil
}

func (f *fakeSink) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       1,
		QueueSize:     8,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
		DedupWindow:   time.Minute,
	}
}

func waitType(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	for {
		ev := recv(t, ch)
		if ev.Type == typ {
			return ev
		}
	}
}

func TestDeliverySendsWithRetryAndDedups(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe("", 64)
	defer unsub()

	tg := &fakeSink{name: SinkTelegram, fails: 1}
	d := NewDelivery(testConfig(), []Sink{tg}, logx.Nop(), bus, nil)
	d.SetRecipients(map[string][]Recipient{"alice": RecipientsFor([]int64{100}, nil)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop(context.Background())

	if err := d.Publish(ctx, "alice", dueEvent("r1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitType(t, events, EventSent)
	if got := tg.sent(); len(got) != 1 || got[0] != "100:r1" {
		t.Fatalf("sent = %v", got)
	}

	// Same reminder, same minute: suppressed.
	again := dueEvent("r1")
	again.FiredAt = firedAt.Add(30 * time.Second)
	if err := d.Publish(ctx, "alice", again); err != nil {
		t.Fatalf("Publish again: %v", err)
	}
	waitType(t, events, EventDeduped)

	st := d.Stats()
	if st.Sent != 1 || st.Deduped != 1 || st.Queued != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestDeliveryGivesUpAfterRetries(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe("", 64)
	defer unsub()

	mail := &fakeSink{name: SinkEmail, fails: 10}
	d := NewDelivery(testConfig(), []Sink{mail}, logx.Nop(), bus, nil)
	d.SetRecipients(map[string][]Recipient{"alice": RecipientsFor(nil, []string{"a@example.com"})})
	d.Start(context.Background())
	defer d.Stop(context.Background())

	if err := d.Publish(context.Background(), "alice", dueEvent("r1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ev := waitType(t, events, EventFailed)
	if de := ev.Data.(DeliveryEvent); de.Recipient != "a@example.com" || de.Error == "" {
		t.Fatalf("failed event = %+v", de)
	}
	mail.mu.Lock()
	left := mail.fails
	mail.mu.Unlock()
	if left != 7 {
		t.Fatalf("attempts = %d, want 3", 10-left)
	}
}

func TestDeliveryQueueFull(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.QueueSize = 1
	cfg.DedupWindow = 0
	d := NewDelivery(cfg, []Sink{&fakeSink{name: SinkTelegram}}, logx.Nop(), nil, nil)
	d.SetRecipients(map[string][]Recipient{"alice": RecipientsFor([]int64{1, 2}, nil)})

	// Accepting but without workers, so the queue never drains.
	d.mu.Lock()
	d.queue = make(chan job, 1)
	d.accepting = true
	d.mu.Unlock()

	err := d.Publish(context.Background(), "alice", dueEvent("r1"))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if st := d.Stats(); st.Queued != 1 || st.Dropped != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestDeliveryDisabledAndStopped(t *testing.T) {
	t.Parallel()
	d := NewDelivery(Config{}, nil, logx.Nop(), nil, nil)
	if err := d.Publish(context.Background(), "alice", dueEvent("r1")); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled = %v", err)
	}
	d.Apply(testConfig())
	if err := d.Publish(context.Background(), "alice", dueEvent("r1")); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started = %v", err)
	}
}

type memDedup struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func (s *memDedup) PutDedup(_ context.Context, key string, until time.Time) error {
	s.mu.Lock()
	s.m[key] = until
	s.mu.Unlock()
	return nil
}

func (s *memDedup) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.m[key]
	return u, ok, nil
}

func TestDeliveryPersistentDedup(t *testing.T) {
	t.Parallel()
	store := &memDedup{m: map[string]time.Time{}}
	rc := Recipient{Sink: SinkTelegram, Address: "100"}
	store.m[dedupKey(rc, dueEvent("r1"))] = time.Now().Add(time.Minute)

	cfg := testConfig()
	cfg.PersistDedup = true
	tg := &fakeSink{name: SinkTelegram}
	d := NewDelivery(cfg, []Sink{tg}, logx.Nop(), nil, store)
	d.SetRecipients(map[string][]Recipient{"alice": {rc}})
	d.Start(context.Background())
	defer d.Stop(context.Background())

	if err := d.Publish(context.Background(), "alice", dueEvent("r1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if st := d.Stats(); st.Deduped != 1 || st.Queued != 0 {
		t.Fatalf("stats = %+v, want persisted key to suppress", st)
	}
}

func TestDedupKey(t *testing.T) {
	t.Parallel()
	rc := Recipient{Sink: SinkTelegram, Address: "100"}
	a := dedupKey(rc, dueEvent("r1"))
	if a != "telegram|100|r1|2025-01-06T09:00" {
		t.Fatalf("key = %q", a)
	}
	later := dueEvent("r1")
	later.FiredAt = firedAt.Add(time.Minute)
	if dedupKey(rc, later) == a {
		t.Fatal("next minute must not share the key")
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d delay %v out of bounds", attempt, d)
		}
	}
}

type fakeText struct {
	chat int64
	text string
}

func (f *fakeText) SendText(_ context.Context, chatID int64, text string) error {
	f.chat, f.text = chatID, text
	return nil
}

type fakeMail struct{ to, subject, body string }

func (f *fakeMail) Send(_ context.Context, to, subject, body string) error {
	f.to, f.subject, f.body = to, subject, body
	return nil
}

func TestSinks(t *testing.T) {
	t.Parallel()
	ft := &fakeText{}
	if err := NewTelegramSink(ft).Send(context.Background(), "-100123", dueEvent("r1")); err != nil {
		t.Fatalf("telegram: %v", err)
	}
	if ft.chat != -100123 || ft.text != "Reminder (medication): pills" {
		t.Fatalf("telegram sent %+v", ft)
	}
	if err := NewTelegramSink(ft).Send(context.Background(), "abc", dueEvent("r1")); err == nil {
		t.Fatal("bad chat id should fail")
	}

	fm := &fakeMail{}
	if err := NewMailSink(fm).Send(context.Background(), "a@example.com", dueEvent("r1")); err != nil {
		t.Fatalf("mail: %v", err)
	}
	if fm.to != "a@example.com" || fm.subject != "Reminder: pills" || !strings.Contains(fm.body, "pills") {
		t.Fatalf("mail sent %+v", fm)
	}
}
