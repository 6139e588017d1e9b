package notify

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"memocare/internal/eventbus"
	"memocare/internal/reminder"
	rtsup "memocare/internal/runtime/supervisor"
	logx "memocare/pkg/logx"
)

// Sink sends one reminder to one external address.
type Sink interface {
	Name() string
	Send(ctx context.Context, address string, ev reminder.DueEvent) error
}

// DedupStore persists suppression windows across restarts.
type DedupStore interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
}

type job struct {
	sink    string
	address string
	owner   string
	ev      reminder.DueEvent
	// dedupKey is computed at enqueue time for cheap per-worker processing.
	dedupKey string
}

type dedupWrite struct {
	key   string
	until time.Time
}

// Delivery implements Publisher as an async pipeline to external sinks:
// queue + worker pool + rate limit + retry + dedup.
//
// It is safe for concurrent use.
type Delivery struct {
	mu sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	store DedupStore
	sinks map[string]Sink

	cfg        Config
	limiter    *rate.Limiter
	recipients map[string][]Recipient

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	// In-memory dedup cache: key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	// Optional persistent dedup writes (best-effort)
	persistCh chan dedupWrite

	queued, deduped, dropped, sent, failed atomic.Uint64
}

func NewDelivery(cfg Config, sinks []Sink, log logx.Logger, bus eventbus.Bus, store DedupStore) *Delivery {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Delivery{
		log:   log,
		bus:   bus,
		store: store,
		sinks: map[string]Sink{},
		dedup: map[string]time.Time{},
	}
	for _, s := range sinks {
		if s != nil {
			d.sinks[s.Name()] = s
		}
	}
	d.applyLocked(cfg)
	return d
}

// Supervisor returns the pipeline's supervisor (nil if not started).
func (d *Delivery) Supervisor() *rtsup.Supervisor {
	d.mu.Lock()
	sup := d.sup
	d.mu.Unlock()
	return sup
}

func (d *Delivery) Enabled() bool {
	d.mu.Lock()
	en := d.cfg.Enabled
	d.mu.Unlock()
	return en
}

// Apply swaps tunables. Workers and QueueSize take effect on the next Start.
func (d *Delivery) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Delivery) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}

	d.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// SetRecipients replaces the owner -> destinations table.
func (d *Delivery) SetRecipients(m map[string][]Recipient) {
	cp := make(map[string][]Recipient, len(m))
	for k, v := range m {
		cp[k] = append([]Recipient(nil), v...)
	}
	d.mu.Lock()
	d.recipients = cp
	d.mu.Unlock()
}

func (d *Delivery) Start(ctx context.Context) {
	// Start is idempotent.
	d.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if d.stopDone != nil {
		done := d.stopDone
		d.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		d.mu.Lock()
	}
	if d.queue != nil || !d.cfg.Enabled {
		d.mu.Unlock()
		return
	}

	d.queue = make(chan job, d.cfg.QueueSize)
	d.accepting = true
	workers := d.cfg.Workers

	if d.cfg.PersistDedup && d.store != nil {
		d.persistCh = make(chan dedupWrite, 1024)
	}

	d.sup = rtsup.New(ctx,
		rtsup.WithLogger(d.log),
		// Delivery failures must not take down the app.
		rtsup.WithCancelOnError(false),
	)
	sup := d.sup
	q := d.queue
	pch := d.persistCh
	st := d.store
	d.mu.Unlock()

	exited := func(c context.Context, what string) error {
		// Clean exits happen on shutdown.
		d.mu.Lock()
		stopping := d.stopDone != nil
		d.mu.Unlock()
		if stopping {
			return context.Canceled
		}
		if c.Err() != nil {
			return c.Err()
		}
		return errors.New(what + " exited unexpectedly")
	}

	if pch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			d.persistLoop(c, pch, st)
			return exited(c, "dedup persist loop")
		}, rtsup.WithPublishFirstError(true))
	}
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			d.workerLoop(c, q)
			return exited(c, "delivery worker")
		}, rtsup.WithPublishFirstError(true))
	}
	d.log.Info("delivery started", logx.Int("workers", workers), logx.Int("sinks", len(d.sinks)))
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (d *Delivery) Stop(ctx context.Context) {
	d.mu.Lock()
	q := d.queue
	pch := d.persistCh
	sup := d.sup
	if q == nil {
		d.mu.Unlock()
		return
	}
	if d.stopDone != nil {
		done := d.stopDone
		d.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	d.stopDone = done
	d.accepting = false
	d.mu.Unlock()

	// Shutdown happens asynchronously so callers can time out without leaking state.
	go func() {
		defer close(done)
		// Wait for in-flight enqueues, then close the queue so workers drain it.
		d.sendWG.Wait()
		if pch != nil {
			close(pch)
		}
		close(q)
		_ = sup.Wait(context.Background())

		d.mu.Lock()
		d.queue = nil
		d.persistCh = nil
		d.stopDone = nil
		d.sup = nil
		d.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Force-stop internal loops.
		sup.Cancel()
	}
}

// Publish enqueues one job per recipient of ownerID. Owners without
// recipients are a no-op. Jobs inside the dedup window are skipped.
func (d *Delivery) Publish(ctx context.Context, ownerID string, ev reminder.DueEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	if !d.cfg.Enabled {
		d.mu.Unlock()
		return ErrDisabled
	}
	if !d.accepting || d.queue == nil {
		d.mu.Unlock()
		return ErrStopped
	}
	q := d.queue
	dedupWindow := d.cfg.DedupWindow
	dedupMax := d.cfg.DedupMaxEntries
	persist := d.cfg.PersistDedup
	recips := d.recipients[ownerID]
	d.sendWG.Add(1)
	d.mu.Unlock()
	defer d.sendWG.Done()

	var errs []error
	for _, rc := range recips {
		if _, ok := d.sinks[rc.Sink]; !ok {
			d.log.Debug("no sink for recipient", logx.String("sink", rc.Sink), logx.String("owner_id", ownerID))
			continue
		}
		j := job{sink: rc.Sink, address: rc.Address, owner: ownerID, ev: ev, dedupKey: dedupKey(rc, ev)}

		if dedupWindow > 0 && !d.dedupAllow(ctx, j.dedupKey, dedupWindow, dedupMax, persist) {
			d.deduped.Add(1)
			d.emit(EventDeduped, j, nil)
			continue
		}

		select {
		case q <- j:
			d.queued.Add(1)
			d.emit(EventQueued, j, nil)
		default:
			d.dropped.Add(1)
			d.emit(EventDropped, j, ErrQueueFull)
			errs = append(errs, fmt.Errorf("%s %s: %w", rc.Sink, rc.Address, ErrQueueFull))
		}
	}
	return errors.Join(errs...)
}

func (d *Delivery) Stats() Stats {
	d.mu.Lock()
	running := d.queue != nil && d.accepting
	backlog := 0
	if d.queue != nil {
		backlog = len(d.queue)
	}
	d.mu.Unlock()
	return Stats{
		Running: running,
		Queued:  d.queued.Load(),
		Deduped: d.deduped.Load(),
		Dropped: d.dropped.Load(),
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Backlog: backlog,
	}
}

func (d *Delivery) emit(typ string, j job, err error) {
	if d.bus == nil {
		return
	}
	now := time.Now()
	ev := DeliveryEvent{
		Sink:       j.sink,
		Recipient:  j.address,
		OwnerID:    j.owner,
		ReminderID: j.ev.ID,
		Key:        j.dedupKey,
		At:         now,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func (d *Delivery) persistLoop(ctx context.Context, ch <-chan dedupWrite, st DedupStore) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			if err := st.PutDedup(cctx, w.key, w.until); err != nil {
				d.log.Debug("dedup persist failed", logx.Err(err))
			}
			cancel()
		}
	}
}

func (d *Delivery) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			d.sendWithRetry(ctx, j)
		}
	}
}

func (d *Delivery) sendWithRetry(runCtx context.Context, j job) {
	d.mu.Lock()
	cfg := d.cfg
	lim := d.limiter
	d.mu.Unlock()

	sink := d.sinks[j.sink]
	if sink == nil {
		return
	}
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(runCtx); err != nil {
			return
		}

		// Bound per-send call so a hung sink cannot stall a worker.
		callCtx, cancel := context.WithTimeout(runCtx, 10*time.Second)
		err := sink.Send(callCtx, j.address, j.ev)
		cancel()
		if err == nil {
			d.sent.Add(1)
			d.emit(EventSent, j, nil)
			return
		}
		lastErr = err
		d.log.Debug("delivery send failed",
			logx.String("sink", j.sink), logx.String("reminder_id", j.ev.ID),
			logx.Int("attempt", attempt), logx.Int("max", maxAttempts), logx.Err(err))

		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-runCtx.Done():
			t.Stop()
			return
		}
	}

	d.failed.Add(1)
	d.emit(EventFailed, j, lastErr)
	d.log.Warn("delivery failed",
		logx.String("sink", j.sink), logx.String("owner_id", j.owner),
		logx.String("reminder_id", j.ev.ID), logx.Err(lastErr))
}

// dedupKey identifies one firing of one reminder to one destination.
// The firing instant is truncated to the minute.
func dedupKey(rc Recipient, ev reminder.DueEvent) string {
	return strings.Join([]string{
		rc.Sink,
		rc.Address,
		ev.ID,
		ev.FiredAt.UTC().Truncate(time.Minute).Format("2006-01-02T15:04"),
	}, "|")
}

func (d *Delivery) dedupAllow(ctx context.Context, key string, window time.Duration, max int, persist bool) bool {
	now := time.Now()

	// 1) In-memory check.
	d.dmu.Lock()
	if until, ok := d.dedup[key]; ok && now.Before(until) {
		d.dmu.Unlock()
		return false
	}
	d.dmu.Unlock()

	// 2) Persistent check (best-effort) for cross-restart dedup.
	if persist && d.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 25*time.Millisecond)
		until, ok, err := d.store.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			d.dmu.Lock()
			d.dedup[key] = until
			d.dmu.Unlock()
			return false
		}
	}

	// 3) Allow and set new window.
	until := now.Add(window)
	d.dmu.Lock()
	d.dedup[key] = until
	for k, u := range d.dedup {
		if !now.Before(u) {
			delete(d.dedup, k)
		}
	}
	// Evict earliest expiries until within cap.
	for max > 0 && len(d.dedup) > max {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range d.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(d.dedup, minKey)
	}
	d.dmu.Unlock()

	// 4) Persist new suppress-until asynchronously (best-effort).
	d.mu.Lock()
	pch := d.persistCh
	d.mu.Unlock()
	if persist && pch != nil {
		select {
		case pch <- dedupWrite{key: key, until: until}:
		default:
		}
	}
	return true
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1) with
// 0.7..1.3 jitter, capped at RetryMaxDelay.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	return min(d, cfg.RetryMaxDelay)
}
