package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"memocare/internal/eventbus"
	"memocare/internal/lock"
	"memocare/internal/notify"
	logx "memocare/pkg/logx"
)

// Service owns the tick cron and runs ticks against the store.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	loc     *time.Location
	tick    ParsedTick
	c       *cron.Cron
	entryID cron.EntryID
	parent  context.Context
	cancel  context.CancelFunc

	// tickMu keeps ticks exclusive; TryLock turns a race into ErrTickInProgress.
	tickMu sync.Mutex

	store  Store
	pub    notify.Publisher
	log    logx.Logger
	bus    eventbus.Bus
	clock  func() time.Time
	locker lock.Locker

	smu     sync.Mutex
	last    *Report
	lastErr string
	totals  Totals
}

func New(cfg Config, store Store, pub notify.Publisher, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:    cfg,
		store:  store,
		pub:    pub,
		log:    log,
		bus:    bus,
		clock:  time.Now,
		locker: lock.Noop{},
	}
	for _, o := range opts {
		o(s)
	}
	s.loc = s.loadLocation(cfg.Timezone)
	s.tick = s.parseTick(cfg.Tick)
	return s
}

// Enabled reports the current config flag. Safe to call while Apply runs.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Location is the timezone ticks evaluate recurrences in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Apply swaps config. Enabling starts the cron (once Start has provided a
// parent context), disabling stops it, and a new tick or timezone restarts it.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	oldTick := strings.TrimSpace(s.cfg.Tick)
	s.cfg = cfg
	s.loc = s.loadLocation(cfg.Timezone)
	s.tick = s.parseTick(cfg.Tick)

	switch {
	case s.c == nil && cfg.Enabled && s.parent != nil:
		s.startLocked()
	case s.c != nil && !cfg.Enabled:
		s.stopLocked()
		s.log.Info("service disabled")
	case s.c != nil && (oldTZ != strings.TrimSpace(cfg.Timezone) || oldTick != strings.TrimSpace(cfg.Tick)):
		s.stopLocked()
		s.startLocked()
		s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.String("tick", s.tick.CronSpec()))
	}
}

// Start starts the tick cron if enabled. Ticks inherit ctx values but not its
// cancellation: a tick in flight when ctx ends still finishes, and only Stop
// (past its deadline) aborts it.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parent = ctx
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.startLocked()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.String("tick", s.tick.CronSpec()))
}

func (s *Service) startLocked() {
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.WithoutCancel(s.parent))
	id, err := c.AddFunc(s.tick.CronSpec(), func() { s.runScheduled(ctx) })
	if err != nil {
		// parseTick already validated the spec; this only fires on a bug.
		cancel()
		s.log.Error("tick register failed", logx.String("tick", s.tick.CronSpec()), logx.Err(err))
		return
	}
	s.c, s.entryID, s.cancel = c, id, cancel
	c.Start()
}

// stopLocked stops triggering without waiting; a running tick finishes on its own.
func (s *Service) stopLocked() {
	if s.c == nil {
		return
	}
	done, cancel := s.c.Stop(), s.cancel
	s.c, s.entryID, s.cancel = nil, 0, nil
	go func() {
		<-done.Done()
		if cancel != nil {
			cancel()
		}
	}()
}

// Stop stops the cron and waits, bounded by ctx, for the in-flight tick,
// whether cron or a manual Tick call started it.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c, s.entryID, s.cancel = nil, 0, nil
	s.mu.Unlock()

	var cronDone <-chan struct{}
	if c != nil {
		cronDone = c.Stop().Done()
	}
	if !s.waitIdle(ctx, cronDone) {
		s.log.Warn("stop deadline reached; aborting tick", logx.Err(ctx.Err()))
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// waitIdle reports whether cron drained and no tick holds tickMu before ctx ends.
func (s *Service) waitIdle(ctx context.Context, cronDone <-chan struct{}) bool {
	if cronDone != nil {
		select {
		case <-cronDone:
		case <-ctx.Done():
			return false
		}
	}
	idle := make(chan struct{})
	go func() {
		s.tickMu.Lock()
		s.tickMu.Unlock()
		close(idle)
	}()
	select {
	case <-idle:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Service) runScheduled(ctx context.Context) {
	rep, err := s.Tick(ctx)
	switch {
	case err == nil:
		if rep.Due > 0 {
			s.log.Info("tick done",
				logx.Int("due", rep.Due), logx.Int("fired", rep.Fired), logx.Int("failed", rep.Failed),
				logx.Int("publish_failed", rep.PublishFailed), logx.Duration("took", rep.Took))
		} else {
			s.log.Trace("tick done; nothing due", logx.Duration("took", rep.Took))
		}
	case isSkip(err):
		s.log.Debug("tick skipped", logx.Err(err))
	default:
		s.log.Warn("tick failed", logx.Err(err))
	}
}

func (s *Service) parseTick(raw string) ParsedTick {
	p, err := ParseTick(raw)
	if err != nil {
		s.log.Warn("invalid tick; using default", logx.String("tick", raw), logx.String("default", DefaultTick), logx.Err(err))
		p, _ = ParseTick("")
	}
	return p
}

func (s *Service) loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
