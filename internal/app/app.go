// Package app wires config, storage, the scheduler, notification delivery and
// the outer surfaces (HTTP, Telegram) into one process.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"memocare/internal/config"
	"memocare/internal/eventbus"
	"memocare/internal/httpapi"
	"memocare/internal/lock"
	"memocare/internal/notify"
	rtsup "memocare/internal/runtime/supervisor"
	"memocare/internal/scheduler"
	"memocare/internal/services/reminders"
	"memocare/internal/storage"
	"memocare/internal/transport/mail"
	"memocare/internal/transport/telegram"
	logx "memocare/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor
	sups *rtsup.Registry

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	rdb   *redis.Client

	tg       *telegram.Adapter
	relay    *notify.Redis
	delivery *notify.Delivery
	sched    *scheduler.Service
	rem      *reminders.Service
	http     *httpapi.Server
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logs, root := logx.New(mapLogging(cfg), nil)
	log := root.With(logx.String("comp", "app"))

	a := &App{
		cfgm: cfgm,
		sups: rtsup.NewRegistry(),
		log:  log,
		logs: logs,
		bus:  eventbus.New(),
	}
	if err := a.build(cfg, root); err != nil {
		_ = a.closeResources()
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, root logx.Logger) error {
	tgCfg, err := mapTelegram(cfg)
	if err != nil {
		return err
	}
	if tgCfg.Token != "" {
		tg, err := telegram.New(tgCfg, root)
		if err != nil {
			return err
		}
		a.tg = tg
		a.logs.SetSender(tg)
	} else if cfg.Logging.Telegram.Enabled {
		a.log.Warn("logging.telegram is enabled but telegram.token is empty; alerts are dropped")
	}

	sc, err := mapStorage(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(sc, root)
	if err != nil {
		return err
	}
	a.store = store
	a.log.Info("storage opened", logx.String("driver", sc.Driver))

	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		a.rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}

	var db *sql.DB
	if h, ok := store.(interface{ DB() *sql.DB }); ok {
		db = h.DB()
	}
	lc, err := mapLock(cfg)
	if err != nil {
		return err
	}
	locker, err := lock.Open(lc, db, a.rdb, root.With(logx.String("comp", "lock")))
	if err != nil {
		return err
	}

	var sinks []notify.Sink
	if a.tg != nil {
		sinks = append(sinks, notify.NewTelegramSink(a.tg))
	}
	if strings.TrimSpace(cfg.Mail.Host) != "" {
		m, err := mail.New(mapMail(cfg))
		if err != nil {
			return err
		}
		sinks = append(sinks, notify.NewMailSink(m))
	}
	dc, err := mapDelivery(cfg)
	if err != nil {
		return err
	}
	a.delivery = notify.NewDelivery(dc, sinks, root.With(logx.String("comp", "notify")), a.bus, store)
	a.delivery.SetRecipients(mapRecipients(cfg))

	var primary notify.Publisher = notify.NewLocal(a.bus)
	if cfg.Notify.Redis.Enabled {
		a.relay = notify.NewRedis(a.rdb, cfg.Notify.Redis.ChannelPrefix, a.bus, root.With(logx.String("comp", "notify.redis")))
		primary = a.relay
	}

	schedCfg, err := mapScheduler(cfg)
	if err != nil {
		return err
	}
	a.sched = scheduler.New(schedCfg, store, notify.Fanout{primary, a.delivery},
		root.With(logx.String("comp", "scheduler")), a.bus, scheduler.WithLocker(locker))

	a.rem = reminders.New(store, root, reminders.WithLocation(a.sched.Location))

	hc, err := mapHTTP(cfg)
	if err != nil {
		return err
	}
	a.http = httpapi.New(hc, httpapi.Deps{
		Reminders:   a.rem,
		Scheduler:   a.sched,
		Delivery:    a.delivery,
		Supervisors: a.sups,
		Bus:         a.bus,
	}, root)

	a.sups.Set("app", func() *rtsup.Supervisor { return a.sup })
	a.sups.Set("notify.delivery", a.delivery.Supervisor)
	a.sups.Set("http", a.http.Supervisor)
	return nil
}

// Reminders exposes the owner-scoped service (used by the MCP server).
func (a *App) Reminders() *reminders.Service { return a.rem }

// Done is closed when the app supervisor context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	if a.rdb != nil {
		pctx, cancel := context.WithTimeout(run, 5*time.Second)
		err := a.rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			// Redis users retry on their own; a late redis is not fatal.
			a.log.Warn("redis ping failed", logx.Err(err))
		}
	}

	if a.tg != nil {
		a.tg.Start(run)
	}
	if a.relay != nil {
		a.sup.GoRestart("notify.redis", a.relay.Run, rtsup.WithStopOnCleanExit(false))
	}
	if a.delivery.Enabled() {
		a.delivery.Start(run)
	}
	a.sched.Start(run)
	// Start records run as the parent for hot-reload restarts even when the
	// server is disabled now.
	a.http.Start(run)

	events, unsubscribe := a.bus.Subscribe("", 128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsubscribe()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.String("topic", e.Topic), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.Bool("scheduler", a.sched.Enabled()),
		logx.Bool("delivery", a.delivery.Enabled()),
		logx.Bool("http", a.http.Enabled()),
		logx.Bool("telegram", a.tg != nil),
		logx.Bool("redis_relay", a.relay != nil),
	)
	return nil
}

// applyConfig pushes a validated config into the live components.
func (a *App) applyConfig(ctx context.Context, oldCfg, cfg *config.Config) {
	sections, attrs, owners := config.SummarizeConfigChange(oldCfg, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range restartOnly(sections, oldCfg, cfg) {
		a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
	}

	a.logs.Apply(mapLogging(cfg))

	if sc, err := mapScheduler(cfg); err == nil {
		a.sched.Apply(sc)
	} else {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	}

	if dc, err := mapDelivery(cfg); err == nil {
		wasEnabled := a.delivery.Enabled()
		a.delivery.Apply(dc)
		switch {
		case wasEnabled && !dc.Enabled:
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.delivery.Stop(stopCtx)
			cancel()
			a.log.Info("delivery disabled via config")
		case !wasEnabled && dc.Enabled:
			a.delivery.Start(ctx)
			a.log.Info("delivery enabled via config")
		}
	} else {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
	}
	if len(owners) > 0 {
		a.delivery.SetRecipients(mapRecipients(cfg))
		a.log.Debug("recipients updated", logx.Any("owners", owners))
	}

	if hc, err := mapHTTP(cfg); err == nil {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		a.http.Reconfigure(stopCtx, hc)
		cancel()
	} else {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("http", 3*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	// Producers are drained; the rest of the supervised loops can go.
	a.sup.Cancel()
	step("delivery", 3*time.Second, func(c context.Context) error { a.delivery.Stop(c); return nil })
	step("telegram", 2*time.Second, func(c context.Context) error {
		if a.tg != nil {
			return a.tg.Stop(c)
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("resources", 2*time.Second, func(context.Context) error { return a.closeResources() })

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) closeResources() error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
