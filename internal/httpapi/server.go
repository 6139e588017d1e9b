package httpapi

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	rtsup "memocare/internal/runtime/supervisor"
	logx "memocare/pkg/logx"
)

// Server owns the fiber app. Reconfigure starts, stops or restarts it as the
// config changes.
type Server struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	deps Deps

	parent   context.Context
	app      *fiber.App
	sup      *rtsup.Supervisor
	ln       net.Listener
	lnFresh  bool
	stopDone chan struct{}
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	return &Server{cfg: cfg, deps: deps, log: log.With(logx.String("comp", "http"))}
}

func (s *Server) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Supervisor returns the serve loop supervisor, or nil while stopped.
func (s *Server) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Reconfigure applies cfg and starts/stops/restarts the server if needed.
// ctx bounds the stop; a (re)started server lives under the context of the
// last Start call.
func (s *Server) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.app != nil
	s.cfg = cfg
	parent := s.parent
	s.mu.Unlock()
	if parent == nil {
		parent = ctx
	}

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.start(parent)
	case needsRestart(prev, cfg):
		s.log.Info("http config changed; restarting")
		s.Stop(ctx)
		s.start(parent)
	}
}

// Start serves until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	s.parent = ctx
	s.mu.Unlock()
	s.start(ctx)
}

func (s *Server) start(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.app != nil {
			s.mu.Unlock()
			return
		}
		// Wait for a pending stop so the address is free.
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return
			}
			continue
		}
		cur := s.cfg
		if !cur.Enabled {
			s.mu.Unlock()
			return
		}

		addr := strings.TrimSpace(cur.Addr)
		if addr == "" {
			addr = defaultAddr
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.mu.Unlock()
			s.log.Error("http listen failed", logx.String("addr", addr), logx.Err(err))
			return
		}
		if cur.JWTSecret == "" {
			s.log.Warn("http jwt_secret is empty; owner routes will reject every request")
		}

		app := s.newApp(cur)
		sup := rtsup.New(ctx, rtsup.WithLogger(s.log))
		s.app, s.sup = app, sup
		s.ln, s.lnFresh = ln, true
		s.mu.Unlock()

		sup.GoRestart("http.serve", func(ctx context.Context) error {
			ln, err := s.takeListener(addr)
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				_ = ln.Close()
				return nil
			}
			return app.Listener(ln)
		}, rtsup.WithRestartBackoff(time.Second, 30*time.Second), rtsup.WithPublishFirstError(true))

		s.log.Info("http started", logx.String("addr", ln.Addr().String()), logx.Bool("ops", cur.OpsToken != ""))
		return
	}
}

// takeListener hands the listener bound by Start to the first serve run and
// binds a new one for every restart.
func (s *Server) takeListener(addr string) (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lnFresh {
		s.lnFresh = false
		return s.ln, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.ln = ln
	return ln, nil
}

// Addr is the bound address, or "" while stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.app == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	app, sup := s.app, s.sup
	s.app, s.sup = nil, nil
	s.mu.Unlock()

	// Cancel before closing so the serve loop treats the listener exit as clean.
	sup.Cancel()
	s.mu.Lock()
	ln := s.ln
	s.ln, s.lnFresh = nil, false
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	go func() {
		defer close(done)
		if err := app.ShutdownWithContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Debug("http shutdown", logx.Err(err))
		}
		if err := sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.log.Debug("http serve loop ended with error", logx.Err(err))
		}
		s.mu.Lock()
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("http stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Server) newApp(cfg Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "memocare",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		ErrorHandler:          s.errorHandler,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if s.deps.Reminders != nil {
		api := app.Group("/api")
		// The websocket authenticates by query token, so it is mounted
		// ahead of the header-auth group that shares its prefix.
		if s.deps.Bus != nil {
			api.Get("/reminders/ws", s.wsUpgrade(cfg.JWTSecret), s.dueStream())
		}
		rem := api.Group("/reminders", s.ownerAuth(cfg.JWTSecret))
		rem.Get("/", s.listReminders)
		rem.Post("/", s.createReminder)
		rem.Get("/:id", s.getReminder)
		rem.Put("/:id", s.updateReminder)
		rem.Patch("/:id/active", s.setReminderActive)
		rem.Delete("/:id", s.deleteReminder)
	}

	if cfg.OpsToken != "" {
		ops := app.Group("/ops", opsAuth(cfg.OpsToken))
		ops.Get("/scheduler", s.schedulerSnapshot)
		ops.Post("/scheduler/tick", s.schedulerTick)
		ops.Get("/supervisors", s.supervisors)
		ops.Get("/notify", s.notifyStats)
	}
	return app
}
