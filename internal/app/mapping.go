package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"memocare/internal/config"
	"memocare/internal/httpapi"
	"memocare/internal/lock"
	"memocare/internal/notify"
	"memocare/internal/scheduler"
	"memocare/internal/storage"
	"memocare/internal/transport/mail"
	"memocare/internal/transport/telegram"
	logx "memocare/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Alert: logx.AlertConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     l.Telegram.ChatID,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func storageDriver(cfg *config.Config) string {
	return strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := storageDriver(cfg)
	out := storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), DSN: strings.TrimSpace(sc.DSN)}
	switch driver {
	case "", "memory", "mem":
	case "sqlite", "sqlite3":
		if out.Path == "" {
			return storage.Config{}, errors.New("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		out.BusyTimeout = busy
	case "postgres", "postgresql", "pg":
		if out.DSN == "" {
			return storage.Config{}, errors.New("storage.dsn is required when storage.driver=postgres")
		}
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	return out, nil
}

func mapScheduler(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	if _, err := scheduler.ParseTick(sc.Tick); err != nil {
		return scheduler.Config{}, fmt.Errorf("scheduler.tick: %w", err)
	}
	if _, err := config.ParseLocation("scheduler.timezone", sc.Timezone); err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Enabled: sc.Enabled, Tick: sc.Tick, Timezone: sc.Timezone}, nil
}

func mapLock(cfg *config.Config) (lock.Config, error) {
	l := cfg.Scheduler.Lock
	ttl, err := config.ParseDurationOrDefault("scheduler.lock.ttl", l.TTL, lock.DefaultTTL)
	if err != nil {
		return lock.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(l.Driver))
	switch driver {
	case "", "none":
	case "postgres", "pg":
		switch storageDriver(cfg) {
		case "postgres", "postgresql", "pg":
		default:
			return lock.Config{}, errors.New("scheduler.lock.driver=postgres requires storage.driver=postgres")
		}
	case "redis":
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return lock.Config{}, errors.New("scheduler.lock.driver=redis requires redis.addr")
		}
	default:
		return lock.Config{}, fmt.Errorf("unknown scheduler.lock.driver: %s", l.Driver)
	}
	return lock.Config{Driver: driver, Key: l.Key, TTL: ttl}, nil
}

func mapDelivery(cfg *config.Config) (notify.Config, error) {
	d := cfg.Notify.Delivery
	if d.Workers < 0 || d.QueueSize < 0 || d.RatePerSec < 0 || d.RetryMax < 0 || d.DedupMaxEntries < 0 {
		return notify.Config{}, errors.New("notify.delivery: counts must be >= 0")
	}
	retryBase, err := config.ParseDurationField("notify.delivery.retry_base", d.RetryBase)
	if err != nil {
		return notify.Config{}, err
	}
	retryMax, err := config.ParseDurationField("notify.delivery.retry_max_delay", d.RetryMaxDelay)
	if err != nil {
		return notify.Config{}, err
	}
	window, err := config.ParseDurationOrDefault("notify.delivery.dedup_window", d.DedupWindow, 10*time.Minute)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Enabled:         d.Enabled,
		Workers:         d.Workers,
		QueueSize:       d.QueueSize,
		RatePerSec:      d.RatePerSec,
		RetryMax:        d.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMax,
		DedupWindow:     window,
		DedupMaxEntries: d.DedupMaxEntries,
		PersistDedup:    d.PersistDedup,
	}, nil
}

func mapRecipients(cfg *config.Config) map[string][]notify.Recipient {
	out := make(map[string][]notify.Recipient, len(cfg.Recipients))
	for owner, rc := range cfg.Recipients {
		owner = strings.TrimSpace(owner)
		if owner == "" {
			continue
		}
		if rs := notify.RecipientsFor(rc.TelegramChatIDs, rc.Emails); len(rs) > 0 {
			out[owner] = rs
		}
	}
	return out
}

func mapHTTP(cfg *config.Config) (httpapi.Config, error) {
	h := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", h.WriteTimeout, 10*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", h.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Enabled:      h.Enabled,
		Addr:         h.Addr,
		JWTSecret:    h.JWTSecret,
		OpsToken:     h.OpsToken,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, nil
}

func mapTelegram(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: strings.TrimSpace(cfg.Telegram.Token), PollTimeout: poll}, nil
}

func mapMail(cfg *config.Config) mail.Config {
	m := cfg.Mail
	return mail.Config{Host: m.Host, Port: m.Port, Username: m.Username, Password: m.Password, From: m.From}
}

// validate rejects configs that would fail to map. It guards hot reloads.
func validate(cfg *config.Config) error {
	if _, err := mapStorage(cfg); err != nil {
		return err
	}
	if _, err := mapScheduler(cfg); err != nil {
		return err
	}
	if _, err := mapLock(cfg); err != nil {
		return err
	}
	if _, err := mapDelivery(cfg); err != nil {
		return err
	}
	if _, err := mapHTTP(cfg); err != nil {
		return err
	}
	if _, err := mapTelegram(cfg); err != nil {
		return err
	}
	if cfg.Notify.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("notify.redis.enabled requires redis.addr")
	}
	for owner := range cfg.Recipients {
		if strings.TrimSpace(owner) == "" {
			return errors.New("recipients: empty owner id")
		}
	}
	return nil
}

// restartOnly lists changed sections that only take effect after a restart.
func restartOnly(sections []string, oldCfg, newCfg *config.Config) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "storage", "redis", "telegram", "mail":
			out = append(out, s)
		}
	}
	if oldCfg != nil && newCfg != nil {
		if oldCfg.Scheduler.Lock != newCfg.Scheduler.Lock {
			out = append(out, "scheduler.lock")
		}
		if oldCfg.Notify.Redis != newCfg.Notify.Redis {
			out = append(out, "notify.redis")
		}
	}
	return out
}
