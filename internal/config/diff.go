package config

import (
	"reflect"
	"sort"
	"strings"

	logx "memocare/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens
// or passwords), and (3) the owner ids whose recipients changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// HTTP (never log jwt_secret or ops_token)
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Bool("http.jwt_secret_set", strings.TrimSpace(newCfg.HTTP.JWTSecret) != ""),
			logx.Bool("http.ops_token_set", strings.TrimSpace(newCfg.HTTP.OpsToken) != ""),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.tick", strings.TrimSpace(newCfg.Scheduler.Tick)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.lock_driver", strings.TrimSpace(newCfg.Scheduler.Lock.Driver)),
		)
	}

	// Storage is restart-only. The DSN may carry credentials.
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		d := newCfg.Notify.Delivery
		attrs = append(attrs,
			logx.Bool("notify.redis_enabled", newCfg.Notify.Redis.Enabled),
			logx.Bool("notify.delivery_enabled", d.Enabled),
			logx.Int("notify.workers", d.Workers),
			logx.Int("notify.queue_size", d.QueueSize),
			logx.Int("notify.rate_per_sec", d.RatePerSec),
			logx.Int("notify.retry_max", d.RetryMax),
			logx.Bool("notify.persist_dedup", d.PersistDedup),
		)
	}

	if oldCfg.Redis != newCfg.Redis {
		changed = append(changed, "redis")
		attrs = append(attrs,
			logx.String("redis.addr", strings.TrimSpace(newCfg.Redis.Addr)),
			logx.Int("redis.db", newCfg.Redis.DB),
		)
	}

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	if oldCfg.Mail != newCfg.Mail {
		changed = append(changed, "mail")
		attrs = append(attrs,
			logx.String("mail.host", strings.TrimSpace(newCfg.Mail.Host)),
			logx.Int("mail.port", newCfg.Mail.Port),
			logx.Bool("mail.auth_set", newCfg.Mail.Username != ""),
		)
	}

	owners := diffRecipients(oldCfg.Recipients, newCfg.Recipients)
	if len(owners) > 0 {
		changed = append(changed, "recipients")
		attrs = append(attrs,
			logx.Int("recipients.changed_count", len(owners)),
			logx.Int("recipients.owner_count", len(newCfg.Recipients)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, owners
}

func diffRecipients(oldM, newM map[string]Recipients) []string {
	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for owner := range set {
		o, oOK := oldM[owner]
		n, nOK := newM[owner]
		if oOK != nOK || !reflect.DeepEqual(o, n) {
			out = append(out, owner)
		}
	}
	sort.Strings(out)
	return out
}
