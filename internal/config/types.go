package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	HTTP      HTTPConfig      `json:"http"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Notify    NotifyConfig    `json:"notify"`
	Redis     RedisConfig     `json:"redis"`
	Telegram  TelegramConfig  `json:"telegram"`
	Mail      MailConfig      `json:"mail"`

	// Recipients maps a reminder owner id to the external destinations that
	// receive its due reminders.
	Recipients map[string]Recipients `json:"recipients,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warnings and errors to an operator chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// HTTPConfig controls the REST/websocket API.
//
// Security note: jwt_secret verifies owner tokens issued elsewhere; ops_token
// guards /ops/*. Neither is ever logged.
type HTTPConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr,omitempty"` // default: "127.0.0.1:8080"
	JWTSecret    string `json:"jwt_secret,omitempty"`
	OpsToken     string `json:"ops_token,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// SchedulerConfig controls the due-reminder tick.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Tick is a cron expression or interval; default "* * * * *".
	Tick     string        `json:"tick,omitempty"`
	Timezone string        `json:"timezone,omitempty"`
	Lock     SchedulerLock `json:"lock"`
}

// SchedulerLock keeps ticks exclusive across instances sharing one store.
type SchedulerLock struct {
	Driver string `json:"driver,omitempty"` // none | postgres | redis
	Key    string `json:"key,omitempty"`
	TTL    string `json:"ttl,omitempty"` // redis only
}

// StorageConfig selects the reminder store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/memocare.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type NotifyConfig struct {
	Redis    NotifyRedis    `json:"redis"`
	Delivery DeliveryConfig `json:"delivery"`
}

// NotifyRedis relays due events between instances over redis pub/sub.
type NotifyRedis struct {
	Enabled       bool   `json:"enabled"`
	ChannelPrefix string `json:"channel_prefix,omitempty"`
}

// DeliveryConfig controls the async pipeline to Telegram and email.
type DeliveryConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout"`
}

type MailConfig struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty"`
}

type Recipients struct {
	TelegramChatIDs []int64  `json:"telegram_chat_ids,omitempty"`
	Emails          []string `json:"emails,omitempty"`
}
