package config

// Config is the on-disk configuration (config.yaml or config.json). Durations are Go
// duration strings ("30s", "168h"); empty means the documented default.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Reminders    RemindersConfig    `json:"reminders"`
	Storage      StorageConfig      `json:"storage"`
	Notifier     *NotifierConfig    `json:"notifier,omitempty"`
	Housekeeping HousekeepingConfig `json:"housekeeping"`
	HTTP         HTTPConfig         `json:"http"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	PollTimeout  string  `json:"poll_timeout"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// AllowedUserIDs restricts who may create reminders. Empty allows everyone.
	AllowedUserIDs []int64 `json:"allowed_user_ids,omitempty"`
	// AlertChatID receives forwarded log alerts when logging.alerts.enabled is set.
	AlertChatID int64 `json:"alert_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
	Alerts  LoggingAlerts     `json:"alerts"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingAlerts struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type RemindersConfig struct {
	// Timezone is the single IANA zone every reminder is read and shown in.
	Timezone      string   `json:"timezone"`
	MaxPerUser    int      `json:"max_per_user"`
	FireTimeout   string   `json:"fire_timeout"`
	AdvanceCap    int      `json:"advance_cap"`
	SnoozeOptions []string `json:"snooze_options,omitempty"`
	// Retention is how long fired one-shot reminders are kept before the sweep job drops them.
	Retention string `json:"retention"`
}

type StorageConfig struct {
	// Driver: "file" (default), "sqlite", "postgres", "redis", "memory".
	Driver string `json:"driver"`
	// Path is the file-driver directory or the sqlite database path.
	Path string `json:"path"`
	// DSN is the postgres connection string.
	DSN string `json:"dsn,omitempty"`
	// Addr, Password, DB and KeyPrefix configure the redis driver.
	Addr        string `json:"addr,omitempty"`
	Password    string `json:"password,omitempty"`
	DB          int    `json:"db,omitempty"`
	KeyPrefix   string `json:"key_prefix,omitempty"`
	BusyTimeout string `json:"busy_timeout"`
}

type NotifierConfig struct {
	QueueSize   int    `json:"queue_size"`
	Workers     int    `json:"workers"`
	RatePerSec  int    `json:"rate_per_sec"`
	RetryMax    int    `json:"retry_max"`
	RetryBase   string `json:"retry_base"`
	DedupWindow string `json:"dedup_window"`
}

type HousekeepingConfig struct {
	Enabled        bool   `json:"enabled"`
	SweepSchedule  string `json:"sweep_schedule"`
	ResyncSchedule string `json:"resync_schedule"`
	Timeout        string `json:"timeout"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// Token guards every endpoint except /healthz. Required for non-loopback binds unless
	// AllowInsecure is set.
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool `json:"pprof,omitempty"`
}
