package config

// Config is the on-disk configuration. Durations are Go duration strings
// (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Timer    TimerConfig    `json:"timer"`
	Alerts   AlertsConfig   `json:"alerts"`
	Notifier NotifierConfig `json:"notifier"`
	API      APIConfig      `json:"api"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the alert store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/alerts.sqlite" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	// CompactEvery is the journal length that triggers a compaction (file driver).
	CompactEvery int `json:"compact_every,omitempty"`
	// Maintenance is a cron spec for periodic store maintenance; "" disables.
	Maintenance string      `json:"maintenance,omitempty"`
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

type TimerConfig struct {
	// Timezone for maintenance schedules and log output; "" means Local.
	Timezone string `json:"timezone,omitempty"`
}

// AlertsConfig controls how alerts are rendered.
type AlertsConfig struct {
	AppName    string `json:"app_name,omitempty"`
	Icon       string `json:"icon,omitempty"`
	ClickPath  string `json:"click_path,omitempty"`
	PreviewTTL string `json:"preview_ttl,omitempty"`
	// Restore re-arms and re-shows stored alerts at startup. Defaults to true.
	Restore *bool `json:"restore,omitempty"`
}

type NotifierConfig struct {
	Driver   string         `json:"driver"` // "memory" | "telegram"
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token         string `json:"token,omitempty"` // do not log
	ChatID        int64  `json:"chat_id,omitempty"`
	ThreadID      int    `json:"thread_id,omitempty"`
	PollTimeout   string `json:"poll_timeout,omitempty"`
	APIURL        string `json:"api_url,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// APIConfig controls the HTTP boundary.
//
// Security note: the admin routes are unrestricted. Bind to localhost or set
// admin_token.
type APIConfig struct {
	Addr         string `json:"addr"`                  // default "127.0.0.1:8470"
	AdminToken   string `json:"admin_token,omitempty"` // bearer token (do not log)
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
	// Per-owner request rate; 0 disables limiting.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	// Pprof exposes profiling under the admin routes.
	Pprof bool `json:"pprof,omitempty"`
}

// RestoreEnabled reports whether startup restore is on.
func (c AlertsConfig) RestoreEnabled() bool {
	return c.Restore == nil || *c.Restore
}
