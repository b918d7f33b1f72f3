package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks cross-field rules the JSON decoder cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "file":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required"))
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	case "redis":
		if strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
			errs = append(errs, errors.New("storage.redis.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if spec := strings.TrimSpace(cfg.Storage.Maintenance); spec != "" {
		p := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := p.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("storage.maintenance: %w", err))
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Notifier.Driver)) {
	case "", "memory":
	case "telegram":
		if strings.TrimSpace(cfg.Notifier.Telegram.Token) == "" {
			errs = append(errs, errors.New("notifier.telegram.token is required"))
		}
		if cfg.Notifier.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("notifier.telegram.chat_id is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifier.driver: unknown driver %q", cfg.Notifier.Driver))
	}

	durations := map[string]string{
		"storage.busy_timeout":              cfg.Storage.BusyTimeout,
		"alerts.preview_ttl":                cfg.Alerts.PreviewTTL,
		"notifier.telegram.poll_timeout":    cfg.Notifier.Telegram.PollTimeout,
		"notifier.telegram.retry_base":      cfg.Notifier.Telegram.RetryBase,
		"notifier.telegram.retry_max_delay": cfg.Notifier.Telegram.RetryMaxDelay,
		"api.read_timeout":                  cfg.API.ReadTimeout,
		"api.write_timeout":                 cfg.API.WriteTimeout,
		"api.idle_timeout":                  cfg.API.IdleTimeout,
	}
	for _, path := range sortedKeys(durations) {
		if _, err := ParseDurationField(path, durations[path]); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.API.RatePerSec < 0 {
		errs = append(errs, errors.New("api.rate_per_sec must be >= 0"))
	}
	return errors.Join(errs...)
}
