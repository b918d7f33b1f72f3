package app

import (
	"strings"
	"time"

	"alertd/internal/api"
	"alertd/internal/config"
	"alertd/internal/engine"
	"alertd/internal/notifier"
	"alertd/internal/storage"
	"alertd/internal/timer"
	logx "alertd/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:       strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:         strings.TrimSpace(sc.Path),
		DSN:          strings.TrimSpace(sc.DSN),
		BusyTimeout:  busy,
		CompactEvery: sc.CompactEvery,
		Redis: storage.RedisConfig{
			Addr:     strings.TrimSpace(sc.Redis.Addr),
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
		},
	}, nil
}

func mapTimerConfig(cfg *config.Config) timer.Config {
	return timer.Config{Timezone: strings.TrimSpace(cfg.Timer.Timezone)}
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	ttl, err := config.ParseDurationOrDefault("alerts.preview_ttl", cfg.Alerts.PreviewTTL, 5*time.Second)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		AppName:    strings.TrimSpace(cfg.Alerts.AppName),
		Icon:       strings.TrimSpace(cfg.Alerts.Icon),
		ClickPath:  strings.TrimSpace(cfg.Alerts.ClickPath),
		PreviewTTL: ttl,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	tc := cfg.Notifier.Telegram
	poll, err := config.ParseDurationOrDefault("notifier.telegram.poll_timeout", tc.PollTimeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	retryBase, err := config.ParseDurationOrDefault("notifier.telegram.retry_base", tc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMax, err := config.ParseDurationOrDefault("notifier.telegram.retry_max_delay", tc.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Notifier.Driver)),
		Telegram: notifier.TelegramConfig{
			Token:         strings.TrimSpace(tc.Token),
			ChatID:        tc.ChatID,
			ThreadID:      tc.ThreadID,
			PollTimeout:   poll,
			APIURL:        strings.TrimSpace(tc.APIURL),
			RatePerSec:    tc.RatePerSec,
			RetryMax:      tc.RetryMax,
			RetryBase:     retryBase,
			RetryMaxDelay: retryMax,
		},
	}, nil
}

func mapAPIConfig(cfg *config.Config) (api.Config, error) {
	ac := cfg.API
	read, err := config.ParseDurationOrDefault("api.read_timeout", ac.ReadTimeout, 15*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("api.write_timeout", ac.WriteTimeout, 15*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("api.idle_timeout", ac.IdleTimeout, 60*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		Addr:         strings.TrimSpace(ac.Addr),
		AdminToken:   strings.TrimSpace(ac.AdminToken),
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
		RatePerSec:   ac.RatePerSec,
		Burst:        ac.Burst,
		Pprof:        ac.Pprof,
	}, nil
}
