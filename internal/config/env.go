package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ALERTD_"

// envOverrides are the settings that may come from the environment instead
// of the file: secrets and per-deploy knobs. Empty values leave the file
// setting alone.
type envOverrides struct {
	LogLevel      string `env:"LOG_LEVEL"`
	StorageDriver string `env:"STORAGE_DRIVER"`
	StoragePath   string `env:"STORAGE_PATH"`
	StorageDSN    string `env:"STORAGE_DSN"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	Notifier      string `env:"NOTIFIER"`
	TelegramToken string `env:"TELEGRAM_TOKEN"`
	TelegramChat  int64  `env:"TELEGRAM_CHAT_ID"`
	APIAddr       string `env:"API_ADDR"`
	AdminToken    string `env:"ADMIN_TOKEN"`
}

// ApplyEnv overlays ALERTD_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, env.Options{Prefix: EnvPrefix})
}

func applyEnv(cfg *Config, opts env.Options) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Storage.Driver, o.StorageDriver)
	set(&cfg.Storage.Path, o.StoragePath)
	set(&cfg.Storage.DSN, o.StorageDSN)
	set(&cfg.Storage.Redis.Addr, o.RedisAddr)
	set(&cfg.Storage.Redis.Password, o.RedisPassword)
	set(&cfg.Notifier.Driver, o.Notifier)
	set(&cfg.Notifier.Telegram.Token, o.TelegramToken)
	if o.TelegramChat != 0 {
		cfg.Notifier.Telegram.ChatID = o.TelegramChat
	}
	set(&cfg.API.Addr, o.APIAddr)
	set(&cfg.API.AdminToken, o.AdminToken)
	return nil
}
