package notifier

import (
	"errors"
	"strings"

	logx "alertd/pkg/logx"
)

// Open builds the configured notifier.
func Open(cfg Config, log logx.Logger) (Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemory(log), nil
	case "telegram":
		return NewTelegram(cfg.Telegram, log)
	default:
		return nil, errors.New("unknown notifier driver: " + cfg.Driver)
	}
}
