package config

import (
	"sort"
	"strings"

	logx "alertd/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// attrs for logging (never secrets). Sections that need a restart to take
// effect are listed in restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Timer != newCfg.Timer {
		changed = append(changed, "timer")
		attrs = append(attrs, logx.String("timer.timezone", newCfg.Timer.Timezone))
	}
	if oldCfg.Storage.Maintenance != newCfg.Storage.Maintenance {
		changed = append(changed, "storage.maintenance")
		attrs = append(attrs, logx.String("storage.maintenance", newCfg.Storage.Maintenance))
	}

	oldStore, newStore := oldCfg.Storage, newCfg.Storage
	oldStore.Maintenance, newStore.Maintenance = "", ""
	if oldStore != newStore {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newStore.Driver),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newStore.DSN) != ""),
		)
	}
	if !alertsEqual(oldCfg.Alerts, newCfg.Alerts) {
		changed = append(changed, "alerts")
		restart = append(restart, "alerts")
	}
	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		restart = append(restart, "notifier")
		attrs = append(attrs,
			logx.String("notifier.driver", newCfg.Notifier.Driver),
			logx.Bool("notifier.telegram.token_set", strings.TrimSpace(newCfg.Notifier.Telegram.Token) != ""),
		)
	}
	if oldCfg.API != newCfg.API {
		changed = append(changed, "api")
		restart = append(restart, "api")
		attrs = append(attrs,
			logx.String("api.addr", newCfg.API.Addr),
			logx.Bool("api.admin_token_set", strings.TrimSpace(newCfg.API.AdminToken) != ""),
		)
	}
	return changed, attrs, restart
}

func alertsEqual(a, b AlertsConfig) bool {
	if a.RestoreEnabled() != b.RestoreEnabled() {
		return false
	}
	a.Restore, b.Restore = nil, nil
	return a == b
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
