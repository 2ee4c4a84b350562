package config

import (
	"reflect"
	"strings"

	logx "horoscopebot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes the telegram token).
// Only the logging section is applied live; other sections need a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	// Channel (never log token)
	oc, nc := oldCfg.Channel, newCfg.Channel
	if oc.Driver != nc.Driver || oc.Recipient != nc.Recipient || oc.SessionDir != nc.SessionDir ||
		oc.TelegramToken != nc.TelegramToken || oc.PollTimeout != nc.PollTimeout || oc.RatePerSec != nc.RatePerSec {
		changed = append(changed, "channel")
		attrs = append(attrs,
			logx.String("channel.driver", nc.Driver),
			logx.Bool("channel.token_set", strings.TrimSpace(nc.TelegramToken) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Content, newCfg.Content) {
		changed = append(changed, "content")
		attrs = append(attrs,
			logx.String("content.driver", newCfg.Content.Driver),
			logx.Int("content.subjects", len(newCfg.Content.Subjects)),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule || oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.send_time", newCfg.Schedule.SendTime),
			logx.Bool("schedule.weekly_enabled", newCfg.Schedule.WeeklyEnabled),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery || oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Bool("delivery.log_messages", newCfg.Delivery.LogMessages),
			logx.String("storage.driver", newCfg.Storage.Driver),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
		)
	}

	return changed, attrs
}

// RequiresRestart reports whether any section other than logging changed.
func RequiresRestart(changed []string) bool {
	for _, s := range changed {
		if s != "logging" {
			return true
		}
	}
	return false
}

// LogxConfig converts the logging section for logx.Service.Apply.
func (c LoggingConfig) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}
