package config

import (
	"os"
	"strings"
)

// Environment variable names understood on top of the config file.
const (
	EnvRecipient     = "RECIPIENT_PHONE"
	EnvSubjects      = "HOROSCOPES_SIGNS"
	EnvSendTime      = "SEND_TIME"
	EnvWeeklyEnabled = "WEEKLY_ENABLED"
	EnvLogMessages   = "LOG_MESSAGES"
	EnvSendOnStartup = "SEND_ON_STARTUP"
	EnvTimezone      = "TZ"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with the environment. Unset variables leave the file value alone.
// Boolean flags are enabled only by the literal "true" (case-insensitive).
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}
	flag := func(key string, dst *bool) {
		if v, ok := str(key); ok {
			*dst = strings.EqualFold(v, "true")
		}
	}

	if v, ok := str(EnvRecipient); ok {
		cfg.Channel.Recipient = v
	}
	if v, ok := str(EnvSubjects); ok {
		cfg.Content.Subjects = normalizeSubjects(strings.Split(v, ","))
	}
	if v, ok := str(EnvSendTime); ok {
		cfg.Schedule.SendTime = v
	}
	if v, ok := str(EnvTimezone); ok {
		cfg.Scheduler.Timezone = v
	}
	flag(EnvWeeklyEnabled, &cfg.Schedule.WeeklyEnabled)
	flag(EnvLogMessages, &cfg.Delivery.LogMessages)
	flag(EnvSendOnStartup, &cfg.Schedule.SendOnStartup)
}
