package config

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"horoscopebot/internal/task/scheduler"
)

const (
	DefaultChannelDriver = "whatsapp"
	DefaultSessionDir    = "./.wa_session"
	DefaultPollTimeout   = 10 * time.Second
	DefaultRatePerSec    = 1.0

	DefaultContentDriver     = "browser"
	DefaultBaseURL           = "https://www.lecturas.com/horoscopo"
	DefaultNavigationTimeout = 30 * time.Second
	DefaultElementTimeout    = 10 * time.Second
	DefaultSubjectDelay      = 2 * time.Second
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	DefaultSendTime     = "8:00"
	DefaultWeeklyDay    = "sunday"
	DefaultWeeklyTime   = "9:00"
	DefaultStartupDelay = 5 * time.Second
	DefaultSendNowDelay = 10 * time.Second

	DefaultStorageDriver = "file"
	DefaultRunLogPath    = "./logs/horoscope-messages.log"
	DefaultRunDBPath     = "./logs/horoscope-runs.db"

	DefaultMetricsAddr = "127.0.0.1:9090"
)

// ApplyDefaults fills omitted fields in place. It never overrides explicit values.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	ch := &cfg.Channel
	ch.Driver = strings.ToLower(strings.TrimSpace(ch.Driver))
	if ch.Driver == "" {
		ch.Driver = DefaultChannelDriver
	}
	if strings.TrimSpace(ch.SessionDir) == "" {
		ch.SessionDir = DefaultSessionDir
	}
	if ch.RatePerSec <= 0 {
		ch.RatePerSec = DefaultRatePerSec
	}

	ct := &cfg.Content
	ct.Driver = strings.ToLower(strings.TrimSpace(ct.Driver))
	if ct.Driver == "" {
		ct.Driver = DefaultContentDriver
	}
	if strings.TrimSpace(ct.BaseURL) == "" {
		ct.BaseURL = DefaultBaseURL
	}
	ct.BaseURL = strings.TrimRight(strings.TrimSpace(ct.BaseURL), "/")
	if strings.TrimSpace(ct.UserAgent) == "" {
		ct.UserAgent = DefaultUserAgent
	}
	ct.Subjects = normalizeSubjects(ct.Subjects)

	sc := &cfg.Schedule
	if strings.TrimSpace(sc.SendTime) == "" {
		sc.SendTime = DefaultSendTime
	}
	if strings.TrimSpace(sc.WeeklyDay) == "" {
		sc.WeeklyDay = DefaultWeeklyDay
	}
	if strings.TrimSpace(sc.WeeklyTime) == "" {
		sc.WeeklyTime = DefaultWeeklyTime
	}

	st := &cfg.Storage
	st.Driver = strings.ToLower(strings.TrimSpace(st.Driver))
	if st.Driver == "" {
		st.Driver = DefaultStorageDriver
	}
	if strings.TrimSpace(st.Path) == "" {
		switch st.Driver {
		case "sqlite":
			st.Path = DefaultRunDBPath
		default:
			st.Path = DefaultRunLogPath
		}
	}

	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if !cfg.Logging.Console && !cfg.Logging.File.Enabled {
		cfg.Logging.Console = true
	}

	if cfg.Metrics.Enabled && strings.TrimSpace(cfg.Metrics.Addr) == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
}

// Validate checks a config after defaults and env overrides were applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	switch cfg.Channel.Driver {
	case "whatsapp", "telegram":
	default:
		return errors.WithHint(
			errors.Newf("channel.driver: unknown driver %q", cfg.Channel.Driver),
			`use "whatsapp" or "telegram"`,
		)
	}
	if strings.TrimSpace(cfg.Channel.Recipient) == "" {
		return errors.WithHint(
			errors.New("channel.recipient is required"),
			"set channel.recipient in the config file or RECIPIENT_PHONE in the environment",
		)
	}
	if cfg.Channel.Driver == "telegram" {
		if strings.TrimSpace(cfg.Channel.TelegramToken) == "" {
			return errors.New("channel.telegram_token is required for the telegram driver")
		}
		if _, err := strconv.ParseInt(strings.TrimSpace(cfg.Channel.Recipient), 10, 64); err != nil {
			return errors.Wrap(err, "channel.recipient: telegram recipient must be a numeric chat id")
		}
	}
	if _, err := ParseDurationField("channel.poll_timeout", cfg.Channel.PollTimeout); err != nil {
		return err
	}

	switch cfg.Content.Driver {
	case "browser", "http":
	default:
		return errors.WithHint(
			errors.Newf("content.driver: unknown driver %q", cfg.Content.Driver),
			`use "browser" or "http"`,
		)
	}
	u, err := url.Parse(cfg.Content.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Newf("content.base_url: invalid url %q", cfg.Content.BaseURL)
	}
	if len(cfg.Content.Subjects) == 0 {
		return errors.WithHint(
			errors.New("content.subjects is empty"),
			"set content.subjects or HOROSCOPES_SIGNS (e.g. cancer,acuario)",
		)
	}
	for _, f := range []struct{ path, raw string }{
		{"content.navigation_timeout", cfg.Content.NavigationTimeout},
		{"content.element_timeout", cfg.Content.ElementTimeout},
		{"content.subject_delay", cfg.Content.SubjectDelay},
		{"schedule.startup_delay", cfg.Schedule.StartupDelay},
		{"schedule.send_now_delay", cfg.Schedule.SendNowDelay},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}

	if _, _, err := scheduler.ParseHHMM(cfg.Schedule.SendTime); err != nil {
		return errors.Wrap(err, "schedule.send_time")
	}
	if _, _, err := scheduler.ParseHHMM(cfg.Schedule.WeeklyTime); err != nil {
		return errors.Wrap(err, "schedule.weekly_time")
	}
	if _, err := ParseWeekday(cfg.Schedule.WeeklyDay); err != nil {
		return errors.Wrap(err, "schedule.weekly_day")
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return errors.Wrapf(err, "scheduler.timezone: %q", tz)
		}
	}

	switch cfg.Storage.Driver {
	case "file", "sqlite", "none":
	default:
		return errors.WithHint(
			errors.Newf("storage.driver: unknown driver %q", cfg.Storage.Driver),
			`use "file", "sqlite" or "none"`,
		)
	}
	return nil
}

// ParseWeekday accepts English weekday names (full or 3-letter), Spanish names, or 0..6 (0 = Sunday).
func ParseWeekday(s string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 || n > 6 {
			return 0, errors.Newf("weekday out of range: %d", n)
		}
		return time.Weekday(n), nil
	}
	switch v {
	case "sunday", "sun", "domingo":
		return time.Sunday, nil
	case "monday", "mon", "lunes":
		return time.Monday, nil
	case "tuesday", "tue", "martes":
		return time.Tuesday, nil
	case "wednesday", "wed", "miercoles", "miércoles":
		return time.Wednesday, nil
	case "thursday", "thu", "jueves":
		return time.Thursday, nil
	case "friday", "fri", "viernes":
		return time.Friday, nil
	case "saturday", "sat", "sabado", "sábado":
		return time.Saturday, nil
	}
	return 0, errors.Newf("unknown weekday %q", s)
}

func normalizeSubjects(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
