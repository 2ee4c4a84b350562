package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Environment overrides are applied on top of the decoded file, see ApplyEnv.
type Config struct {
	Channel   ChannelConfig   `json:"channel"`
	Content   ContentConfig   `json:"content"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
}

// ChannelConfig selects the messaging channel driver and the single recipient.
//
// Example:
//
//	"channel": { "driver": "whatsapp", "recipient": "34600111222", "session_dir": "./.wa_session" }
type ChannelConfig struct {
	// Driver is "whatsapp" (default) or "telegram".
	Driver string `json:"driver,omitempty"`
	// Recipient is a phone number / JID for whatsapp, a numeric chat id for telegram.
	Recipient  string `json:"recipient"`
	SessionDir string `json:"session_dir,omitempty"`
	// TelegramToken is only read by the telegram driver (never logged).
	TelegramToken string `json:"telegram_token,omitempty"`
	// PollTimeout is the telegram long-poll timeout.
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outbound sends. 0 means default (1/s).
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

type ContentConfig struct {
	// Driver is "browser" (headless chrome, default) or "http".
	Driver   string   `json:"driver,omitempty"`
	BaseURL  string   `json:"base_url,omitempty"`
	Subjects []string `json:"subjects"`

	NavigationTimeout string `json:"navigation_timeout,omitempty"`
	ElementTimeout    string `json:"element_timeout,omitempty"`
	SubjectDelay      string `json:"subject_delay,omitempty"`

	UserAgent  string `json:"user_agent,omitempty"`
	ChromePath string `json:"chrome_path,omitempty"`
}

type ScheduleConfig struct {
	// SendTime is the local HH:MM of the daily run (e.g. "8:00").
	SendTime      string `json:"send_time,omitempty"`
	WeeklyEnabled bool   `json:"weekly_enabled"`
	// WeeklyDay is an English weekday name ("sunday") or 0..6.
	WeeklyDay  string `json:"weekly_day,omitempty"`
	WeeklyTime string `json:"weekly_time,omitempty"`

	SendOnStartup bool   `json:"send_on_startup"`
	StartupDelay  string `json:"startup_delay,omitempty"`
	SendNowDelay  string `json:"send_now_delay,omitempty"`
}

// SchedulerConfig controls the trigger service.
type SchedulerConfig struct {
	// Trigger timezone (IANA name). Empty means the process local zone.
	Timezone string `json:"timezone,omitempty"`
}

type DeliveryConfig struct {
	LogMessages bool `json:"log_messages"`
}

// StorageConfig controls the run log.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./logs/horoscope-messages.log" }
type StorageConfig struct {
	// Driver is "file" (default), "sqlite" or "none".
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MetricsConfig controls the optional prometheus listener.
// Prefer binding to localhost (e.g. "127.0.0.1:9090").
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}
