package config

// Config is the on-disk configuration (JSON or YAML). Unknown keys are
// rejected at load time.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Focus    FocusConfig    `json:"focus"`

	Checkin *CheckinConfig `json:"checkin,omitempty"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// AllowedChatIDs restricts the bot to these chats. Empty allows all.
	AllowedChatIDs []int64 `json:"allowed_chat_ids,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// FocusConfig tunes planning sessions.
//
// Defaults (when omitted or zero):
//   - default_budget_minutes: 25
//   - max_budget_minutes: 480
//   - session_ttl: "12h"
//   - commands_per_minute: 20
//   - command_timeout: "10s"
type FocusConfig struct {
	DefaultBudgetMinutes int    `json:"default_budget_minutes,omitempty"`
	MaxBudgetMinutes     int    `json:"max_budget_minutes,omitempty"`
	SessionTTL           string `json:"session_ttl,omitempty"`
	CommandsPerMinute    int    `json:"commands_per_minute,omitempty"`
	CommandTimeout       string `json:"command_timeout,omitempty"`
}

// CheckinConfig controls proactive messages.
//
// Example:
//
//	"checkin": {
//	  "enabled": true,
//	  "block_reminders": true,
//	  "daily_prompt": "30 8 * * 1-5",
//	  "timezone": "Europe/Berlin",
//	  "chats": [123456789]
//	}
type CheckinConfig struct {
	Enabled        bool `json:"enabled"`
	BlockReminders bool `json:"block_reminders"`
	// DailyPrompt is a 5-field cron spec (or @daily style descriptor).
	DailyPrompt string  `json:"daily_prompt,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
	Chats       []int64 `json:"chats,omitempty"`
	RatePerSec  int     `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional audit trail.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/focusbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Retention drops sqlite audit rows older than this (default "720h").
	Retention string `json:"retention,omitempty"`
}
