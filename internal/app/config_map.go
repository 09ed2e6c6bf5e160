package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"focusbot/internal/checkin"
	"focusbot/internal/focus"
	"focusbot/internal/session"
	"focusbot/internal/storage"
	logx "focusbot/pkg/logx"
)

const (
	defaultCommandTimeout = 10 * time.Second
	defaultRetention      = 720 * time.Hour
	sessionPruneEvery     = time.Minute
)

func mapStorageConfig(cfg *Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		keep, err := parseDurationOrDefault("storage.retention", sc.Retention, defaultRetention)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, Retention: keep}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// focusRuntime is the resolved focus section.
type focusRuntime struct {
	settings       focus.Settings
	sessionTTL     time.Duration
	commandTimeout time.Duration
}

func mapFocusConfig(cfg *Config) (focusRuntime, error) {
	def := focus.DefaultSettings()
	fc := cfg.Focus

	budget, err := intOrDefault("focus.default_budget_minutes", fc.DefaultBudgetMinutes, def.DefaultBudget)
	if err != nil {
		return focusRuntime{}, err
	}
	maxBudget, err := intOrDefault("focus.max_budget_minutes", fc.MaxBudgetMinutes, def.MaxBudget)
	if err != nil {
		return focusRuntime{}, err
	}
	if budget > maxBudget {
		return focusRuntime{}, fmt.Errorf("focus.default_budget_minutes (%d) exceeds focus.max_budget_minutes (%d)", budget, maxBudget)
	}
	perMinute, err := intOrDefault("focus.commands_per_minute", fc.CommandsPerMinute, def.CommandsPerMinute)
	if err != nil {
		return focusRuntime{}, err
	}
	ttl, err := parseDurationOrDefault("focus.session_ttl", fc.SessionTTL, session.DefaultTTL)
	if err != nil {
		return focusRuntime{}, err
	}
	timeout, err := parseDurationOrDefault("focus.command_timeout", fc.CommandTimeout, defaultCommandTimeout)
	if err != nil {
		return focusRuntime{}, err
	}

	ck := mapCheckinConfig(cfg)
	return focusRuntime{
		settings: focus.Settings{
			DefaultBudget:     budget,
			MaxBudget:         maxBudget,
			CommandsPerMinute: perMinute,
			Reminders:         ck.Enabled && ck.BlockReminders,
		},
		sessionTTL:     ttl,
		commandTimeout: timeout,
	}, nil
}

func mapCheckinConfig(cfg *Config) checkin.Config {
	if cfg == nil || cfg.Checkin == nil {
		return checkin.Config{}
	}
	c := cfg.Checkin
	return checkin.Config{
		Enabled:        c.Enabled,
		BlockReminders: c.BlockReminders,
		DailyPrompt:    strings.TrimSpace(c.DailyPrompt),
		Timezone:       strings.TrimSpace(c.Timezone),
		Chats:          append([]int64(nil), c.Chats...),
		RatePerSec:     c.RatePerSec,
	}
}

func mapLogConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// logTarget parses telegram.group_log. ok is false when unset.
func logTarget(cfg *Config) (chatID int64, ok bool, err error) {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("telegram.group_log: invalid chat id %q", raw)
	}
	return id, true, nil
}

// validateConfig rejects a config before it is committed, at boot and on
// every hot reload.
func validateConfig(_ context.Context, cfg *Config, ck *checkin.Service) error {
	if cfg == nil {
		return fmt.Errorf("config is empty")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := parseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, _, err := logTarget(cfg); err != nil {
		return err
	}
	if cfg.Logging.Telegram.RatePerSec < 0 {
		return fmt.Errorf("logging.telegram.rate_per_sec must be >= 0")
	}
	if _, err := mapFocusConfig(cfg); err != nil {
		return err
	}
	if ck != nil {
		if err := ck.Validate(mapCheckinConfig(cfg)); err != nil {
			return err
		}
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}
