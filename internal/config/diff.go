package config

import (
	"reflect"
	"strings"

	logx "focusbot/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ and returns log
// fields describing the new values. Secrets (bot token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	ot.Token, nt.Token = "", ""
	if !reflect.DeepEqual(ot, nt) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Int("telegram.allowed_chats", len(nt.AllowedChatIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram.token")
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		l := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.file_enabled", l.File.Enabled),
			logx.Bool("logging.telegram_enabled", l.Telegram.Enabled),
		)
	}

	if oldCfg.Focus != newCfg.Focus {
		f := newCfg.Focus
		changed = append(changed, "focus")
		attrs = append(attrs,
			logx.Int("focus.default_budget_minutes", f.DefaultBudgetMinutes),
			logx.Int("focus.max_budget_minutes", f.MaxBudgetMinutes),
			logx.String("focus.session_ttl", f.SessionTTL),
			logx.Int("focus.commands_per_minute", f.CommandsPerMinute),
		)
	}

	if !reflect.DeepEqual(oldCfg.Checkin, newCfg.Checkin) {
		changed = append(changed, "checkin")
		if c := newCfg.Checkin; c != nil {
			attrs = append(attrs,
				logx.Bool("checkin.enabled", c.Enabled),
				logx.Bool("checkin.block_reminders", c.BlockReminders),
				logx.String("checkin.daily_prompt", c.DailyPrompt),
				logx.String("checkin.timezone", c.Timezone),
				logx.Int("checkin.chats", len(c.Chats)),
			)
		} else {
			attrs = append(attrs, logx.Bool("checkin.present", false))
		}
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if s := newCfg.Storage; s != nil {
			attrs = append(attrs, logx.String("storage.driver", s.Driver))
		}
	}
	return changed, attrs
}

// HasSection reports whether name is in a SummarizeConfigChange result.
func HasSection(sections []string, name string) bool {
	for _, s := range sections {
		if s == name {
			return true
		}
	}
	return false
}
