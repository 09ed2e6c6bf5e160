package router

import (
	"sort"
	"strings"
	"unicode"

	kit "focusbot/internal/transport"
)

const (
	maxMenuCommandLen = 32
	maxMenuDescLen    = 256
	maxMenuEntries    = 100
)

// sanitizeTelegramCommand converts a route or alias into a Telegram bot
// command name ([a-z0-9_]{1,32}, starting with a letter).
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == '/' || unicode.IsSpace(r):
			if b.Len() > 0 && !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := clipCommand(strings.Trim(b.String(), "_"))
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = clipCommand("cmd_" + out)
	}
	return out
}

func clipCommand(s string) string {
	if len(s) > maxMenuCommandLen {
		s = strings.TrimRight(s[:maxMenuCommandLen], "_")
	}
	return s
}

// telegramCommandNameFromRoute joins a route with underscores:
//
//	["tool","list"] -> "tool_list"
func telegramCommandNameFromRoute(route []string) (string, bool) {
	if len(route) == 0 {
		return "", false
	}
	out := sanitizeTelegramCommand(strings.Join(route, "_"))
	return out, out != ""
}

// buildTelegramMenuCommands lists top-level commands first, then shortcuts
// for multi-token routes.
func buildTelegramMenuCommands(root *cmdNode, leafCmds []Command) []kit.BotCommand {
	type entry struct {
		cmd  string
		desc string
		prio int
	}
	byCmd := map[string]entry{}
	add := func(cmd, desc string, prio int) {
		cmd = sanitizeTelegramCommand(cmd)
		if cmd == "" {
			return
		}
		desc = strings.ReplaceAll(strings.TrimSpace(desc), "\n", " ")
		if desc == "" {
			desc = cmd
		}
		if len(desc) > maxMenuDescLen {
			desc = desc[:maxMenuDescLen]
		}
		if cur, ok := byCmd[cmd]; ok {
			if prio > cur.prio || (prio == cur.prio && len(desc) >= len(cur.desc)) {
				return
			}
		}
		byCmd[cmd] = entry{cmd: cmd, desc: desc, prio: prio}
	}

	if root != nil {
		for _, name := range root.childNames() {
			n, _ := root.child(name)
			desc := summarizeNodeDesc(n)
			if nodeIsOwnerOnly(n) {
				desc = "🔒 " + desc
			}
			add(name, desc, 0)
		}
	}
	for _, c := range leafCmds {
		route := splitRoute(c.Route)
		if len(route) < 2 {
			continue
		}
		menu, ok := telegramCommandNameFromRoute(route)
		if !ok {
			continue
		}
		desc := strings.TrimSpace(c.Description)
		if desc == "" {
			desc = strings.Join(route, " ")
		}
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		add(menu, desc, 1)
	}

	entries := make([]entry, 0, len(byCmd))
	for _, e := range byCmd {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].prio != entries[j].prio {
			return entries[i].prio < entries[j].prio
		}
		return entries[i].cmd < entries[j].cmd
	})

	out := make([]kit.BotCommand, 0, min(len(entries), maxMenuEntries))
	for _, e := range entries {
		if len(out) == maxMenuEntries {
			break
		}
		out = append(out, kit.BotCommand{Command: e.cmd, Description: e.desc})
	}
	return out
}
