package app

import (
	"context"
	"fmt"
	"html"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"focusbot/internal/eventbus"
	"focusbot/internal/runtime/supervisor"
	"focusbot/internal/storage"
	"focusbot/internal/transport/telegram/router"
)

const (
	auditDefaultLimit = 10
	auditMaxLimit     = 50
)

// systemCommands are the operational commands owned by the app itself.
func (a *App) systemCommands() []router.Command {
	return []router.Command{
		{
			Route:       "health",
			Description: "runtime health",
			Usage:       "/health",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdHealth,
		},
		{
			Route:       "audit",
			Description: "recent planning activity",
			Usage:       "/audit [n] [--all]",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdAudit,
		},
	}
}

func (a *App) cmdHealth(ctx context.Context, req *router.Request) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	sups := map[string]*Supervisor{}
	if a.serv != nil {
		if a.serv.AppSupervisor != nil {
			sups["app"] = a.serv.AppSupervisor
		}
		for name, s := range a.serv.RuntimeSupervisors.Snapshot() {
			sups[name] = s
		}
	}
	return req.Reply(ctx, renderHealth(healthView{
		uptime:   time.Since(a.startedAt),
		sessions: a.sessions.Len(),
		dropped:  eventbus.Dropped(a.bus),
		heapMB:   float64(m.HeapAlloc) / (1 << 20),
		storage:  a.store != nil,
		sups:     sups,
	}))
}

type healthView struct {
	uptime   time.Duration
	sessions int
	dropped  uint64
	heapMB   float64
	storage  bool
	sups     map[string]*Supervisor
}

func renderHealth(v healthView) string {
	status := "Running"
	names := make([]string, 0, len(v.sups))
	for name, s := range v.sups {
		names = append(names, name)
		if s.Err() != nil {
			status = "Degraded"
		}
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("🏥 <b>Health</b>\n")
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Uptime: %s\n", v.uptime.Round(time.Second))
	fmt.Fprintf(&b, "Sessions: %d live\n", v.sessions)
	fmt.Fprintf(&b, "Heap: %.1f MB, goroutines: %d\n", v.heapMB, runtime.NumGoroutine())
	if v.dropped > 0 {
		fmt.Fprintf(&b, "Events dropped: %d\n", v.dropped)
	}
	if v.storage {
		b.WriteString("Audit: on\n")
	} else {
		b.WriteString("Audit: off\n")
	}
	for _, name := range names {
		writeSupervisor(&b, name, v.sups[name].Snapshot())
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeSupervisor(b *strings.Builder, name string, snap supervisor.Snapshot) {
	fmt.Fprintf(b, "\n<b>%s</b>: %d active, %d started\n", html.EscapeString(name), snap.Counters.Active, snap.Counters.Started)
	if snap.FirstError != "" {
		fmt.Fprintf(b, "  error: <code>%s</code>\n", html.EscapeString(snap.FirstError))
	}
	for _, g := range snap.Goroutines {
		state := "stopped"
		if g.Active > 0 {
			state = "up"
		}
		fmt.Fprintf(b, "  • %s %s", html.EscapeString(g.Name), state)
		if g.Restarts > 0 {
			fmt.Fprintf(b, ", restarts %d", g.Restarts)
		}
		if g.Panics > 0 {
			fmt.Fprintf(b, ", panics %d", g.Panics)
		}
		if g.LastErr != "" {
			fmt.Fprintf(b, ", last err: %s", html.EscapeString(g.LastErr))
		}
		b.WriteByte('\n')
	}
}

func (a *App) cmdAudit(ctx context.Context, req *router.Request) error {
	if a.store == nil {
		return req.Reply(ctx, "Audit storage is disabled. Set <code>storage.driver</code> to enable it.")
	}
	limit := auditDefaultLimit
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 {
			return req.Reply(ctx, "Usage: <code>/audit [n] [--all]</code>")
		}
		limit = min(n, auditMaxLimit)
	}
	chatID := req.Chat.ChatID
	if req.BoolFlags["all"] {
		chatID = 0
	}
	entries, err := a.store.RecentAudit(ctx, chatID, limit)
	if err != nil {
		_ = req.Reply(ctx, "⚠️ audit query failed")
		return err
	}
	return req.Reply(ctx, renderAudit(entries, chatID == 0))
}

func renderAudit(entries []storage.AuditEntry, showChat bool) string {
	if len(entries) == 0 {
		return "No planning activity recorded yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 <b>Last %d actions</b>\n", len(entries))
	for _, e := range entries {
		mark := "✓"
		if e.Error != "" {
			mark = "✗"
		}
		fmt.Fprintf(&b, "\n<code>%s</code> %s %s", e.At.Format("01-02 15:04"), mark, html.EscapeString(e.Action))
		if e.Tasks > 0 {
			fmt.Fprintf(&b, " tasks=%d", e.Tasks)
		}
		if e.Blocks > 0 {
			fmt.Fprintf(&b, " blocks=%d", e.Blocks)
		}
		if e.Budget > 0 {
			fmt.Fprintf(&b, " %dm", e.Budget)
		}
		if e.ActorUsername != "" {
			fmt.Fprintf(&b, " @%s", html.EscapeString(e.ActorUsername))
		}
		if showChat {
			fmt.Fprintf(&b, " chat=%d", e.ChatID)
		}
		if e.Error != "" {
			fmt.Fprintf(&b, "\n  <i>%s</i>", html.EscapeString(e.Error))
		}
	}
	return b.String()
}
