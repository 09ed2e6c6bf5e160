package focus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"focusbot/internal/eventbus"
	"focusbot/internal/session"
	"focusbot/internal/tools"
	router "focusbot/internal/transport/telegram/router"
	"focusbot/internal/triage"
	logx "focusbot/pkg/logx"
	"focusbot/pkg/tgui"
)

var errNoTasks = errors.New("no tasks")

const taskUsage = "/plan [minutes]\n- first task (15 min)\n- second task due today"

// Commands returns the chat commands served by s.
func (s *Service) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "plan",
			Aliases:     []string{"p"},
			Description: "extract, rank and schedule tasks",
			Usage:       taskUsage + "\n\nWithout task lines the open tasks are rescheduled.",
			Handle:      s.guard(s.handlePlan),
		},
		{
			Route:       "tasks",
			Description: "extract tasks without scheduling",
			Usage:       "/tasks\n- first task\n- second task",
			Handle:      s.guard(s.handleTasks),
		},
		{
			Route:       "rank",
			Description: "rank the current tasks",
			Usage:       "/rank",
			Handle:      s.guard(s.handleRank),
		},
		{
			Route:       "schedule",
			Description: "pack open tasks into a session",
			Usage:       "/schedule [minutes]",
			Handle:      s.guard(s.handleSchedule),
		},
		{
			Route:       "done",
			Aliases:     []string{"d"},
			Description: "mark a checklist task done",
			Usage:       "/done <n>",
			Handle:      s.guard(s.handleDone),
		},
		{
			Route:       "status",
			Description: "show session progress",
			Usage:       "/status",
			Handle:      s.guard(s.handleStatus),
		},
		{
			Route:       "reset",
			Description: "forget the current session",
			Usage:       "/reset",
			Handle:      s.guard(s.handleReset),
		},
		{
			Route:       "tools",
			Description: "list planning tools",
			Usage:       "/tools [--json]",
			Handle:      s.guard(s.handleTools),
		},
		{
			Route:       "tool",
			Description: "call a planning tool with JSON arguments",
			Usage:       "/tool <name> [json]\n/tool pack_schedule {\"available_minutes\": 45}",
			Handle:      s.guard(s.handleTool),
		},
	}
}

func keyOf(req *router.Request) session.Key {
	return session.Key{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID}
}

// guard applies the per-chat rate limit.
func (s *Service) guard(h router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		if !s.allow(keyOf(req)) {
			return req.Reply(ctx, "⏳ Too many commands, slow down a little.")
		}
		return h(ctx, req)
	}
}

// budgetArg splits an optional leading budget off the command line. The
// remaining text is task input. A number followed by a unit word is a budget
// only when nothing else is on the line; "15 min fix login bug" stays a task.
func (s *Service) budgetArg(req *router.Request) (budget int, rest string, err error) {
	set := s.Settings()
	budget = set.DefaultBudget
	rest = req.ArgText
	if n, per, ok := numberWithUnit(req.Args); ok {
		if len(req.Args) > 2 {
			return budget, rest, nil
		}
		if n > set.MaxBudget {
			return budget, "", errBudgetRange
		}
		budget, err = parseBudget(strconv.Itoa(n*per), set.MaxBudget)
		return budget, "", err
	}
	if len(req.Args) > 0 && looksLikeBudget(req.Args[0]) {
		budget, err = parseBudget(req.Args[0], set.MaxBudget)
		rest = strings.TrimSpace(strings.TrimPrefix(req.ArgText, req.Args[0]))
	} else if v, ok := req.Flags["budget"]; ok {
		budget, err = parseBudget(v, set.MaxBudget)
		rest = ""
	}
	return budget, rest, err
}

func numberWithUnit(args []string) (n, per int, ok bool) {
	if len(args) < 2 {
		return 0, 0, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, false
	}
	per, ok = triage.UnitMinutes(args[1])
	return n, per, ok
}

func joinInput(rest, body string) string {
	switch {
	case rest == "":
		return body
	case body == "":
		return rest
	default:
		return rest + "\n" + body
	}
}

func (s *Service) replyErr(ctx context.Context, req *router.Request, err error) error {
	msg := "⚠️ " + html.EscapeString(err.Error())
	switch {
	case errors.Is(err, errNoTasks):
		msg = "No tasks found. Send them one per line:\n<pre>" + html.EscapeString(taskUsage) + "</pre>"
	case errors.Is(err, errBudgetRange), errors.Is(err, triage.ErrInvalidBudget):
		msg = fmt.Sprintf("⚠️ Budget must be between 1 and %d minutes.", s.Settings().MaxBudget)
	}
	_ = req.Reply(ctx, msg)
	return err
}

func (s *Service) handlePlan(ctx context.Context, req *router.Request) error {
	start := time.Now()
	key := keyOf(req)
	budget, rest, err := s.budgetArg(req)
	if err != nil {
		return s.replyErr(ctx, req, err)
	}
	raw := joinInput(rest, req.Body)

	sess, err := s.sessions.Update(key, func(sess *session.Session) error {
		var tasks []triage.Task
		if strings.TrimSpace(raw) != "" {
			if err := s.exec(ctx, sess, tools.ToolExtract, map[string]any{"raw_text": raw}, nil); err != nil {
				return err
			}
			if len(sess.Tasks) == 0 {
				return errNoTasks
			}
			if err := s.exec(ctx, sess, tools.ToolRank, map[string]any{}, nil); err != nil {
				return err
			}
			tasks = openTasks(sess.Ranked)
			if len(tasks) == 0 {
				return errNoTasks
			}
		} else {
			tasks = openTasks(sess.Current())
			if len(tasks) == 0 {
				return errNoTasks
			}
			if err := s.exec(ctx, sess, tools.ToolRank, map[string]any{"tasks": sess.Current()}, nil); err != nil {
				return err
			}
			tasks = openTasks(sess.Ranked)
		}
		return s.exec(ctx, sess, tools.ToolPack, map[string]any{"tasks": tasks, "available_minutes": budget}, nil)
	})
	s.audit(ctx, req.FromID, req.FromUsername, key, auditInfo{action: "plan", sess: sess, took: time.Since(start), err: err})
	if err != nil {
		return s.replyErr(ctx, req, err)
	}

	s.publishPlan(sess)
	req.Logger.Info("plan created",
		logx.String("session", sess.ID),
		logx.Int("tasks", len(sess.Current())),
		logx.Int("blocks", len(sess.Plan)),
		logx.Int("budget", sess.Budget),
	)
	return req.Reply(ctx, RenderPlan(sess, s.Settings().Reminders))
}

func (s *Service) handleTasks(ctx context.Context, req *router.Request) error {
	key := keyOf(req)
	raw := req.Text()
	sess, err := s.sessions.Update(key, func(sess *session.Session) error {
		if err := s.exec(ctx, sess, tools.ToolExtract, map[string]any{"raw_text": raw}, nil); err != nil {
			return err
		}
		if len(sess.Tasks) == 0 {
			return errNoTasks
		}
		return nil
	})
	if err != nil {
		return s.replyErr(ctx, req, err)
	}
	s.audit(ctx, req.FromID, req.FromUsername, key, auditInfo{action: "tasks", sess: sess})
	return req.Reply(ctx, RenderTasks(fmt.Sprintf("📥 %s", plural(len(sess.Tasks), "task")), sess.Tasks, false)+
		"\nNext: <code>/rank</code> or <code>/schedule</code>.")
}

func (s *Service) handleRank(ctx context.Context, req *router.Request) error {
	key := keyOf(req)
	sess, err := s.sessions.Update(key, func(sess *session.Session) error {
		if len(sess.Tasks) == 0 {
			return errNoTasks
		}
		return s.exec(ctx, sess, tools.ToolRank, map[string]any{"tasks": sess.Tasks}, nil)
	})
	if err != nil {
		return s.replyErr(ctx, req, err)
	}
	s.audit(ctx, req.FromID, req.FromUsername, key, auditInfo{action: "rank", sess: sess})
	return req.Reply(ctx, RenderTasks("🏁 Ranked", sess.Ranked, true))
}

func (s *Service) handleSchedule(ctx context.Context, req *router.Request) error {
	start := time.Now()
	key := keyOf(req)
	budget, _, err := s.budgetArg(req)
	if err != nil {
		return s.replyErr(ctx, req, err)
	}
	sess, err := s.sessions.Update(key, func(sess *session.Session) error {
		open := openTasks(sess.Current())
		if len(open) == 0 {
			return errNoTasks
		}
		return s.exec(ctx, sess, tools.ToolPack, map[string]any{"tasks": open, "available_minutes": budget}, nil)
	})
	s.audit(ctx, req.FromID, req.FromUsername, key, auditInfo{action: "schedule", sess: sess, took: time.Since(start), err: err})
	if err != nil {
		return s.replyErr(ctx, req, err)
	}
	s.publishPlan(sess)
	return req.Reply(ctx, RenderPlan(sess, s.Settings().Reminders))
}

func (s *Service) handleDone(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, "Usage: <code>/done &lt;n&gt;</code> (number from the checklist)")
	}
	n, err := strconv.Atoi(req.Args[0])
	if err != nil {
		return req.Reply(ctx, "⚠️ Task number must be an integer.")
	}
	key := keyOf(req)
	var done triage.Task
	sess, err := s.sessions.Update(key, func(sess *session.Session) error {
		var err error
		done, err = sess.MarkDone(n)
		return err
	})
	if err != nil {
		if errors.Is(err, session.ErrNoTasks) {
			err = errNoTasks
		}
		return s.replyErr(ctx, req, err)
	}
	s.audit(ctx, req.FromID, req.FromUsername, key, auditInfo{action: "done", sess: sess, meta: map[string]any{"task": done.Title}})

	left := len(openTasks(sess.Current()))
	msg := fmt.Sprintf("✅ %s done.", tgui.B(done.Title))
	if left == 0 {
		msg += "\n🎉 All tasks finished."
	} else {
		msg += fmt.Sprintf("\n%s to go.", plural(left, "task"))
	}
	return req.Reply(ctx, msg)
}

func (s *Service) handleStatus(ctx context.Context, req *router.Request) error {
	sess, _ := s.sessions.Get(keyOf(req))
	return req.Reply(ctx, RenderStatus(sess, s.now()))
}

func (s *Service) handleReset(ctx context.Context, req *router.Request) error {
	key := keyOf(req)
	had := s.sessions.Reset(key)
	s.bus.Publish(eventbus.Event{Type: EventSessionReset, Data: ResetEvent{Key: key}})
	s.audit(ctx, req.FromID, req.FromUsername, key, auditInfo{action: "reset"})
	if !had {
		return req.Reply(ctx, "Nothing to reset.")
	}
	return req.Reply(ctx, "🧹 Session cleared.")
}

func (s *Service) handleTools(ctx context.Context, req *router.Request) error {
	schemas := s.tools.Schemas()
	if req.BoolFlags["json"] {
		b, err := json.MarshalIndent(schemas, "", "  ")
		if err != nil {
			return err
		}
		return req.Reply(ctx, "<pre>"+html.EscapeString(string(b))+"</pre>")
	}
	var b strings.Builder
	b.WriteString("🧰 <b>Tools</b>\n")
	for _, sc := range schemas {
		fmt.Fprintf(&b, "• %s: %s\n", tgui.Code(sc.Name), tgui.Esc(sc.Description))
	}
	b.WriteString("\nCall one with <code>/tool &lt;name&gt; {json}</code>.")
	return req.Reply(ctx, b.String())
}

func (s *Service) handleTool(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, "Usage: <code>/tool &lt;name&gt; [json]</code>. See <code>/tools</code>.")
	}
	name := req.Args[0]
	args := joinInput(strings.TrimSpace(strings.TrimPrefix(req.ArgText, name)), req.Body)
	key := keyOf(req)

	var res tools.Result
	sess, _ := s.sessions.Update(key, func(sess *session.Session) error {
		res = s.tools.Execute(ctx, name, sess, json.RawMessage(args))
		if !res.OK {
			return res.Err
		}
		return nil
	})
	s.audit(ctx, req.FromID, req.FromUsername, key, auditInfo{action: "tool", sess: sess, err: res.Err, meta: map[string]any{"tool": name}})
	if res.OK && name == tools.ToolPack {
		s.publishPlan(sess)
	}

	body := res.Output
	if !res.OK {
		body, _ = json.Marshal(res)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(body)
	}
	status := "✅"
	if !res.OK {
		status = "⚠️"
	}
	_ = req.Reply(ctx, fmt.Sprintf("%s <code>%s</code>\n<pre>%s</pre>", status, html.EscapeString(name), html.EscapeString(pretty.String())))
	return res.Err
}
