package focus

import (
	"fmt"
	"strings"
	"time"

	"focusbot/internal/session"
	"focusbot/internal/triage"
	"focusbot/pkg/tgui"
)

const maxTitleRunes = 120

// RenderPlan formats a planned session in four sections: Summary, Timeline,
// Checklist and Check-in. Checklist numbers are the ones /done expects.
func RenderPlan(sess *session.Session, reminders bool) string {
	var b strings.Builder
	sum := triage.Summarize(sess.Plan)
	tasks := sess.Current()
	unscheduled := triage.Unscheduled(openTasks(tasks), sess.Plan)

	fmt.Fprintf(&b, "🎯 <b>Focus plan</b> · %d min\n\n", sess.Budget)

	b.WriteString("<b>Summary</b>\n")
	fmt.Fprintf(&b, "• %s, %d min focused\n", plural(sum.TaskBlocks, "block"), sum.FocusMinutes+sum.PartialMinutes)
	if sum.PartialMinutes > 0 {
		fmt.Fprintf(&b, "• %d min as a partial block\n", sum.PartialMinutes)
	}
	if sum.WrapUpMinutes > 0 {
		fmt.Fprintf(&b, "• %d min wrap-up\n", sum.WrapUpMinutes)
	}
	if n := len(unscheduled); n > 0 {
		fmt.Fprintf(&b, "• %s left for the next session\n", plural(n, "task"))
	}

	b.WriteString("\n<b>Timeline</b>\n")
	for _, blk := range sess.Plan {
		icon := ""
		switch blk.Kind {
		case triage.BlockPartial:
			icon = "◐ "
		case triage.BlockWrapUp:
			icon = "📝 "
		}
		fmt.Fprintf(&b, "<code>%s</code> %s%s\n", span(blk), icon, tgui.Label(blk.TaskTitle, maxTitleRunes))
	}

	if len(tasks) > 0 {
		b.WriteString("\n<b>Checklist</b>\n")
		b.WriteString(checklist(tasks, false))
	}

	b.WriteString("\n<b>Check-in</b>\n")
	if reminders {
		b.WriteString("I'll ping you when each block ends. ")
	}
	b.WriteString("Send <code>/done &lt;n&gt;</code> as you finish tasks, <code>/status</code> to see progress.")
	return b.String()
}

// RenderTasks lists tasks numbered from 1. With scores the priority score is
// shown as well.
func RenderTasks(title string, tasks []triage.Task, scores bool) string {
	if len(tasks) == 0 {
		return "No tasks found. Put one task per line after the command."
	}
	return tgui.B(title).String() + "\n" + checklist(tasks, scores)
}

// RenderStatus summarises a session; nil means no live session.
func RenderStatus(sess *session.Session, now time.Time) string {
	if sess == nil || len(sess.Current()) == 0 {
		return "No active session. Start one with <code>/plan</code>."
	}
	tasks := sess.Current()
	done := len(tasks) - len(openTasks(tasks))

	var b strings.Builder
	b.WriteString("📋 <b>Session</b>\n")
	fmt.Fprintf(&b, "• %d/%d tasks done\n", done, len(tasks))
	if len(sess.Ranked) == 0 {
		b.WriteString("• not ranked yet (<code>/rank</code>)\n")
	}
	if len(sess.Plan) == 0 || sess.PlannedAt.IsZero() {
		b.WriteString("• no schedule yet (<code>/schedule</code>)\n")
	} else {
		elapsed := int(now.Sub(sess.PlannedAt) / time.Minute)
		switch cur, ok := blockAt(sess.Plan, elapsed); {
		case ok:
			fmt.Fprintf(&b, "• minute %d of %d: %s\n", elapsed, sess.Budget, tgui.I(tgui.TruncRunes(cur.TaskTitle, maxTitleRunes)))
		case elapsed >= sess.Budget:
			fmt.Fprintf(&b, "• %d min session finished\n", sess.Budget)
		}
	}
	b.WriteString("\n")
	b.WriteString(checklist(tasks, false))
	return b.String()
}

func checklist(tasks []triage.Task, scores bool) string {
	var b strings.Builder
	for i, t := range tasks {
		box := "☐"
		if t.Completed {
			box = "☑"
		}
		fmt.Fprintf(&b, "%d. %s %s · %d min", i+1, box, tgui.Label(t.Title, maxTitleRunes), t.Minutes())
		if t.Deadline != "" {
			fmt.Fprintf(&b, " · due %s", tgui.Esc(t.Deadline))
		}
		if scores {
			fmt.Fprintf(&b, " · <code>%.2f</code>", t.PriorityScore)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func openTasks(tasks []triage.Task) []triage.Task {
	out := make([]triage.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out
}

func blockAt(blocks []triage.Block, minute int) (triage.Block, bool) {
	for _, b := range blocks {
		if minute >= b.StartMinute && minute < b.EndMinute {
			return b, true
		}
	}
	return triage.Block{}, false
}

func span(b triage.Block) string {
	return fmt.Sprintf("%s–%s", clock(b.StartMinute), clock(b.EndMinute))
}

// clock renders an offset in minutes as "MM", or "H:MM" past the hour.
func clock(m int) string {
	if m < 60 {
		return fmt.Sprintf("%02d", m)
	}
	return fmt.Sprintf("%d:%02d", m/60, m%60)
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
