package focus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"focusbot/internal/eventbus"
	"focusbot/internal/session"
	"focusbot/internal/storage"
	"focusbot/internal/transport"
	"focusbot/internal/transport/telegram/router"
	"focusbot/internal/transport/transporttest"
	logx "focusbot/pkg/logx"
)

const sampleTasks = `- Review 3 pull requests
- Fix authentication bug (15 min)
- Write API documentation
- Reply to Sarah about Q4 planning`

type memAudit struct {
	mu      sync.Mutex
	entries []storage.AuditEntry
}

func (m *memAudit) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *memAudit) RecentAudit(context.Context, int64, int) ([]storage.AuditEntry, error) {
	return nil, nil
}

func (m *memAudit) Close() error { return nil }

func (m *memAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	svc     *Service
	adapter *transporttest.Adapter
	bus     eventbus.Bus
	audit   *memAudit
	cmds    map[string]router.HandlerFunc
}

func newFixture(t *testing.T, set Settings) *fixture {
	t.Helper()
	f := &fixture{adapter: transporttest.New(), bus: eventbus.New(), audit: &memAudit{}}
	f.svc = New(Deps{
		Sessions: session.NewStore(time.Hour),
		Bus:      f.bus,
		Store:    f.audit,
	}, set)
	f.cmds = map[string]router.HandlerFunc{}
	for _, c := range f.svc.Commands() {
		f.cmds[c.Route] = c.Handle
	}
	return f
}

// run invokes a command the way the router would for "/route argText\nbody".
func (f *fixture) run(t *testing.T, chatID int64, route, argText, body string) (string, error) {
	t.Helper()
	h, ok := f.cmds[route]
	if !ok {
		t.Fatalf("no command %q", route)
	}
	req := &router.Request{
		Chat:      transport.ChatTarget{ChatID: chatID},
		FromID:    42,
		Command:   route,
		ArgText:   argText,
		Body:      body,
		Flags:     map[string]string{},
		BoolFlags: map[string]bool{},
		Adapter:   f.adapter,
		Logger:    logx.Nop(),
	}
	for _, a := range strings.Fields(argText) {
		if strings.HasPrefix(a, "--") {
			req.BoolFlags[strings.TrimPrefix(a, "--")] = true
			continue
		}
		req.Args = append(req.Args, a)
	}
	f.adapter.Reset()
	err := h(context.Background(), req)
	last, ok := f.adapter.Last()
	if !ok {
		t.Fatalf("/%s sent no reply", route)
	}
	return last.Text, err
}

func TestPlanRendersAllSections(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Settings{Reminders: true})
	events, unsub := f.bus.Subscribe(4, EventPlanCreated)
	defer unsub()

	reply, err := f.run(t, 1, "plan", "", sampleTasks)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for _, want := range []string{
		"<b>Summary</b>", "<b>Timeline</b>", "<b>Checklist</b>", "<b>Check-in</b>",
		"2 blocks, 20 min focused", "5 min wrap-up", "2 tasks left for the next session",
		"<code>00–10</code> Review 3 pull requests",
		"<code>10–20</code> Write API documentation",
		"<code>20–25</code> 📝 Wrap up &amp; notes for next session",
		"I'll ping you",
	} {
		if !strings.Contains(reply, want) {
			t.Fatalf("reply lacks %q:\n%s", want, reply)
		}
	}

	select {
	case ev := <-events:
		pe, ok := ev.Data.(PlanEvent)
		if !ok || pe.Budget != 25 || len(pe.Blocks) != 3 || pe.Key.ChatID != 1 {
			t.Fatalf("event = %+v", ev.Data)
		}
	default:
		t.Fatal("no plan event")
	}
	if got := f.audit.actions(); len(got) != 1 || got[0] != "plan" {
		t.Fatalf("audit = %v", got)
	}
}

func TestPlanBudgetArgument(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Settings{MaxBudget: 120})

	reply, err := f.run(t, 1, "plan", "60 Deep work 45 min", "")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !strings.Contains(reply, "· 60 min") || !strings.Contains(reply, "Deep work") {
		t.Fatalf("reply:\n%s", reply)
	}

	reply, err = f.run(t, 1, "plan", "500", sampleTasks)
	if !errors.Is(err, errBudgetRange) || !strings.Contains(reply, "between 1 and 120") {
		t.Fatalf("over-max budget: err=%v reply=%q", err, reply)
	}
}

func TestPlanNumberWithUnit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Settings{MaxBudget: 120})

	tests := []struct {
		name   string
		args   string
		body   string
		budget string
		want   []string
		reject []string
	}{
		{
			name:   "task line keeps its estimate",
			args:   "15 min fix login bug",
			budget: "<b>Focus plan</b> · 25 min",
			want:   []string{"fix login bug · 15 min", "<code>00–15</code> fix login bug"},
			reject: []string{"min fix login bug"},
		},
		{name: "bare minutes", args: "45 min", body: sampleTasks, budget: "<b>Focus plan</b> · 45 min"},
		{name: "hours", args: "1 hour", body: sampleTasks, budget: "<b>Focus plan</b> · 60 min"},
	}
	for i, tt := range tests {
		reply, err := f.run(t, int64(100+i), "plan", tt.args, tt.body)
		if err != nil {
			t.Fatalf("%s: plan: %v", tt.name, err)
		}
		for _, want := range append([]string{tt.budget}, tt.want...) {
			if !strings.Contains(reply, want) {
				t.Fatalf("%s: reply lacks %q:\n%s", tt.name, want, reply)
			}
		}
		for _, bad := range tt.reject {
			if strings.Contains(reply, bad) {
				t.Fatalf("%s: reply has %q:\n%s", tt.name, bad, reply)
			}
		}
	}

	reply, err := f.run(t, 1, "plan", "3 hours", sampleTasks)
	if !errors.Is(err, errBudgetRange) || !strings.Contains(reply, "between 1 and 120") {
		t.Fatalf("over-max unit budget: err=%v reply=%q", err, reply)
	}
}

func TestPlanSkipsCompletedInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Settings{})

	reply, err := f.run(t, 1, "plan", "", "- [x] Pay rent\n- [ ] Buy milk")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !strings.Contains(reply, "</code> Buy milk") {
		t.Fatalf("open task not scheduled:\n%s", reply)
	}
	if strings.Contains(reply, "</code> Pay rent") {
		t.Fatalf("completed task scheduled:\n%s", reply)
	}

	reply, err = f.run(t, 2, "plan", "", "- [x] Pay rent")
	if !errors.Is(err, errNoTasks) || !strings.Contains(reply, "No tasks found") {
		t.Fatalf("all done: err=%v reply=%q", err, reply)
	}
	if _, ok := f.svc.sessions.Get(session.Key{ChatID: 2}); ok {
		t.Fatal("session stored for an all-done plan")
	}
}

func TestPlanWithoutTasks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Settings{})
	reply, err := f.run(t, 1, "plan", "", "")
	if !errors.Is(err, errNoTasks) || !strings.Contains(reply, "No tasks found") {
		t.Fatalf("err=%v reply=%q", err, reply)
	}
	if _, ok := f.svc.sessions.Get(session.Key{ChatID: 1}); ok {
		t.Fatal("failed plan created a session")
	}
}

func TestStepwiseFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Settings{})

	reply, err := f.run(t, 7, "tasks", "", "- Write docs\n- Reply to urgent email due today")
	if err != nil || !strings.Contains(reply, "2 tasks") {
		t.Fatalf("tasks: err=%v reply=%q", err, reply)
	}

	reply, err = f.run(t, 7, "rank", "", "")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if strings.Index(reply, "Reply to urgent email") > strings.Index(reply, "Write docs") {
		t.Fatalf("urgent task not first:\n%s", reply)
	}

	reply, err = f.run(t, 7, "done", "1", "")
	if err != nil || !strings.Contains(reply, "Reply to urgent email</b> done") || !strings.Contains(reply, "1 task to go") {
		t.Fatalf("done: err=%v reply=%q", err, reply)
	}

	reply, err = f.run(t, 7, "schedule", "15", "")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !strings.Contains(reply, "· 15 min") || !strings.Contains(reply, "<code>00–10</code> Write docs") {
		t.Fatalf("schedule reply:\n%s", reply)
	}

	reply, _ = f.run(t, 7, "status", "", "")
	if !strings.Contains(reply, "1/2 tasks done") || !strings.Contains(reply, "☑ Reply to urgent email") {
		t.Fatalf("status:\n%s", reply)
	}

	reply, err = f.run(t, 7, "done", "9", "")
	if err == nil || !strings.Contains(reply, "out of range") {
		t.Fatalf("done 9: err=%v reply=%q", err, reply)
	}
}

func TestRankWithoutTasks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Settings{})
	reply, err := f.run(t, 1, "rank", "", "")
	if !errors.Is(err, errNoTasks) || !strings.Contains(reply, "No tasks found") {
		t.Fatalf("err=%v reply=%q", err, reply)
	}
	reply, _ = f.run(t, 1, "status", "", "")
	if !strings.Contains(reply, "No active session") {
		t.Fatalf("status = %q", reply)
	}
}

func TestResetPublishesEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Settings{})
	events, unsub := f.bus.Subscribe(4, EventSessionReset)
	defer unsub()

	if reply, _ := f.run(t, 3, "reset", "", ""); !strings.Contains(reply, "Nothing to reset") {
		t.Fatalf("reply = %q", reply)
	}
	<-events

	_, _ = f.run(t, 3, "tasks", "", "- a task")
	if reply, _ := f.run(t, 3, "reset", "", ""); !strings.Contains(reply, "cleared") {
		t.Fatalf("reply = %q", reply)
	}
	ev := <-events
	if re, ok := ev.Data.(ResetEvent); !ok || re.Key.ChatID != 3 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestToolCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Settings{})

	reply, err := f.run(t, 1, "tool", `extract_tasks {"raw_text": "Fix bug 20 min"}`, "")
	if err != nil || !strings.Contains(reply, "✅") || !strings.Contains(reply, "&#34;estimated_minutes&#34;: 20") {
		t.Fatalf("extract: err=%v reply=%q", err, reply)
	}
	sess, ok := f.svc.sessions.Get(session.Key{ChatID: 1})
	if !ok || len(sess.Tasks) != 1 {
		t.Fatalf("session = %+v", sess)
	}

	reply, err = f.run(t, 1, "tool", `pack_schedule {"available_minutes": 0}`, "")
	if err == nil || !strings.Contains(reply, "⚠️") || !strings.Contains(reply, "invalid budget") {
		t.Fatalf("bad pack: err=%v reply=%q", err, reply)
	}

	reply, err = f.run(t, 1, "tool", "nope", "")
	if err == nil || !strings.Contains(reply, "unknown tool") {
		t.Fatalf("unknown: err=%v reply=%q", err, reply)
	}

	reply, _ = f.run(t, 1, "tools", "", "")
	if !strings.Contains(reply, "extract_tasks") || !strings.Contains(reply, "pack_schedule") {
		t.Fatalf("tools = %q", reply)
	}
	reply, _ = f.run(t, 1, "tools", "--json", "")
	if !strings.Contains(reply, "&#34;parameters&#34;") {
		t.Fatalf("tools --json = %q", reply)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Settings{CommandsPerMinute: 2})
	for i := 0; i < 2; i++ {
		if reply, _ := f.run(t, 1, "status", "", ""); strings.Contains(reply, "Too many") {
			t.Fatalf("call %d limited", i)
		}
	}
	if reply, _ := f.run(t, 1, "status", "", ""); !strings.Contains(reply, "Too many") {
		t.Fatalf("third call not limited: %q", reply)
	}
	if reply, _ := f.run(t, 2, "status", "", ""); strings.Contains(reply, "Too many") {
		t.Fatal("limit leaked across chats")
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Settings{DefaultBudget: 900, MaxBudget: 60})
	if got := f.svc.DefaultBudget(); got != 60 {
		t.Fatalf("DefaultBudget = %d, want clamp to 60", got)
	}
	f.svc.Apply(Settings{})
	if got := f.svc.Settings(); got.DefaultBudget != 25 || got.MaxBudget != 480 || got.CommandsPerMinute != 20 {
		t.Fatalf("Settings = %+v", got)
	}
}

func TestNewRegistersTriageTools(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Settings{})
	var names []string
	for _, sc := range f.svc.tools.Schemas() {
		names = append(names, sc.Name)
	}
	if strings.Join(names, ",") != "extract_tasks,rank_tasks,pack_schedule" {
		t.Fatalf("tools = %v", names)
	}
}
