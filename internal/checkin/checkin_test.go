package checkin

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"focusbot/internal/eventbus"
	"focusbot/internal/focus"
	"focusbot/internal/session"
	kit "focusbot/internal/transport"
	"focusbot/internal/transport/transporttest"
	"focusbot/internal/triage"
	logx "focusbot/pkg/logx"
)

type pendingTimer struct {
	wait    time.Duration
	fn      func()
	stopped bool
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*pendingTimer
	added  chan struct{}
}

func newFakeTimers() *fakeTimers { return &fakeTimers{added: make(chan struct{}, 16)} }

func (f *fakeTimers) after(d time.Duration, fn func()) func() bool {
	p := &pendingTimer{wait: d, fn: fn}
	f.mu.Lock()
	f.timers = append(f.timers, p)
	f.mu.Unlock()
	select {
	case f.added <- struct{}{}:
	default:
	}
	return func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		was := !p.stopped
		p.stopped = true
		return was
	}
}

func (f *fakeTimers) snapshot() []*pendingTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*pendingTimer(nil), f.timers...)
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func samplePlan(key session.Key) focus.PlanEvent {
	return focus.PlanEvent{
		Key:    key,
		Budget: 25,
		At:     t0,
		Blocks: []triage.Block{
			{StartMinute: 0, EndMinute: 10, TaskTitle: "Fix bug", Kind: triage.BlockTask},
			{StartMinute: 10, EndMinute: 22, TaskTitle: "Write docs (partial)", Kind: triage.BlockPartial},
			{StartMinute: 22, EndMinute: 25, TaskTitle: triage.WrapUpTitle, Kind: triage.BlockWrapUp},
		},
	}
}

func newTestService(t *testing.T, now time.Time) (*Service, *fakeTimers, *transporttest.Adapter) {
	t.Helper()
	ft := newFakeTimers()
	ad := transporttest.New()
	s := New(logx.Nop(), ad, eventbus.New(), WithAfterFunc(ft.after), WithClock(func() time.Time { return now }))
	if err := s.Apply(Config{Enabled: true, BlockReminders: true, RatePerSec: 100}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return s, ft, ad
}

func TestSchedulePlanOneReminderPerBlockEnd(t *testing.T) {
	t.Parallel()
	s, ft, _ := newTestService(t, t0)
	key := session.Key{ChatID: 7}
	s.schedulePlan(samplePlan(key))

	got := ft.snapshot()
	want := []time.Duration{10 * time.Minute, 22 * time.Minute, 25 * time.Minute}
	if len(got) != len(want) {
		t.Fatalf("timers = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].wait != w {
			t.Fatalf("timer %d wait = %v, want %v", i, got[i].wait, w)
		}
	}
	if n := s.Pending(key); n != 3 {
		t.Fatalf("Pending = %d, want 3", n)
	}
}

func TestSchedulePlanSkipsElapsedBlocks(t *testing.T) {
	t.Parallel()
	s, ft, _ := newTestService(t, t0.Add(15*time.Minute))
	s.schedulePlan(samplePlan(session.Key{ChatID: 7}))

	got := ft.snapshot()
	if len(got) != 2 {
		t.Fatalf("timers = %d, want 2", len(got))
	}
	if got[0].wait != 7*time.Minute {
		t.Fatalf("first wait = %v, want 7m", got[0].wait)
	}
}

func TestNewPlanReplacesReminders(t *testing.T) {
	t.Parallel()
	s, ft, _ := newTestService(t, t0)
	key := session.Key{ChatID: 7, ThreadID: 3}
	s.schedulePlan(samplePlan(key))
	s.schedulePlan(samplePlan(key))

	timers := ft.snapshot()
	if len(timers) != 6 {
		t.Fatalf("timers = %d, want 6", len(timers))
	}
	for i, p := range timers[:3] {
		if !p.stopped {
			t.Fatalf("timer %d from the first plan still armed", i)
		}
	}
	for i, p := range timers[3:] {
		if p.stopped {
			t.Fatalf("timer %d from the second plan stopped", i+3)
		}
	}
	if n := s.Pending(key); n != 3 {
		t.Fatalf("Pending = %d, want 3", n)
	}
}

func TestResetEventCancelsReminders(t *testing.T) {
	t.Parallel()
	s, ft, _ := newTestService(t, t0)
	key := session.Key{ChatID: 7}
	s.schedulePlan(samplePlan(key))
	s.onEvent(eventbus.Event{Type: focus.EventSessionReset, Data: focus.ResetEvent{Key: key}})

	for i, p := range ft.snapshot() {
		if !p.stopped {
			t.Fatalf("timer %d still armed after reset", i)
		}
	}
	if n := s.Pending(key); n != 0 {
		t.Fatalf("Pending = %d, want 0", n)
	}
}

func TestRemindersDisabled(t *testing.T) {
	t.Parallel()
	s, ft, _ := newTestService(t, t0)
	key := session.Key{ChatID: 7}
	s.schedulePlan(samplePlan(key))
	if err := s.Apply(Config{Enabled: true, BlockReminders: false}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i, p := range ft.snapshot() {
		if !p.stopped {
			t.Fatalf("timer %d still armed after disabling reminders", i)
		}
	}
	s.schedulePlan(samplePlan(key))
	if n := len(ft.snapshot()); n != 3 {
		t.Fatalf("timers = %d, want no new ones", n)
	}
}

func TestReminderDelivery(t *testing.T) {
	t.Parallel()
	s, ft, ad := newTestService(t, t0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	key := session.Key{ChatID: 7, ThreadID: 3}
	s.schedulePlan(samplePlan(key))
	for _, p := range ft.snapshot() {
		p.fn()
	}

	sent := ad.Sent()
	if len(sent) != 3 {
		t.Fatalf("sent = %d, want 3", len(sent))
	}
	if sent[0].To.ChatID != 7 || sent[0].To.ThreadID != 3 {
		t.Fatalf("target = %+v", sent[0].To)
	}
	if !strings.Contains(sent[0].Text, "<b>Fix bug</b> block is over") || !strings.Contains(sent[0].Text, "Next: <i>Write docs (partial)</i>") {
		t.Fatalf("first reminder = %q", sent[0].Text)
	}
	if !strings.Contains(sent[1].Text, "<b>Write docs</b>") || !strings.Contains(sent[1].Text, "partial slot") {
		t.Fatalf("partial reminder = %q", sent[1].Text)
	}
	if !strings.Contains(sent[2].Text, "Session over") {
		t.Fatalf("wrap-up reminder = %q", sent[2].Text)
	}
	if sent[0].Opt.ParseMode != "HTML" {
		t.Fatalf("parse mode = %q", sent[0].Opt.ParseMode)
	}
}

func TestDeliverWithoutRunIsNoop(t *testing.T) {
	t.Parallel()
	s, _, ad := newTestService(t, t0)
	s.deliver(targetFor(1), "hello")
	if n := len(ad.Sent()); n != 0 {
		t.Fatalf("sent = %d, want 0", n)
	}
}

func TestDailyPromptGoesToEveryChat(t *testing.T) {
	t.Parallel()
	s, _, ad := newTestService(t, t0)
	if err := s.Apply(Config{Enabled: true, Chats: []int64{11, 22}, RatePerSec: 100}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.prompt()
	sent := ad.Sent()
	if len(sent) != 2 || sent[0].To.ChatID != 11 || sent[1].To.ChatID != 22 {
		t.Fatalf("sent = %+v", sent)
	}
	if !strings.Contains(sent[0].Text, "/plan") {
		t.Fatalf("prompt = %q", sent[0].Text)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop(), transporttest.New(), eventbus.New())
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty", cfg: Config{}},
		{name: "five fields", cfg: Config{DailyPrompt: "30 8 * * 1-5", Timezone: "Europe/Berlin"}},
		{name: "descriptor", cfg: Config{DailyPrompt: "@daily"}},
		{name: "seconds field rejected", cfg: Config{DailyPrompt: "0 30 8 * * *"}, wantErr: true},
		{name: "garbage spec", cfg: Config{DailyPrompt: "every morning"}, wantErr: true},
		{name: "unknown zone", cfg: Config{Timezone: "Mars/Olympus"}, wantErr: true},
		{name: "negative rate", cfg: Config{RatePerSec: -1}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := s.Validate(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunSchedulesFromBus(t *testing.T) {
	t.Parallel()
	ft := newFakeTimers()
	bus := eventbus.New()
	s := New(logx.Nop(), transporttest.New(), bus, WithAfterFunc(ft.after), WithClock(func() time.Time { return t0 }))
	if err := s.Apply(Config{Enabled: true, BlockReminders: true, DailyPrompt: "@daily"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	key := session.Key{ChatID: 9}
	deadline := time.After(2 * time.Second)
	for {
		bus.Publish(eventbus.Event{Type: focus.EventPlanCreated, Time: t0, Data: samplePlan(key)})
		select {
		case <-ft.added:
		case <-time.After(20 * time.Millisecond):
			continue
		case <-deadline:
			t.Fatal("no reminder scheduled from bus event")
		}
		break
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if n := s.Pending(key); n != 0 {
		t.Fatalf("Pending after stop = %d, want 0", n)
	}
}

func targetFor(id int64) kit.ChatTarget { return kit.ChatTarget{ChatID: id} }
