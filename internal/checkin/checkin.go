// Package checkin sends proactive messages: a reminder when each planned
// block ends and a cron-driven daily prompt to plan the day.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"focusbot/internal/eventbus"
	"focusbot/internal/focus"
	"focusbot/internal/session"
	kit "focusbot/internal/transport"
	"focusbot/internal/triage"
	logx "focusbot/pkg/logx"
	"focusbot/pkg/tgui"
)

const (
	defaultRatePerSec = 1
	maxTitleRunes     = 120
)

type Config struct {
	Enabled        bool
	BlockReminders bool
	// DailyPrompt is a 5-field cron spec or descriptor ("@daily"). Empty
	// disables the prompt.
	DailyPrompt string
	Timezone    string
	Chats       []int64
	RatePerSec  int
}

// Sender is the subset of transport.Adapter used for outgoing messages.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// AfterFunc schedules f after d and returns a stop function, like
// time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

type Option func(*Service)

func WithAfterFunc(fn AfterFunc) Option { return func(s *Service) { s.after = fn } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

type Service struct {
	log    logx.Logger
	sender Sender
	bus    eventbus.Bus
	parser cron.Parser
	after  AfterFunc
	now    func() time.Time

	mu      sync.Mutex
	cfg     Config
	ctx     context.Context // set while Run is active
	cron    *cron.Cron
	limiter *rate.Limiter
	timers  map[session.Key][]func() bool
}

func New(log logx.Logger, sender Sender, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:    log.With(logx.String("comp", "checkin")),
		sender: sender,
		bus:    bus,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		after: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Limit(defaultRatePerSec), defaultRatePerSec),
		timers:  map[session.Key][]func() bool{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Validate checks the cron spec and timezone without applying anything.
func (s *Service) Validate(cfg Config) error {
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return err
	}
	if spec := strings.TrimSpace(cfg.DailyPrompt); spec != "" {
		if _, err := s.parser.Parse(spec); err != nil {
			return fmt.Errorf("checkin.daily_prompt %q: %w", spec, err)
		}
	}
	if cfg.RatePerSec < 0 {
		return errors.New("checkin.rate_per_sec must be >= 0")
	}
	return nil
}

// Apply swaps the configuration. A running cron is rebuilt so spec and
// timezone changes take effect immediately.
func (s *Service) Apply(cfg Config) error {
	if err := s.Validate(cfg); err != nil {
		return err
	}
	r := cfg.RatePerSec
	if r <= 0 {
		r = defaultRatePerSec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.cfg.Chats = append([]int64(nil), cfg.Chats...)
	s.limiter.SetLimit(rate.Limit(r))
	s.limiter.SetBurst(r)
	if !cfg.Enabled || !cfg.BlockReminders {
		s.cancelAllLocked()
	}
	if s.ctx != nil {
		s.restartCronLocked()
	}
	return nil
}

// Run consumes focus events and drives the cron until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	events, unsubscribe := s.bus.Subscribe(64, focus.EventPlanCreated, focus.EventSessionReset)
	defer unsubscribe()

	s.mu.Lock()
	s.ctx = ctx
	s.restartCronLocked()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.stopCronLocked()
		s.cancelAllLocked()
		s.ctx = nil
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.onEvent(ev)
		}
	}
}

func (s *Service) onEvent(ev eventbus.Event) {
	switch d := ev.Data.(type) {
	case focus.PlanEvent:
		s.schedulePlan(d)
	case focus.ResetEvent:
		s.mu.Lock()
		s.cancelLocked(d.Key)
		s.mu.Unlock()
	}
}

// schedulePlan replaces the chat's pending reminders with one per block end
// still in the future.
func (s *Service) schedulePlan(ev focus.PlanEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(ev.Key)
	if !s.cfg.Enabled || !s.cfg.BlockReminders {
		return
	}
	now := s.now()
	to := kit.ChatTarget{ChatID: ev.Key.ChatID, ThreadID: ev.Key.ThreadID}
	var stops []func() bool
	for i, b := range ev.Blocks {
		wait := ev.At.Add(time.Duration(b.EndMinute) * time.Minute).Sub(now)
		if wait <= 0 {
			continue
		}
		text := reminderText(ev.Blocks, i)
		stops = append(stops, s.after(wait, func() { s.deliver(to, text) }))
	}
	if len(stops) > 0 {
		s.timers[ev.Key] = stops
		s.log.Debug("block reminders scheduled", logx.String("chat", ev.Key.String()), logx.Int("count", len(stops)))
	}
}

func (s *Service) cancelLocked(key session.Key) {
	for _, stop := range s.timers[key] {
		stop()
	}
	delete(s.timers, key)
}

func (s *Service) cancelAllLocked() {
	for key := range s.timers {
		s.cancelLocked(key)
	}
}

// Pending reports how many reminders are scheduled for key.
func (s *Service) Pending(key session.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers[key])
}

func (s *Service) restartCronLocked() {
	s.stopCronLocked()
	spec := strings.TrimSpace(s.cfg.DailyPrompt)
	if !s.cfg.Enabled || spec == "" {
		return
	}
	loc, err := loadLocation(s.cfg.Timezone)
	if err != nil {
		s.log.Warn("checkin timezone invalid; using local", logx.Err(err))
		loc = time.Local
	}
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, s.prompt); err != nil {
		s.log.Warn("daily prompt not scheduled", logx.String("spec", spec), logx.Err(err))
		return
	}
	c.Start()
	s.cron = c
	s.log.Info("daily prompt scheduled", logx.String("spec", spec), logx.String("tz", loc.String()), logx.Int("chats", len(s.cfg.Chats)))
}

func (s *Service) stopCronLocked() {
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
}

const promptText = "☀️ <b>Time to plan.</b>\nSend <code>/plan</code> with today's tasks, one per line."

func (s *Service) prompt() {
	s.mu.Lock()
	chats := append([]int64(nil), s.cfg.Chats...)
	s.mu.Unlock()
	for _, id := range chats {
		s.deliver(kit.ChatTarget{ChatID: id}, promptText)
	}
}

// deliver sends under the outgoing rate limit. It gives up when Run has
// stopped.
func (s *Service) deliver(to kit.ChatTarget, text string) {
	s.mu.Lock()
	ctx := s.ctx
	lim := s.limiter
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	if err := lim.Wait(ctx); err != nil {
		return
	}
	if _, err := s.sender.SendText(ctx, to, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		s.log.Warn("check-in send failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

func reminderText(blocks []triage.Block, i int) string {
	b := blocks[i]
	if b.Kind == triage.BlockWrapUp {
		return "🏁 <b>Session over.</b> Check <code>/status</code>, then <code>/plan</code> the next one."
	}
	title := strings.TrimSuffix(b.TaskTitle, triage.PartialSuffix)
	var sb strings.Builder
	fmt.Fprintf(&sb, "⏱ %s block is over.", tgui.B(tgui.TruncRunes(title, maxTitleRunes)))
	if b.Kind == triage.BlockPartial {
		sb.WriteString(" It was a partial slot, so carry the rest over.")
	} else {
		sb.WriteString(" Finished? <code>/done &lt;n&gt;</code>")
	}
	if i+1 < len(blocks) {
		fmt.Fprintf(&sb, "\nNext: %s", tgui.I(tgui.TruncRunes(blocks[i+1].TaskTitle, maxTitleRunes)))
	}
	return sb.String()
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("checkin.timezone %q: %w", tz, err)
	}
	return loc, nil
}
