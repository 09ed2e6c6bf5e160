// Package focus turns chat commands into planning sessions: it feeds user
// text through the triage tools, keeps the result in the chat's session and
// renders plans back as Telegram HTML.
package focus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"focusbot/internal/eventbus"
	"focusbot/internal/session"
	"focusbot/internal/storage"
	"focusbot/internal/tools"
	"focusbot/internal/triage"
	logx "focusbot/pkg/logx"
)

const (
	EventPlanCreated  = "focus.plan.created"
	EventSessionReset = "focus.session.reset"
)

// PlanEvent is the payload of EventPlanCreated.
type PlanEvent struct {
	Key       session.Key
	SessionID string
	Budget    int
	Blocks    []triage.Block
	At        time.Time
}

// ResetEvent is the payload of EventSessionReset.
type ResetEvent struct {
	Key session.Key
}

type Settings struct {
	DefaultBudget     int
	MaxBudget         int
	CommandsPerMinute int
	// Reminders advertises block-boundary check-ins in rendered plans.
	Reminders bool
}

func DefaultSettings() Settings {
	return Settings{DefaultBudget: 25, MaxBudget: 480, CommandsPerMinute: 20}
}

type Deps struct {
	Log      logx.Logger
	Sessions *session.Store
	Tools    *tools.Registry
	Bus      eventbus.Bus
	Store    storage.Store // optional audit trail
}

type Service struct {
	log      logx.Logger
	sessions *session.Store
	tools    *tools.Registry
	bus      eventbus.Bus
	store    storage.Store
	now      func() time.Time

	mu       sync.RWMutex
	settings Settings

	limMu    sync.Mutex
	limiters map[session.Key]*rate.Limiter
}

func New(deps Deps, set Settings) *Service {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:      log.With(logx.String("comp", "focus")),
		sessions: deps.Sessions,
		tools:    deps.Tools,
		bus:      deps.Bus,
		store:    deps.Store,
		now:      time.Now,
		limiters: map[session.Key]*rate.Limiter{},
	}
	if s.sessions == nil {
		s.sessions = session.NewStore(session.DefaultTTL)
	}
	if s.tools == nil {
		s.tools = tools.NewRegistry()
		if err := tools.RegisterTriage(s.tools, s.DefaultBudget); err != nil {
			s.log.Warn("triage tools not registered", logx.Err(err))
		}
	}
	if s.bus == nil {
		s.bus = eventbus.New()
	}
	s.Apply(set)
	return s
}

// Apply swaps settings at runtime. Zero fields fall back to defaults.
func (s *Service) Apply(set Settings) {
	def := DefaultSettings()
	if set.DefaultBudget <= 0 {
		set.DefaultBudget = def.DefaultBudget
	}
	if set.MaxBudget <= 0 {
		set.MaxBudget = def.MaxBudget
	}
	set.DefaultBudget = min(set.DefaultBudget, set.MaxBudget)
	if set.CommandsPerMinute <= 0 {
		set.CommandsPerMinute = def.CommandsPerMinute
	}

	s.mu.Lock()
	changedRate := s.settings.CommandsPerMinute != set.CommandsPerMinute
	s.settings = set
	s.mu.Unlock()

	if changedRate {
		s.limMu.Lock()
		s.limiters = map[session.Key]*rate.Limiter{}
		s.limMu.Unlock()
	}
}

func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// DefaultBudget is the session length used when a command names none.
func (s *Service) DefaultBudget() int { return s.Settings().DefaultBudget }

// allow applies the per-chat command rate.
func (s *Service) allow(key session.Key) bool {
	perMin := s.Settings().CommandsPerMinute
	s.limMu.Lock()
	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin)
		s.limiters[key] = lim
	}
	s.limMu.Unlock()
	return lim.Allow()
}

// exec runs one tool against sess and decodes its output into out.
func (s *Service) exec(ctx context.Context, sess *session.Session, name string, args any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	res := s.tools.Execute(ctx, name, sess, raw)
	if !res.OK {
		return res.Err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(res.Output, out)
}

func (s *Service) publishPlan(sess *session.Session) {
	s.bus.Publish(eventbus.Event{
		Type: EventPlanCreated,
		Time: sess.PlannedAt,
		Data: PlanEvent{
			Key:       sess.Key,
			SessionID: sess.ID,
			Budget:    sess.Budget,
			Blocks:    append([]triage.Block(nil), sess.Plan...),
			At:        sess.PlannedAt,
		},
	})
}

type auditInfo struct {
	action string
	sess   *session.Session
	took   time.Duration
	err    error
	meta   map[string]any
}

func (s *Service) audit(ctx context.Context, actorID int64, username string, key session.Key, a auditInfo) {
	if s.store == nil {
		return
	}
	e := storage.AuditEntry{
		At:            s.now(),
		ActorID:       actorID,
		ActorUsername: username,
		ChatID:        key.ChatID,
		ThreadID:      key.ThreadID,
		Action:        a.action,
		TookMS:        a.took.Milliseconds(),
	}
	if a.sess != nil {
		e.SessionID = a.sess.ID
		e.Tasks = len(a.sess.Current())
		e.Blocks = len(a.sess.Plan)
		e.Budget = a.sess.Budget
	}
	if a.err != nil {
		e.Error = a.err.Error()
	}
	if len(a.meta) > 0 {
		if b, err := json.Marshal(a.meta); err == nil {
			e.MetaJSON = string(b)
		}
	}
	if err := s.store.AppendAudit(ctx, e); err != nil {
		s.log.Warn("audit append failed", logx.String("action", a.action), logx.Err(err))
	}
}
