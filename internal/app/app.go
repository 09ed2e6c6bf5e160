package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"focusbot/internal/checkin"
	"focusbot/internal/config"
	"focusbot/internal/eventbus"
	"focusbot/internal/focus"
	"focusbot/internal/session"
	"focusbot/internal/storage"
	"focusbot/internal/tools"
	kit "focusbot/internal/transport"
	telegram "focusbot/internal/transport/telegram/adapter"
	logx "focusbot/pkg/logx"
)

type App struct {
	cfgPath   string
	startedAt time.Time

	cfgm *ConfigManager
	sup  *Supervisor

	root  logx.Logger // no comp field; components add their own
	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	sessions *session.Store
	tools    *tools.Registry
	focus    *focus.Service
	checkin  *checkin.Service

	cmdm *CommandManager
	serv *Services

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Parse()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(context.Background(), cfg, nil); err != nil {
		return nil, err
	}
	cfgm.Commit(cfg)

	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	// Bootstrap with the Telegram sink off so Apply does not warn before the
	// target chat is set.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg, ad)
	if chatID, ok, _ := logTarget(cfg); ok {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, root)
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("audit storage enabled", logx.String("driver", sc.Driver))
	}

	fr, err := mapFocusConfig(cfg)
	if err != nil {
		return nil, err
	}
	sessions := session.NewStore(fr.sessionTTL, session.WithLogger(root.With(logx.String("comp", "sessions"))))

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		root:     root,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		sessions: sessions,
		tools:    tools.NewRegistry(),
		updates:  make(chan kit.Update, 256),
	}

	a.focus = focus.New(focus.Deps{
		Log:      root,
		Sessions: sessions,
		Tools:    a.tools,
		Bus:      bus,
		Store:    store,
	}, fr.settings)
	if err := tools.RegisterTriage(a.tools, a.focus.DefaultBudget); err != nil {
		return nil, err
	}

	a.checkin = checkin.New(root, ad, bus)
	if err := a.checkin.Apply(mapCheckinConfig(cfg)); err != nil {
		return nil, err
	}

	a.serv = &Services{RuntimeSupervisors: NewSupervisorRegistry()}
	a.cmdm = NewCommandManager(root.With(logx.String("comp", "commands")), ad, cfgm, a.serv, cfg.Telegram.OwnerUserIDs)
	a.cmdm.SetAllowedChats(cfg.Telegram.AllowedChatIDs)
	a.cmdm.SetDefaultTimeout(fr.commandTimeout)

	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	a.serv.AppSupervisor = a.sup

	a.cfgm.SetLogger(a.root.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
		return validateConfig(c, cfg, a.checkin)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if sp, ok := a.adapter.(interface{ Supervisor() *Supervisor }); ok {
		if sup := sp.Supervisor(); sup != nil {
			a.serv.RuntimeSupervisors.Set("telegram.adapter", sup)
		}
	}

	a.cmdm.SetRegistry(append(a.focus.Commands(), a.systemCommands()...))

	a.sup.Go0("sessions.prune", func(c context.Context) {
		a.sessions.Run(c, sessionPruneEvery)
	})
	a.sup.GoRestart("checkin", a.checkin.Run)
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Int("commands", len(a.focus.Commands())),
		logx.Strings("tools", a.tools.Names()),
	)
	return nil
}

// applyConfig pushes a validated config into every live component.
func (a *App) applyConfig(prev, next *Config) {
	sections, attrs := SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if config.HasSection(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if config.HasSection(sections, "telegram.token") {
		a.log.Warn("telegram token changed; restart required for changes to take effect")
	}

	if chatID, ok, _ := logTarget(next); ok {
		a.logs.SetTelegramTarget(chatID, next.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLogConfig(next))

	a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)
	a.cmdm.SetAllowedChats(next.Telegram.AllowedChatIDs)

	if fr, err := mapFocusConfig(next); err != nil {
		a.log.Warn("invalid focus config; keeping previous", logx.Err(err))
	} else {
		a.focus.Apply(fr.settings)
		a.sessions.SetTTL(fr.sessionTTL)
		a.cmdm.SetDefaultTimeout(fr.commandTimeout)
	}
	if err := a.checkin.Apply(mapCheckinConfig(next)); err != nil {
		a.log.Warn("invalid checkin config; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown phase; a phase that overruns is logged and
	// left behind.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Int("sessions", a.sessions.Len()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
