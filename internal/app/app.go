package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"idlebot/internal/config"
	"idlebot/internal/eventbus"
	"idlebot/internal/runtime/supervisor"
	"idlebot/internal/storage"
	"idlebot/internal/task/engine"
	"idlebot/internal/task/schedule"
	"idlebot/internal/tasks"
	"idlebot/internal/transport"
	"idlebot/internal/transport/telegram"
	logx "idlebot/pkg/logx"
	"idlebot/pkg/systemd"
)

// App wires config, logging, storage and the engine into one process.
type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	cat    *tasks.Catalog
	reg    *schedule.Registry
	engine *engine.Engine
	fails  *failWatch
}

// New loads and validates the config, opens the store and restores the
// registry. Any error here is a startup configuration error.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return newFromConfig(cfgm, cfg, time.Now())
}

func newFromConfig(cfgm *config.ConfigManager, cfg *config.Config, now time.Time) (*App, error) {
	logSvc, log := newLogging(cfg)
	fail := func(err error) (*App, error) {
		_ = logSvc.Close()
		return nil, err
	}

	tcfg, err := mapTasksConfig(cfg)
	if err != nil {
		return fail(err)
	}
	cat := tasks.New(tcfg, log)
	if err := cfg.Validate(cat.Kinds()...); err != nil {
		return fail(err)
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return fail(err)
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return fail(fmt.Errorf("open storage: %w", err))
	}

	reg, err := restoreRegistry(context.Background(), cfg, cat, store, now, log)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}
	engCfg.Idle, err = buildIdle(cfg, cat, log.With(logx.String("comp", "idle")))
	if err != nil {
		_ = store.Close()
		return fail(err)
	}

	bus := eventbus.New()
	eng, err := engine.New(engCfg, reg, store, log, bus)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}

	return &App{
		cfgm:   cfgm,
		log:    log.With(logx.String("comp", "app")),
		logs:   logSvc,
		bus:    bus,
		store:  store,
		cat:    cat,
		reg:    reg,
		engine: eng,
		fails:  newFailWatch(cfg.Scheduler.FailureAlertAfter, log.With(logx.String("comp", "failwatch"))),
	}, nil
}

// newLogging builds the log service. Telegram logging starts disabled so the
// target can be set before Apply enables it. The Telegram sink is optional:
// when it cannot be built the daemon logs a warning and runs without it.
func newLogging(cfg *config.Config) (*logx.Service, logx.Logger) {
	var (
		sender    transport.Sender
		senderErr error
	)
	if cfg.Logging.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) != "" {
		s, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, URL: cfg.Telegram.APIURL})
		if err != nil {
			senderErr = err
		} else {
			sender = s
		}
	}

	final := mapLogConfig(cfg)
	if sender == nil {
		final.Telegram.Enabled = false
	}
	boot := final
	boot.Telegram.Enabled = false
	logSvc, log := logx.New(boot, sender)

	if id, err := cfg.GroupLogChatID(); err == nil && id != 0 {
		logSvc.SetTelegramTarget(id, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(final)
	if senderErr != nil {
		log.Warn("telegram log sink disabled", logx.String("comp", "app"), logx.Err(senderErr))
	}
	return logSvc, log
}

// restoreRegistry builds the registry and seeds it from persisted run times.
// An unreadable history is logged and treated as empty.
func restoreRegistry(ctx context.Context, cfg *config.Config, cat *tasks.Catalog, store storage.Store, now time.Time, log logx.Logger) (*schedule.Registry, error) {
	reg, err := buildRegistry(cfg, cat, now)
	if err != nil {
		return nil, err
	}
	lastRuns, err := store.Load(ctx)
	if err != nil {
		log.Warn("loading job history failed; cold start", logx.Err(err))
		return reg, nil
	}
	restored, unknown := reg.Restore(lastRuns)
	log.Info("job history restored",
		logx.Int("jobs", reg.Len()),
		logx.Int("restored", restored),
	)
	if len(unknown) > 0 {
		log.Debug("ignoring history for unknown keys", logx.Strings("keys", unknown))
	}
	return reg, nil
}

// Done is closed when the app supervisor context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Snapshot() engine.Snapshot { return a.engine.Snapshot() }

// Start runs the engine and the background loops under ctx.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate(a.cat.Kinds()...)
	})

	if err := a.engine.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.fails != nil {
		events, unsub := a.bus.Subscribe(64, eventbus.JobFailed, eventbus.JobFinished)
		a.sup.Go("failwatch", func(c context.Context) error {
			defer unsub()
			return a.fails.run(c, events)
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, a.log.With(logx.String("comp", "systemd")))
	})
	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd ready notify failed", logx.Err(err))
	}
	_, _ = systemd.Status(fmt.Sprintf("running %d jobs", a.reg.Len()))

	a.log.Info("app started", logx.Int("jobs", a.reg.Len()), logx.String("config", a.cfgm.Path()))
	return nil
}

// reloadLoop applies the logging section live. Everything else is logged as
// needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	if id, err := newCfg.GroupLogChatID(); err == nil {
		a.logs.SetTelegramTarget(id, newCfg.Logging.Telegram.ThreadID)
	}
	a.logs.Apply(mapLogConfig(newCfg))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if len(restart) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.Strings("sections", restart))
	}
}

// Stop shuts down in order: engine, background loops, storage, logging.
// Each step is bounded so one component can't stall the whole stop.
func (a *App) Stop(ctx context.Context, reason string) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", reason))
	_, _ = systemd.Stopping()

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
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

	step("engine", 5*time.Second, a.engine.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	logSnapshot(a.log, a.engine.Snapshot())
	a.log.Info("stopped")
	return a.logs.Close()
}

func logSnapshot(log logx.Logger, s engine.Snapshot) {
	log.Info("engine snapshot",
		logx.Uint64("dispatched", s.Dispatched),
		logx.Uint64("succeeded", s.Succeeded),
		logx.Uint64("failed", s.Failed),
		logx.Int("queued", s.QueueLen),
		logx.Int("history", len(s.History)),
	)
	for _, h := range s.History {
		if h.Error == "" {
			continue
		}
		log.Debug("recent failure",
			logx.String("key", h.Key),
			logx.Time("started", h.Started),
			logx.Duration("dur", h.Duration),
			logx.String("err", h.Error),
		)
	}
}
