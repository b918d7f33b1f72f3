package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"alertd/internal/api"
	"alertd/internal/config"
	"alertd/internal/engine"
	"alertd/internal/eventbus"
	"alertd/internal/notifier"
	"alertd/internal/runtime/supervisor"
	"alertd/internal/storage"
	"alertd/internal/timer"
	logx "alertd/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

const maintenanceJob = "storage.maintain"

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.Mem

	store  storage.Store
	timers *timer.Service
	notes  notifier.Service
	eng    *engine.Engine
	api    *api.Server
}

// starter is implemented by notifiers with background work (telegram polling).
type starter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	comp := func(name string) logx.Logger { return log.With(logx.String("comp", name)) }

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	ec, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	ac, err := mapAPIConfig(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(sc, comp("storage"))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	notes, err := notifier.Open(nc, comp("notifier"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open notifier: %w", err)
	}
	// Telegram can reach the owner itself; other drivers only log the request.
	opener, ok := notes.(notifier.Opener)
	if !ok {
		opener = notifier.LogOpener{Log: comp("opener")}
	}

	bus := eventbus.New()
	timers := timer.New(mapTimerConfig(cfg), comp("timer"))
	eng := engine.New(ec, store, timers, notes, opener, bus, comp("engine"))

	log.Info("alertd configured",
		logx.String("storage", sc.Driver),
		logx.String("notifier", nc.Driver),
		logx.String("api", ac.Addr),
	)
	return &App{
		cfgm:   cfgm,
		log:    comp("app"),
		logs:   logSvc,
		bus:    bus,
		store:  store,
		timers: timers,
		notes:  notes,
		eng:    eng,
		api:    api.New(ac, eng, bus, notes, comp("api")),
	}, nil
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

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateReload)

	a.timers.Start(run)
	if s, ok := a.notes.(starter); ok {
		if err := s.Start(run); err != nil {
			return fmt.Errorf("start notifier: %w", err)
		}
	}
	cfg := a.cfgm.Get()
	a.applyMaintenance(cfg.Storage.Maintenance)

	if cfg.Alerts.RestoreEnabled() {
		if _, err := a.eng.Restore(run); err != nil {
			// Individual records failed; the rest are live.
			a.log.Warn("restore incomplete", logx.Err(err))
		}
	}

	a.api.AddSupervisor("app", func() *supervisor.Supervisor { return a.sup })
	if t, ok := a.notes.(interface{ Supervisor() *supervisor.Supervisor }); ok {
		a.api.AddSupervisor("notifier", t.Supervisor)
	}
	if err := a.api.Start(run); err != nil {
		return fmt.Errorf("start api: %w", err)
	}

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
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
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
				// Coalesce bursts.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		watchdog(c, a.log, func() bool { return a.sup.Err() == nil })
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// applyConfig applies the hot-reloadable parts of next.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLoggingConfig(next))
		case "timer":
			a.timers.Apply(mapTimerConfig(next))
		case "storage.maintenance":
			a.applyMaintenance(next.Storage.Maintenance)
		}
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// applyMaintenance schedules the store's housekeeping job, or removes it
// when spec is empty or the store has none.
func (a *App) applyMaintenance(spec string) {
	m, ok := a.store.(storage.Maintainer)
	spec = strings.TrimSpace(spec)
	if !ok || spec == "" {
		a.timers.RemoveMaintenance(maintenanceJob)
		return
	}
	if err := a.timers.AddMaintenance(maintenanceJob, spec, m.Maintain); err != nil {
		a.log.Warn("maintenance schedule rejected", logx.String("spec", spec), logx.Err(err))
	}
}

// validateReload rejects configs whose values cannot be mapped.
func validateReload(_ context.Context, cfg *config.Config) error {
	var errs []error
	if _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapEngineConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapAPIConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if tz := strings.TrimSpace(cfg.Timer.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("timer.timezone: invalid %q: %w", tz, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// step runs one shutdown step bounded by max (and by ctx).
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
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Order: stop taking requests, stop firing, then close what they use.
	step("api", 3*time.Second, func(c context.Context) error { a.api.Stop(c); return nil })
	step("engine", time.Second, func(context.Context) error { a.eng.Close(); return nil })
	step("timer", 2*time.Second, func(c context.Context) error { a.timers.Stop(c); return nil })
	step("notifier", 3*time.Second, func(c context.Context) error {
		if s, ok := a.notes.(starter); ok {
			return s.Stop(c)
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
