// Package app assembles a scanner run from a config file and owns its
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clairvoyance/internal/api"
	"clairvoyance/internal/clock"
	"clairvoyance/internal/config"
	"clairvoyance/internal/eventbus"
	"clairvoyance/internal/maintenance"
	"clairvoyance/internal/metrics"
	"clairvoyance/internal/notifier"
	"clairvoyance/internal/orchestrator"
	"clairvoyance/internal/plugin"
	"clairvoyance/internal/pool"
	"clairvoyance/internal/queue"
	"clairvoyance/internal/randx"
	rtsup "clairvoyance/internal/runtime/supervisor"
	"clairvoyance/internal/spawnpoint"
	"clairvoyance/internal/storage"
	"clairvoyance/internal/worker"
	logx "clairvoyance/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	rt   *config.Runtime
	sup  *rtsup.Supervisor

	clock clock.Clock
	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	orch    *orchestrator.Orchestrator
	plugins *plugin.Registry
	notif   *notifier.Service
	maint   *maintenance.Service
	api     *api.Service
}

// NewApp loads cfgPath and builds every component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	rt, err := cfg.Runtime()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(rt))
	a := &App{cfgm: cfgm, rt: rt, clock: clock.Real{}, log: log, logs: logs, bus: eventbus.New()}
	if err := a.build(); err != nil {
		logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	rt := a.rt
	tr := mapTransform(rt)
	rnd := randx.New(rt.Seed)

	sps, err := loadSpawnpoints(rt, spawnpoint.Env{Clock: a.clock, Transform: tr, Lookback: rt.Lookback, Log: a.log})
	if err != nil {
		return err
	}
	creds, err := worker.ReadCredentials(rt.AccountsPath)
	if err != nil {
		return err
	}
	client, err := newRemoteClient(rt, a.clock, rnd)
	if err != nil {
		return err
	}
	workers := worker.NewFleet(creds, rt.MaxAccounts, mapWorkerConfig(rt), worker.Deps{
		Clock:     a.clock,
		Transform: tr,
		Rand:      rnd,
		Client:    client,
		Log:       a.log,
	})
	if len(workers) == 0 {
		return fmt.Errorf("%s: no accounts", rt.AccountsPath)
	}
	policy, err := pool.ParsePolicy(rt.Allocation)
	if err != nil {
		return err
	}
	qcfg, err := mapQueueConfig(rt)
	if err != nil {
		return err
	}
	q := queue.New(qcfg, queue.Deps{Clock: a.clock, Transform: tr, Rand: rnd, Log: a.log, Bus: a.bus})

	if scfg, ok := mapStorageConfig(rt); ok {
		st, err := storage.Open(scfg, a.log)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		a.store = st
	}

	a.plugins, a.notif, err = buildPlugins(rt, a.log)
	if err != nil {
		a.closeStore()
		return err
	}

	a.orch = orchestrator.New(mapOrchestratorConfig(rt), orchestrator.Deps{
		Clock:       a.clock,
		Transform:   tr,
		Log:         a.log,
		Bus:         a.bus,
		Pool:        pool.New(workers, policy),
		Queue:       q,
		Spawnpoints: sps,
		Pause:       orchestrator.NewSwitch(rt.Paused),
		Store:       a.store,
		Plugins:     a.plugins,
		OnFatal:     a.fail,
	})
	a.maint = maintenance.New(mapMaintenanceConfig(rt), a.store, a.clock, a.log)

	reg, err := metrics.NewRegistry(a.orch.Stats)
	if err != nil {
		a.closeStore()
		return fmt.Errorf("metrics: %w", err)
	}
	a.api = api.New(mapAPIConfig(rt), api.Deps{
		Clock:     a.clock,
		Transform: tr,
		Log:       a.log,
		Stats:     a.orch.Stats,
		Pause:     a.orch.Pause(),
		Store:     a.store,
		Metrics:   metrics.Handler(reg),
	})

	a.log.Info("app configured",
		logx.Int("spawnpoints", len(sps)),
		logx.Int("workers", len(workers)),
		logx.Bool("simulated", rt.Simulate),
		logx.Float64("multiplier", rt.Multiplier),
		logx.String("storage", rt.Storage.Driver),
		logx.Any("plugins", a.plugins.Names()),
	)
	return nil
}

// Orchestrator exposes the scan loop for control surfaces and tests.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// Log is the root logger.
func (a *App) Log() logx.Logger { return a.log }

// Done is closed when the run ends, either from a fatal condition or Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the error that ended the run, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) fail(err error) {
	if a.sup != nil {
		a.sup.Fail(err)
	}
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	rc := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateReload)

	a.logs.SetAlertFunc(func(_ logx.Level, msg string) {
		a.plugins.DispatchError(rc, msg)
	})

	if a.notif != nil && a.notif.Enabled() {
		a.notif.Start(rc)
	}
	a.plugins.Start(rc)

	if err := a.maint.Start(rc); err != nil {
		return err
	}
	if err := a.api.Start(rc); err != nil {
		return err
	}
	if err := a.orch.Start(); err != nil {
		return err
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				if a.log.Enabled(logx.LevelDebug) {
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
				}
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go("systemd.status", func(c context.Context) error {
		a.statusLoop(c)
		return nil
	})

	notifyReady(a.log)
	a.log.Info("app started", logx.String("api", a.api.Addr()))
	return nil
}

// Stop shuts every component down. Each step gets its own deadline, bounded
// by ctx, so one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifyStopping(a.log)

	var errs []error
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
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
			errs = append(errs, fmt.Errorf("%s: %w", name, stepCtx.Err()))
		}
	}

	// The scan loop goes first so no new results reach storage or plugins.
	step("orchestrator", 5*time.Second, a.orch.Stop)
	a.sup.Cancel()
	step("api", 2*time.Second, a.api.Stop)
	step("maintenance", 2*time.Second, a.maint.Stop)
	step("plugins", 4*time.Second, func(c context.Context) error { a.plugins.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error {
		if a.notif != nil {
			a.notif.Stop(c)
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error { return a.closeStore() })
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, orchestrator.ErrSimulationComplete) || errors.Is(err, orchestrator.ErrTooManyBanned) {
			return nil
		}
		return err
	})

	a.log.Info("stopped", logx.String("reason", string(reason)))
	a.logs.Close()
	return errors.Join(errs...)
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
