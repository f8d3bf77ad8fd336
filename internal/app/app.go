// Package app assembles the daemon: configuration, logging, the execution
// ledger, the task registry, the scheduler loop and the management surface,
// all running under one supervisor.
package app

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"dailyrun/internal/clock"
	"dailyrun/internal/config"
	"dailyrun/internal/control"
	"dailyrun/internal/dispatch"
	"dailyrun/internal/host/exechost"
	"dailyrun/internal/ledger"
	"dailyrun/internal/query"
	"dailyrun/internal/registry"
	"dailyrun/internal/runtime/supervisor"
	"dailyrun/internal/sched"
	logx "dailyrun/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	sup *supervisor.Supervisor
	led *ledger.Ledger
	reg *registry.Registry

	queries *query.Service
	ctl     *control.Handler

	prune *cron.Cron
}

// New loads the configuration and sets up logging. Everything else starts in
// Start, so a bad config file fails fast before any goroutine exists.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logs, log := logx.New(cfg.LogxConfig())
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateConfig)

	return &App{cfgm: cfgm, logs: logs, log: log.With(logx.String("comp", "app"))}, nil
}

// validateConfig rejects reloaded files whose duration fields don't parse,
// so a bad edit keeps the previous config instead of half-applying.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if _, err := cfg.BusyTimeout(); err != nil {
		return err
	}
	if _, err := cfg.PollInterval(); err != nil {
		return err
	}
	if _, err := cfg.CommandDelay(); err != nil {
		return err
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	busy, err := cfg.BusyTimeout()
	if err != nil {
		return err
	}
	poll, err := cfg.PollInterval()
	if err != nil {
		return err
	}
	delay, err := cfg.CommandDelay()
	if err != nil {
		return err
	}

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))
	pool := a.sup.Pool()

	led, err := ledger.Open(ledger.Config{
		Path:          cfg.StoragePath(),
		BusyTimeout:   busy,
		RetentionDays: cfg.RetentionDays(),
	}, pool, a.log.With(logx.String("comp", "ledger")))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	a.led = led

	host := exechost.New(exechost.Options{}, a.log.With(logx.String("comp", "host")))
	disp := dispatch.New(host, a.log.With(logx.String("comp", "dispatch")))

	a.reg = registry.New(a.cfgm, led, disp, registry.Options{
		CommandDelay: delay,
		Spawner:      pool,
	}, a.log.With(logx.String("comp", "registry")))
	a.reg.LoadTasks()

	src := a.newClockSource(cfg)
	loop := sched.New(src, a.reg, led, sched.Options{
		PollInterval: poll,
		Spawner:      pool,
	}, a.log.With(logx.String("comp", "sched")))
	a.sup.GoRestart("sched.loop", loop.Run)

	updates := a.cfgm.Subscribe(1)
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.apply", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-updates:
				if !ok {
					return
				}
				a.logs.Apply(next.LogxConfig())
				a.reg.LoadTasks()
			}
		}
	})

	a.startRetentionPrune(cfg, pool)

	a.queries = query.New(a.reg, src)
	a.ctl = control.New(a.reg, a.reloadConfig, a.log.With(logx.String("comp", "control")))

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("daemon started",
		logx.Int("tasks", a.reg.Count()),
		logx.Duration("poll_interval", poll),
		logx.String("ledger", cfg.StoragePath()))
	return nil
}

func (a *App) newClockSource(cfg *config.Config) *clock.Source {
	if cfg.Clock.Source == "file" && cfg.Clock.Path != "" {
		provider := &clock.FileProvider{Path: cfg.Clock.Path, Placeholder: cfg.Clock.Placeholder}
		return clock.NewSource(provider, a.log.With(logx.String("comp", "clock")))
	}
	return clock.NewSystemSource()
}

// startRetentionPrune schedules a nightly deletion of ledger rows past the
// retention window, plus one pass right away to bound a long-stopped daemon's
// backlog.
func (a *App) startRetentionPrune(cfg *config.Config, pool *supervisor.Pool) {
	days := cfg.RetentionDays()
	if days <= 0 {
		return
	}
	pool.Go("ledger.prune", func() { a.led.Prune(days) })

	a.prune = cron.New()
	_, err := a.prune.AddFunc("10 3 * * *", func() {
		if n := a.led.Prune(days); n > 0 {
			a.log.Info("ledger pruned", logx.Int64("rows", n), logx.Int("retention_days", days))
		}
	})
	if err != nil {
		a.log.Error("failed to schedule ledger prune", logx.Err(err))
		a.prune = nil
		return
	}
	a.prune.Start()
}

// reloadConfig backs the control surface's reload subcommand.
func (a *App) reloadConfig(context.Context) error {
	cfg, err := a.cfgm.Load()
	if err != nil {
		return err
	}
	a.logs.Apply(cfg.LogxConfig())
	a.reg.LoadTasks()
	a.log.Info("config reloaded", logx.Int("tasks", a.reg.Count()))
	return nil
}

// Control returns the management surface handler.
func (a *App) Control() *control.Handler { return a.ctl }

// Queries returns the read-only query service.
func (a *App) Queries() *query.Service { return a.queries }

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.prune != nil {
		select {
		case <-a.prune.Stop().Done():
		case <-ctx.Done():
		}
	}

	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.led != nil {
		if cerr := a.led.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.log.Info("daemon stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
