// Package app wires the daemon together: config, logging, storage, the MCP
// directory, the scheduler loop, the agent runner, and the operator shell.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"agentsched/internal/agent"
	"agentsched/internal/config"
	"agentsched/internal/eventbus"
	"agentsched/internal/mcpdir"
	"agentsched/internal/runtime/supervisor"
	"agentsched/internal/schedule"
	"agentsched/internal/shell"
	"agentsched/internal/storage"
	logx "agentsched/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	logSvc *logx.Service
	log    logx.Logger

	bus      eventbus.Bus
	registry *schedule.Registry
	loop     *schedule.Loop
	runner   *agent.Runner
	dir      *mcpdir.Directory
	settings *config.Settings
	store    storage.Store
	cron     *cron.Cron
	sh       *shell.Shell

	grace time.Duration
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File != "",
			Path:    cfg.Logging.File,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	grace, err := cfg.ShutdownGrace()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:   cfgm,
		logSvc: logSvc,
		log:    log,
		bus:    eventbus.New(),
		grace:  grace,
	}
	a.sup = supervisor.New(context.Background(),
		supervisor.WithLogger(log.With(logx.String("comp", "supervisor"))))

	a.settings = config.NewSettings(cfg.Settings.Path, log.With(logx.String("comp", "settings")))
	a.dir = mcpdir.New(cfg.ClaudeConfigPath, log.With(logx.String("comp", "mcpdir")))

	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		store, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.store = store
	}

	backend := agent.NewCLIBackend(cfg.Backend.Binary, log.With(logx.String("comp", "backend")))
	a.runner = agent.NewRunner(backend, a.settings, a.sup, a.bus,
		log.With(logx.String("comp", "runner")),
		agent.WithChunkLogRate(cfg.Backend.OutputLogPerSec))

	a.registry = schedule.NewRegistry()
	a.loop = schedule.NewLoop(a.registry, a.runner, a.bus,
		log.With(logx.String("comp", "scheduler")))

	a.sh = shell.New(os.Stdin, os.Stdout)
	a.registerCommands()

	if cfg.Housekeeping != nil && cfg.Housekeeping.AutosaveCron != "" {
		a.cron = cron.New()
		_, err := a.cron.AddFunc(cfg.Housekeeping.AutosaveCron, a.autosave)
		if err != nil {
			return nil, fmt.Errorf("housekeeping.autosave_cron: %w", err)
		}
	}

	return a, nil
}

// Run starts background workers and blocks on the operator shell. It
// returns once the operator exits or ctx is canceled, after shutdown.
func (a *App) Run(ctx context.Context) error {
	if err := a.loadSchedule(ctx); err != nil {
		a.log.Warn("schedule restore failed; starting empty", logx.Err(err))
	}

	a.sup.Go("scheduler-loop", func(ctx context.Context) error {
		return a.loop.Run(ctx)
	})
	a.sup.Go0("config-watch", func(ctx context.Context) {
		_ = a.cfgm.Watch(ctx)
	})
	a.sup.Go0("config-apply", a.watchConfigUpdates)
	a.sup.Go0("event-log", a.logTaskEvents)
	if a.cron != nil {
		a.cron.Start()
	}

	a.log.Info("scheduler running",
		logx.Int("tasks", a.registry.Len()),
		logx.Int("mcp_servers", a.dir.Len()))

	shellDone := make(chan error, 1)
	go func() { shellDone <- a.sh.Run(ctx) }()

	var err error
	select {
	case <-ctx.Done():
	case err = <-shellDone:
	}
	a.shutdown()
	return err
}

// watchConfigUpdates applies hot-reloadable settings from config changes.
// Only logging is live today; the rest needs a restart.
func (a *App) watchConfigUpdates(ctx context.Context) {
	ch := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File != "",
					Path:    cfg.Logging.File,
				},
			})
			a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

// logTaskEvents mirrors task lifecycle events into the log.
func (a *App) logTaskEvents(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(32)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			switch data := e.Data.(type) {
			case eventbus.ActivationData:
				a.log.Debug("task activated",
					logx.Int("index", data.Index),
					logx.String("task", data.Desc))
			case eventbus.FinishData:
				if e.Type == eventbus.TypeTaskFailed {
					a.log.Warn("task failed",
						logx.String("task", data.Desc),
						logx.String("err", data.Err))
				} else {
					a.log.Debug("task finished",
						logx.String("task", data.Desc),
						logx.Float64("cost_usd", data.CostUSD))
				}
			}
		}
	}
}

func (a *App) autosave() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.saveSchedule(ctx); err != nil {
		a.log.Warn("autosave failed", logx.Err(err))
	}
}

// loadSchedule restores persisted tasks into the registry. A corrupt or
// missing snapshot logs a warning and leaves the registry empty.
func (a *App) loadSchedule(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	records, err := a.store.LoadTasks(ctx)
	if err != nil {
		return err
	}
	tasks := make([]*schedule.Task, 0, len(records))
	for i, r := range records {
		t, err := r.ToTask()
		if err != nil {
			a.log.Warn("skipping invalid stored task",
				logx.Int("index", i), logx.Err(err))
			continue
		}
		tasks = append(tasks, t)
	}
	a.registry.Replace(tasks)
	if len(tasks) > 0 {
		a.log.Info("schedule restored", logx.Int("tasks", len(tasks)))
	}
	return nil
}

func (a *App) saveSchedule(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	list := a.registry.List()
	records := make([]storage.TaskRecord, 0, len(list))
	for _, t := range list {
		records = append(records, storage.FromTask(t))
	}
	return a.store.SaveTasks(ctx, records)
}

func (a *App) shutdown() {
	a.log.Info("shutting down", logx.Duration("grace", a.grace))

	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-time.After(a.grace):
		}
	}

	if !a.loop.Stop(a.grace) {
		a.log.Warn("scheduler loop did not stop in time")
	}
	a.sup.Cancel()
	if !a.sup.Wait(a.grace) {
		a.log.Warn("background workers did not drain in time",
			logx.Any("stats", a.sup.Stats()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.grace)
	defer cancel()
	if err := a.saveSchedule(ctx); err != nil {
		a.log.Error("final schedule save failed", logx.Err(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	_ = a.logSvc.Close()
}
