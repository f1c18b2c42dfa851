// Command schedulerd is a small reference daemon around the scheduler
// library: it loads a YAML/JSON config, registers a handful of
// demonstration tasks from it, runs the scheduler in background mode, and
// hot-reloads its own logging configuration on file change. See §4.11 of
// the specification for the intended shape of an embedder's front-end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"taskscheduler"
	"taskscheduler/internal/config"
	"taskscheduler/internal/eventbus"
	"taskscheduler/internal/task/engine"
	logx "taskscheduler/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./schedulerd.yaml", "path to config file (YAML or JSON)")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	mgr := config.NewConfigManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(toLogxConfig(cfg.Logging))
	defer logSvc.Close()
	mgr.SetLogger(log)

	log.Info("schedulerd starting", logx.String("config", cfgPath))

	bus := eventbus.New()

	eng, err := newDemoEngine(cfg.TaskEngine, log, bus)
	if err != nil {
		return fmt.Errorf("build task engine: %w", err)
	}

	checkInterval, err := config.ParseDurationOrDefault("scheduler.check_interval", cfg.Scheduler.CheckInterval, 100*time.Millisecond)
	if err != nil {
		return err
	}
	shutdownGrace, err := config.ParseDurationOrDefault("scheduler.shutdown_grace", cfg.Scheduler.ShutdownGrace, 5*time.Second)
	if err != nil {
		return err
	}
	mode := scheduler.ModeBackground
	if cfg.Scheduler.Mode == "foreground" {
		mode = scheduler.ModeForeground
	}

	sched := scheduler.New(scheduler.Config{
		Mode:          mode,
		CheckInterval: checkInterval,
		ShutdownGrace: shutdownGrace,
		Clock:         scheduler.RealClock{},
		Logger:        log,
		Bus:           bus,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if eng != nil {
		eng.Start(ctx)
		defer eng.Stop(context.Background())
	}

	if err := registerDemoTasks(sched, cfg.Tasks, log, eng, bus); err != nil {
		return fmt.Errorf("register tasks: %w", err)
	}

	// Once the scheduler has started, a config reload is only allowed to
	// touch logging — scheduler.* and tasks.* are construction-time only
	// (§4.7). This validator is installed before Start so the very first
	// reload after startup is already protected.
	started := false
	mgr.SetValidator(func(ctx context.Context, newCfg *config.Config) error {
		if !started {
			return nil
		}
		changed, _ := config.SummarizeConfigChange(cfg, newCfg)
		for _, section := range changed {
			if section == "scheduler" || section == "tasks" {
				return fmt.Errorf("%w: %s section is immutable after start", scheduler.ErrIllegalState, section)
			}
		}
		return nil
	})

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	started = true

	go func() {
		if err := mgr.Watch(ctx); err != nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	reloads := mgr.Subscribe(4)
	defer mgr.Unsubscribe(reloads)
	go watchLogConfig(ctx, reloads, logSvc, log)

	notifyReady(log)
	go runWatchdog(ctx, log)

	<-ctx.Done()
	notifyStopping(log)
	log.Info("schedulerd stopping", logx.String("reason", ctx.Err().Error()))

	logStatusLine(sched, log)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace+time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		log.Error("scheduler stop error", logx.Err(err))
		return err
	}
	return nil
}

// watchLogConfig applies only the logging section of a reloaded config —
// scheduler/task sections are already frozen by the validator installed in
// run(), so this never needs to touch the live Scheduler.
func watchLogConfig(ctx context.Context, reloads <-chan *config.Config, logSvc *logx.Service, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-reloads:
			if !ok {
				return
			}
			logSvc.Apply(toLogxConfig(cfg.Logging))
			log.Info("logging config reloaded", logx.String("level", cfg.Logging.Level))
		}
	}
}

func toLogxConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		ErrorRateLimit: lc.ErrorRateLimit,
	}
}

// registerDemoTasks wires the declarative tasks section onto the
// scheduler, falling back to three built-in demo tasks (heartbeat,
// history-trim housekeeping, a deliberately flaky task) when the config
// declares none — useful for a first run against the default config. When
// eng is non-nil, the flaky task is routed through it (see engine.go) so
// the optional advanced executor's retry/circuit-breaker paths are
// actually exercised rather than left dead in the tree.
func registerDemoTasks(sched *scheduler.Scheduler, tasks []config.TaskConfig, log logx.Logger, eng *engine.Service, bus eventbus.Bus) error {
	if len(tasks) == 0 {
		return registerBuiltinDemoTasks(sched, log, eng, bus)
	}
	history := newBoundedHistory(500)
	for _, tc := range tasks {
		spec, err := buildTaskSpec(tc)
		if err != nil {
			return err
		}
		fn, err := demoTaskBody(tc.Name, log, history, eng, bus)
		if err != nil {
			return err
		}
		if _, err := sched.Register(spec, fn); err != nil {
			return fmt.Errorf("register %q: %w", tc.Name, err)
		}
	}
	return nil
}

// demoTaskBody maps a task name from config to one of the three built-in
// demo bodies. A real embedder would instead look up its own function by
// name (or build TaskConfig from code, bypassing this indirection).
func demoTaskBody(name string, log logx.Logger, history *boundedHistory, eng *engine.Service, bus eventbus.Bus) (scheduler.TaskFunc, error) {
	switch name {
	case "heartbeat":
		return heartbeatTask(log), nil
	case "history-trim":
		return historyTrimTask(history), nil
	case "flaky-demo":
		if eng != nil {
			return runViaEngine(eng, bus, name, flakyTask()), nil
		}
		return flakyTask(), nil
	default:
		return nil, fmt.Errorf("unknown demo task name %q (expected heartbeat, history-trim, or flaky-demo)", name)
	}
}

func registerBuiltinDemoTasks(sched *scheduler.Scheduler, log logx.Logger, eng *engine.Service, bus eventbus.Bus) error {
	heartbeat, err := scheduler.NewTaskSpec("heartbeat", 30*time.Second, scheduler.WithStartImmediately(true))
	if err != nil {
		return err
	}
	if _, err := sched.Register(heartbeat, heartbeatTask(log)); err != nil {
		return err
	}

	history := newBoundedHistory(500)
	trim, err := scheduler.NewTaskSpec("history-trim", 5*time.Minute,
		scheduler.WithPriority(scheduler.PriorityLow),
		scheduler.WithStartImmediately(false),
	)
	if err != nil {
		return err
	}
	if _, err := sched.Register(trim, historyTrimTask(history)); err != nil {
		return err
	}

	flaky, err := scheduler.NewTaskSpec("flaky-demo", time.Minute,
		scheduler.WithPriority(scheduler.PriorityHigh),
		scheduler.WithMaxRunningTime(10*time.Second),
	)
	if err != nil {
		return err
	}
	flakyBody := flakyTask()
	if eng != nil {
		flakyBody = runViaEngine(eng, bus, "flaky-demo", flakyBody)
	}
	if _, err := sched.Register(flaky, flakyBody); err != nil {
		return err
	}
	return nil
}

func logStatusLine(sched *scheduler.Scheduler, log logx.Logger) {
	snap := sched.Snapshot()
	for _, view := range snap.Tasks {
		age := "never"
		if !view.LastRunFinishedAt.IsZero() {
			age = humanize.Time(view.LastRunFinishedAt)
		}
		log.Info("task status",
			logx.String("task", view.Name),
			logx.String("status", view.Status.String()),
			logx.String("run_count", humanize.Comma(int64(view.RunCount))),
			logx.String("last_finished", age),
		)
	}
	log.Info("goroutine status",
		logx.String("active", humanize.Comma(snap.Goroutines.Active)),
		logx.String("started", humanize.Comma(int64(snap.Goroutines.Started))),
		logx.String("panics", humanize.Comma(int64(snap.Goroutines.Panics))),
	)
}
