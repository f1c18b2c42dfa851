package main

import (
	"context"
	"fmt"

	"taskscheduler/internal/config"
	"taskscheduler/internal/eventbus"
	"taskscheduler/internal/task/engine"
	logx "taskscheduler/pkg/logx"
)

// buildEngineConfig converts the declarative task_engine section into an
// engine.Config. A nil section yields engine.Config{} (engine.New fills in
// its own defaults). Enabled is set by the caller, not here.
func buildEngineConfig(tc *config.TaskEngineConfig) (engine.Config, error) {
	if tc == nil {
		return engine.Config{}, nil
	}
	defaultTimeout, err := config.ParseDurationField("task_engine.default_timeout", tc.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	maxQueueDelay, err := config.ParseDurationField("task_engine.max_queue_delay", tc.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	circuitBase, err := config.ParseDurationField("task_engine.circuit_base_delay", tc.CircuitBaseDelay)
	if err != nil {
		return engine.Config{}, err
	}
	circuitMax, err := config.ParseDurationField("task_engine.circuit_max_delay", tc.CircuitMaxDelay)
	if err != nil {
		return engine.Config{}, err
	}
	circuitReset, err := config.ParseDurationField("task_engine.circuit_reset_after", tc.CircuitResetAfter)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Workers:             tc.Workers,
		QueueSize:           tc.QueueSize,
		DefaultTimeout:      defaultTimeout,
		MaxQueueDelay:       maxQueueDelay,
		HistorySize:         tc.HistorySize,
		RetryMax:            tc.RetryMax,
		CircuitTripFailures: tc.CircuitTripFailures,
		CircuitBaseDelay:    circuitBase,
		CircuitMaxDelay:     circuitMax,
		CircuitResetAfter:   circuitReset,
	}, nil
}

// newDemoEngine builds the opt-in advanced executor described in §9 of the
// specification: bounded worker pool, retry with jittered backoff, and a
// consecutive-failure circuit breaker. The core Scheduler never requires
// this — it is wired here so the demo daemon exercises it end to end, the
// same way it exercises sdnotify and humanize regardless of config. A
// config's task_engine.enabled=false opts back out.
func newDemoEngine(tc *config.TaskEngineConfig, log logx.Logger, bus eventbus.Bus) (*engine.Service, error) {
	if tc != nil && tc.Enabled != nil && !*tc.Enabled {
		return nil, nil
	}
	cfg, err := buildEngineConfig(tc)
	if err != nil {
		return nil, fmt.Errorf("task_engine config: %w", err)
	}
	cfg.Enabled = true
	return engine.New(cfg, log, bus), nil
}

// runViaEngine bridges a scheduler.TaskFunc onto the engine's queue+worker
// model: the scheduler's DispatchLoop still owns triggering (it is
// trigger-only, per the engine's own doc comment), while the engine owns
// bounded concurrency, retry, and circuit breaking for the actual run.
//
// The engine retries Run internally on failure before reporting a final
// outcome, so the bridge cannot just wait on the first invocation of Run —
// it subscribes to the engine's own completion events (task.finished,
// task.failed, task.skipped, task.dropped) and waits for the one carrying
// this submission's task name. (The dispatch loop never has two runs of the
// same named task in flight at once, so name matching is unambiguous here.)
// That keeps the returned TaskFunc's blocking semantics (and
// TaskSpec.MaxRunningTime/success/failure accounting) accurate even across
// engine-level retries and circuit-breaker skips.
func runViaEngine(eng *engine.Service, bus eventbus.Bus, name string, body func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		events, unsubscribe := bus.Subscribe(8)
		defer unsubscribe()

		task := engine.Task{Name: name, Run: body}
		if err := eng.Submit(ctx, task); err != nil {
			return fmt.Errorf("engine submit %q: %w", name, err)
		}

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-events:
				if !ok {
					return fmt.Errorf("engine submit %q: event bus closed before completion", name)
				}
				te, ok := ev.Data.(engine.TaskEvent)
				if !ok || te.Name != name {
					continue
				}
				switch ev.Type {
				case "task.finished":
					return nil
				case "task.failed":
					return fmt.Errorf("engine task %q: %s", name, te.Error)
				case "task.skipped", "task.dropped":
					return fmt.Errorf("engine task %q: %s", name, te.Error)
				}
			}
		}
	}
}
