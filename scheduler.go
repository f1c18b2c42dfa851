// Package scheduler implements an in-process periodic task scheduler:
// user-supplied callables run at configurable intervals, in priority
// order, inside optional time-of-day admission windows, with a full
// lifecycle (pause/resume/stop/reset/cancel) and observable state
// transitions.
//
// A Scheduler owns zero or more tasks (Register), runs a DispatchLoop on a
// tick (Start), and hands each due task to an Executor that enforces
// max_running_time and reports the outcome through both a per-task
// CallbackRegistry and, optionally, an observability bus. See the TaskState
// methods in state.go for the exact transition rules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskscheduler/internal/eventbus"
	rtsup "taskscheduler/internal/runtime/supervisor"
	logx "taskscheduler/pkg/logx"
)

// Mode selects where the DispatchLoop runs.
type Mode int

const (
	// ModeBackground spawns the loop on its own goroutine; Start returns
	// immediately.
	ModeBackground Mode = iota
	// ModeForeground runs the loop on the calling goroutine; Start blocks
	// until Stop is called or the passed context is cancelled.
	ModeForeground
)

func (m Mode) String() string {
	if m == ModeForeground {
		return "foreground"
	}
	return "background"
}

const (
	defaultCheckInterval = 100 * time.Millisecond
	defaultShutdownGrace = 5 * time.Second
)

// Config configures a Scheduler at construction. All fields are optional;
// the zero value is a usable background scheduler polling every 100ms with
// a 5s shutdown grace, a real clock, and no logging or observability bus.
type Config struct {
	Mode          Mode
	CheckInterval time.Duration
	ShutdownGrace time.Duration
	Clock         Clock
	Logger        logx.Logger
	Bus           eventbus.Bus
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	if c.Clock == nil {
		c.Clock = RealClock{}
	}
	return c
}

// Scheduler is the public façade: it owns the task registry, runs the
// dispatch loop in foreground or background mode, and coordinates
// shutdown. See §4.7 of the design for the full operation contract.
type Scheduler struct {
	cfg      Config
	registry *taskRegistry
	executor *Executor

	mu        sync.Mutex
	mode      Mode
	started   bool
	stopped   bool
	sup       *rtsup.Supervisor
	supCancel context.CancelFunc
}

// New builds a Scheduler from cfg. It does not start the dispatch loop —
// call Start for that.
func New(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	reg := newTaskRegistry()
	return &Scheduler{
		cfg:      cfg,
		registry: reg,
		executor: newExecutor(cfg.Clock, cfg.Logger, nil, cfg.Bus),
		mode:     cfg.Mode,
	}
}

// Register adds a task to the scheduler. Allowed before and after Start.
// Returns ErrDuplicateName if spec.Name collides with an existing task.
func (s *Scheduler) Register(spec TaskSpec, fn TaskFunc) (*TaskHandle, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: callable must not be nil", ErrInvalidSpec)
	}
	t, err := s.registry.addNew(spec, fn, s.cfg.Clock.Now())
	if err != nil {
		return nil, err
	}
	if !s.cfg.Logger.IsZero() {
		s.cfg.Logger.Info("task registered",
			logx.String("task", spec.Name),
			logx.String("priority", spec.Priority.String()),
			logx.Duration("interval", spec.Interval),
		)
	}
	return &TaskHandle{state: t, clock: s.cfg.Clock}, nil
}

// Lookup returns the handle for a previously registered task.
func (s *Scheduler) Lookup(name string) (*TaskHandle, error) {
	t, ok := s.registry.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return &TaskHandle{state: t, clock: s.cfg.Clock}, nil
}

// Deregister removes a task. If it is currently RUNNING, it is marked
// CANCELLED and removed from the registry immediately — the in-flight
// goroutine, if any, is signalled but allowed to finish on its own.
func (s *Scheduler) Deregister(name string) error {
	t, ok := s.registry.get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	_ = t.Cancel()
	s.registry.remove(name)
	return nil
}

// Names lists all currently registered task names in registration order.
func (s *Scheduler) Names() []string { return s.registry.names() }

// Mode reports the scheduler's current run mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode changes the run mode. Only valid before Start; returns
// ErrIllegalState once the scheduler has started.
func (s *Scheduler) SetMode(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrIllegalState
	}
	s.mode = m
	return nil
}

// Start begins dispatch. In ModeBackground it spawns the loop and returns
// immediately. In ModeForeground it blocks the caller until Stop is called
// or ctx is cancelled. Calling Start twice returns ErrAlreadyStarted.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.stopped = false
	mode := s.mode

	supCtx, cancel := context.WithCancel(context.Background())
	sup := rtsup.NewSupervisor(supCtx, rtsup.WithLogger(s.cfg.Logger))
	s.sup = sup
	s.supCancel = cancel
	s.executor.sup = sup
	s.mu.Unlock()

	loop := &dispatchLoop{
		registry:      s.registry,
		executor:      s.executor,
		clock:         s.cfg.Clock,
		checkInterval: s.cfg.CheckInterval,
		log:           s.cfg.Logger,
	}

	if !s.cfg.Logger.IsZero() {
		s.cfg.Logger.Info("scheduler starting",
			logx.String("mode", mode.String()),
			logx.Duration("check_interval", s.cfg.CheckInterval),
		)
	}

	if mode == ModeForeground {
		done := make(chan struct{})
		sup.Go0("dispatch-loop", func(loopCtx context.Context) {
			loop.run(loopCtx)
			close(done)
		})
		select {
		case <-ctx.Done():
			return s.Stop(context.Background())
		case <-done:
			return nil
		}
	}

	sup.Go0("dispatch-loop", loop.run)
	return nil
}

// Stop signals shutdown and waits (bounded by ShutdownGrace) for in-flight
// tasks to finish. Tasks still running at grace expiry are abandoned and
// transitioned to CANCELLED. Idempotent: a second call is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	sup := s.sup
	cancel := s.supCancel
	s.mu.Unlock()

	if !s.cfg.Logger.IsZero() {
		s.cfg.Logger.Info("scheduler stopping", logx.Duration("grace", s.cfg.ShutdownGrace))
	}

	cancel()

	waitCtx, waitCancel := context.WithTimeout(ctx, s.cfg.ShutdownGrace)
	defer waitCancel()
	err := sup.Stop(waitCtx)

	s.abandonRunning()

	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// abandonRunning cancels and marks CANCELLED any task still RUNNING after
// the shutdown grace period expires.
func (s *Scheduler) abandonRunning() {
	for _, t := range s.registry.snapshot() {
		t.mu.Lock()
		running := t.status == StatusRunning
		t.mu.Unlock()
		if running {
			_ = t.Cancel()
		}
	}
}
