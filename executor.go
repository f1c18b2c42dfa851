package scheduler

import (
	"context"
	"fmt"
	"time"

	"taskscheduler/internal/eventbus"
	logx "taskscheduler/pkg/logx"
	rtsup "taskscheduler/internal/runtime/supervisor"
)

// TaskFunc is a registered task's body. It should observe ctx.Done() and
// return promptly when cancelled — the scheduler's cancellation is always
// cooperative: on timeout, Stop or Cancel the body is signalled through ctx
// and never forcibly terminated.
type TaskFunc func(ctx context.Context) error

// Executor runs a single task invocation in isolation: it owns the CAS into
// RUNNING, timeout enforcement, outcome capture, and the transition back
// out of RUNNING (COMPLETED/FAILED/STOPPED).
type Executor struct {
	clock Clock
	log   logx.Logger
	sup   *rtsup.Supervisor
	bus   eventbus.Bus
}

func newExecutor(clock Clock, log logx.Logger, sup *rtsup.Supervisor, bus eventbus.Bus) *Executor {
	return &Executor{clock: clock, log: log, sup: sup, bus: bus}
}

type runOutcome struct {
	err error
}

// TryDispatch attempts to launch t's body. It re-validates due-ness and
// window admission under the task's lock (the "admission race" guard in
// §4.6): if the window has closed since selection, the launch is skipped
// and next_due_at is advanced by one interval without counting a run.
func (e *Executor) TryDispatch(t *TaskState, fn TaskFunc) {
	now := e.clock.Now()

	t.mu.Lock()
	if t.status != StatusPending || now.Before(t.nextDueAt) {
		t.mu.Unlock()
		return
	}
	if !AdmitsAny(t.spec.TimeWindows, TimeOfDayFromTime(now)) {
		t.nextDueAt = now.Add(t.spec.Interval)
		t.mu.Unlock()
		return
	}

	old := t.status
	runCtx, cancel := context.WithCancel(context.Background())
	t.runCancel = cancel
	t.status = StatusRunning
	t.lastRunStartedAt = now
	t.runCount++
	t.notifyStatusLocked(old, StatusRunning)
	t.mu.Unlock()

	e.publishBus(t.View(), old, StatusRunning, nil)

	name := "task." + t.spec.Name
	run := func(_ context.Context) {
		e.runOnce(t, fn, runCtx, cancel)
	}
	if e.sup != nil {
		e.sup.Go0(name, run)
	} else {
		go run(context.Background())
	}
}

func (e *Executor) runOnce(t *TaskState, fn TaskFunc, runCtx context.Context, cancel context.CancelFunc) {
	done := make(chan runOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runOutcome{err: fmt.Errorf("%w: %v", errRecoveredPanic, r)}
			}
		}()
		done <- runOutcome{err: fn(runCtx)}
	}()

	if t.spec.MaxRunningTime > 0 {
		timer := e.clock.NewTimer(t.spec.MaxRunningTime)
		select {
		case o := <-done:
			timer.Stop()
			cancel()
			e.finish(t, o.err, false)
		case <-timer.C():
			cancel()
			e.finish(t, nil, true)
			// The body's goroutine is now detached: it may still be
			// running, but the scheduler has already moved on and
			// counted the task as failed, per §4.5.
		}
		return
	}

	o := <-done
	cancel()
	e.finish(t, o.err, false)
}

var errRecoveredPanic = fmt.Errorf("recovered panic in task body")

func (e *Executor) finish(t *TaskState, bodyErr error, timedOut bool) {
	now := e.clock.Now()

	t.mu.Lock()
	if t.status != StatusRunning {
		// Cancel() (or a concurrent timeout synthesis) already moved the
		// task out of RUNNING; this completion is stale, discard it.
		t.lastRunFinishedAt = now
		t.runCancel = nil
		t.mu.Unlock()
		return
	}

	old := t.status
	t.runCancel = nil
	t.lastRunFinishedAt = now

	if t.pendingStop {
		t.pendingStop = false
		t.status = StatusStopped
		t.notifyStatusLocked(old, StatusStopped)
		view := t.viewLocked()
		t.mu.Unlock()
		e.publishBus(view, old, StatusStopped, nil)
		if !e.log.IsZero() {
			e.log.Debug("task stopped", logx.String("task", view.Name))
		}
		return
	}

	var asErr error
	switch {
	case timedOut:
		t.errorCount++
		terr := &TaskError{Kind: ErrorKindTimeout}
		t.lastError = terr
		t.status = StatusFailed
		t.nextDueAt = now.Add(t.spec.Interval)
		t.notifyStatusLocked(old, StatusFailed)
		t.callbacks.notifyFailure(t.viewLocked(), terr)
		asErr = terr
	case bodyErr != nil:
		t.errorCount++
		terr := &TaskError{Kind: ErrorKindUserException, Message: bodyErr.Error()}
		t.lastError = terr
		t.status = StatusFailed
		t.nextDueAt = now.Add(t.spec.Interval)
		t.notifyStatusLocked(old, StatusFailed)
		t.callbacks.notifyFailure(t.viewLocked(), terr)
		asErr = terr
	default:
		t.successCount++
		t.lastError = nil
		t.status = StatusCompleted
		t.nextDueAt = now.Add(t.spec.Interval)
		t.notifyStatusLocked(old, StatusCompleted)
		t.callbacks.notifySuccess(t.viewLocked())
	}

	view := t.viewLocked()
	newStatus := t.status
	t.mu.Unlock()

	e.publishBus(view, old, newStatus, asErr)

	if !e.log.IsZero() {
		e.log.Debug("task finished",
			logx.String("task", view.Name),
			logx.String("status", newStatus.String()),
			logx.Duration("duration", view.LastRunFinishedAt.Sub(view.LastRunStartedAt)),
			logx.Uint64("run_count", view.RunCount),
		)
	}
}

func (e *Executor) publishBus(view TaskView, old, new Status, err error) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{
		Type: "task.status_change",
		Time: time.Now(),
		Data: TaskEvent{View: view, OldStatus: old, NewStatus: new, Err: err},
	})
}
