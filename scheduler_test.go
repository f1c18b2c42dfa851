package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "taskscheduler/pkg/logx"
)

// TestBasicPeriodicDispatch covers the "basic periodic" scenario: a task
// with start_immediately=true and a 10s interval runs once per tick it is
// due, finish-anchored (next_due_at computed from completion time).
func TestBasicPeriodicDispatch(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewFakeClock(start)
	reg := newTaskRegistry()
	exec := newExecutor(clk, logx.Logger{}, nil, nil)

	spec, err := NewTaskSpec("heartbeat", 10*time.Second, WithStartImmediately(true))
	if err != nil {
		t.Fatalf("NewTaskSpec: %v", err)
	}
	var invocations int32
	fn := func(ctx context.Context) error {
		atomic.AddInt32(&invocations, 1)
		return nil
	}
	st, err := reg.addNew(spec, fn, clk.Now())
	if err != nil {
		t.Fatalf("addNew: %v", err)
	}

	loop := &dispatchLoop{registry: reg, executor: exec, clock: clk, checkInterval: time.Second}

	for i := 1; i <= 3; i++ {
		done := make(chan struct{})
		h := st.callbacks.AddSuccess(func(TaskView) { close(done) })

		loop.tick()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("run %d did not complete", i)
		}
		st.callbacks.Remove(h)

		view := st.View()
		if view.RunCount != uint64(i) {
			t.Fatalf("run %d: RunCount = %d, want %d", i, view.RunCount, i)
		}
		if view.SuccessCount != uint64(i) {
			t.Fatalf("run %d: SuccessCount = %d, want %d", i, view.SuccessCount, i)
		}
		if view.Status != StatusCompleted {
			t.Fatalf("run %d: Status = %v, want COMPLETED", i, view.Status)
		}

		clk.Advance(10 * time.Second)
	}

	if got := atomic.LoadInt32(&invocations); got != 3 {
		t.Fatalf("invocations = %d, want 3", got)
	}
}

// TestDispatchPriorityOrder covers the "priority order" scenario: within a
// single tick, CRITICAL dispatches before NORMAL before LOW, regardless of
// registration order. Running transitions are notified synchronously inside
// tick(), before any task body goroutine is spawned, so the recorded order
// is deterministic without any wait.
func TestDispatchPriorityOrder(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	reg := newTaskRegistry()
	exec := newExecutor(clk, logx.Logger{}, nil, nil)
	loop := &dispatchLoop{registry: reg, executor: exec, clock: clk, checkInterval: time.Minute}

	var order []string
	register := func(name string, pr Priority) {
		spec, err := NewTaskSpec(name, time.Minute, WithPriority(pr), WithStartImmediately(true))
		if err != nil {
			t.Fatalf("NewTaskSpec(%s): %v", name, err)
		}
		st, err := reg.addNew(spec, func(context.Context) error { return nil }, clk.Now())
		if err != nil {
			t.Fatalf("addNew(%s): %v", name, err)
		}
		st.callbacks.AddStatusChange(func(view TaskView, old, new Status) {
			if new == StatusRunning {
				order = append(order, view.Name)
			}
		})
	}

	register("A", PriorityNormal)
	register("B", PriorityCritical)
	register("C", PriorityLow)

	loop.tick()

	want := []string{"B", "A", "C"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// TestWindowAdmissionBlocksAndOpens covers the "window admission" scenario:
// a due task outside its time-of-day window is never dispatched; once the
// window opens, it runs without any additional registration.
func TestWindowAdmissionBlocksAndOpens(t *testing.T) {
	start := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	clk := NewFakeClock(start)
	reg := newTaskRegistry()
	exec := newExecutor(clk, logx.Logger{}, nil, nil)

	window := TimeWindow{Start: TimeOfDay{Hour: 9}, End: TimeOfDay{Hour: 17}}
	spec, err := NewTaskSpec("business-hours", time.Hour, WithStartImmediately(true), WithTimeWindows(window))
	if err != nil {
		t.Fatalf("NewTaskSpec: %v", err)
	}
	var invocations int32
	fn := func(context.Context) error {
		atomic.AddInt32(&invocations, 1)
		return nil
	}
	st, err := reg.addNew(spec, fn, clk.Now())
	if err != nil {
		t.Fatalf("addNew: %v", err)
	}

	loop := &dispatchLoop{registry: reg, executor: exec, clock: clk, checkInterval: time.Minute}

	loop.tick()
	if got := atomic.LoadInt32(&invocations); got != 0 {
		t.Fatalf("dispatched outside window: invocations = %d", got)
	}
	if st.View().Status != StatusPending {
		t.Fatalf("Status = %v, want PENDING while window is closed", st.View().Status)
	}

	clk.Set(time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC))

	done := make(chan struct{})
	st.callbacks.AddSuccess(func(TaskView) { close(done) })
	loop.tick()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("task did not dispatch once the window opened")
	}
	if got := atomic.LoadInt32(&invocations); got != 1 {
		t.Fatalf("invocations = %d, want 1", got)
	}
}

// TestTimeoutSynthesizesFailure covers the "timeout" scenario: a body that
// outlives max_running_time is failed with ErrorKindTimeout and its
// goroutine is abandoned (left to return on its own, cooperatively
// cancelled via ctx).
func TestTimeoutSynthesizesFailure(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	reg := newTaskRegistry()
	exec := newExecutor(clk, logx.Logger{}, nil, nil)

	spec, err := NewTaskSpec("slow", time.Minute, WithStartImmediately(true), WithMaxRunningTime(5*time.Second))
	if err != nil {
		t.Fatalf("NewTaskSpec: %v", err)
	}
	bodyEntered := make(chan struct{})
	fn := func(ctx context.Context) error {
		close(bodyEntered)
		<-ctx.Done()
		return ctx.Err()
	}
	st, err := reg.addNew(spec, fn, clk.Now())
	if err != nil {
		t.Fatalf("addNew: %v", err)
	}

	failed := make(chan TaskView, 1)
	st.callbacks.AddFailure(func(view TaskView, err error) { failed <- view })

	exec.TryDispatch(st, fn)

	select {
	case <-bodyEntered:
	case <-time.After(time.Second):
		t.Fatalf("body was never invoked")
	}

	clk.Advance(5 * time.Second)

	select {
	case view := <-failed:
		if view.Status != StatusFailed {
			t.Fatalf("Status = %v, want FAILED", view.Status)
		}
		if view.LastError == nil || view.LastError.Kind != ErrorKindTimeout {
			t.Fatalf("LastError = %+v, want Kind=TIMEOUT", view.LastError)
		}
		if view.ErrorCount != 1 {
			t.Fatalf("ErrorCount = %d, want 1", view.ErrorCount)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout did not synthesize a failure")
	}
}

// TestPauseBlocksDispatchResumeReenables covers the "pause/resume"
// scenario.
func TestPauseBlocksDispatchResumeReenables(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	reg := newTaskRegistry()
	exec := newExecutor(clk, logx.Logger{}, nil, nil)

	spec, err := NewTaskSpec("job", time.Minute, WithStartImmediately(true))
	if err != nil {
		t.Fatalf("NewTaskSpec: %v", err)
	}
	var invocations int32
	fn := func(context.Context) error {
		atomic.AddInt32(&invocations, 1)
		return nil
	}
	st, err := reg.addNew(spec, fn, clk.Now())
	if err != nil {
		t.Fatalf("addNew: %v", err)
	}

	if err := st.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if st.View().Status != StatusPaused {
		t.Fatalf("Status = %v, want PAUSED", st.View().Status)
	}

	loop := &dispatchLoop{registry: reg, executor: exec, clock: clk, checkInterval: time.Minute}
	loop.tick()
	if got := atomic.LoadInt32(&invocations); got != 0 {
		t.Fatalf("paused task dispatched: invocations = %d", got)
	}

	if err := st.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if st.View().Status != StatusPending {
		t.Fatalf("Status after Resume = %v, want PENDING", st.View().Status)
	}

	done := make(chan struct{})
	st.callbacks.AddSuccess(func(TaskView) { close(done) })
	loop.tick()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("resumed task did not dispatch")
	}
}

// TestFailureThenRecovery covers the "failure continuation" scenario: a
// failed task is not removed from scheduling — it becomes due again like
// any COMPLETED task, and a later success clears none of the prior error
// accounting.
func TestFailureThenRecovery(t *testing.T) {
	start := time.Unix(0, 0)
	clk := NewFakeClock(start)
	reg := newTaskRegistry()
	exec := newExecutor(clk, logx.Logger{}, nil, nil)

	spec, err := NewTaskSpec("flaky", 10*time.Second, WithStartImmediately(true))
	if err != nil {
		t.Fatalf("NewTaskSpec: %v", err)
	}

	var calls int32
	fn := func(context.Context) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("boom")
		}
		return nil
	}
	st, err := reg.addNew(spec, fn, clk.Now())
	if err != nil {
		t.Fatalf("addNew: %v", err)
	}
	loop := &dispatchLoop{registry: reg, executor: exec, clock: clk, checkInterval: time.Second}

	failed := make(chan TaskView, 1)
	h := st.callbacks.AddFailure(func(view TaskView, err error) { failed <- view })
	loop.tick()
	select {
	case view := <-failed:
		if view.Status != StatusFailed {
			t.Fatalf("Status = %v, want FAILED", view.Status)
		}
		if view.ErrorCount != 1 {
			t.Fatalf("ErrorCount = %d, want 1", view.ErrorCount)
		}
		if view.LastError == nil || view.LastError.Kind != ErrorKindUserException {
			t.Fatalf("LastError = %+v, want Kind=USER_EXCEPTION", view.LastError)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a failure callback")
	}
	st.callbacks.Remove(h)

	clk.Advance(10 * time.Second)

	succeeded := make(chan TaskView, 1)
	st.callbacks.AddSuccess(func(view TaskView) { succeeded <- view })
	loop.tick()
	select {
	case view := <-succeeded:
		if view.RunCount != 2 {
			t.Fatalf("RunCount = %d, want 2", view.RunCount)
		}
		if view.SuccessCount != 1 {
			t.Fatalf("SuccessCount = %d, want 1", view.SuccessCount)
		}
		if view.ErrorCount != 1 {
			t.Fatalf("ErrorCount = %d, want 1 (unchanged by the later success)", view.ErrorCount)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a recovery success callback")
	}
}

// TestSchedulerLifecycle exercises the public façade end to end: register,
// start in background mode, observe a run through the handle, then stop
// idempotently.
func TestSchedulerLifecycle(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	sched := New(Config{
		Mode:          ModeBackground,
		Clock:         clk,
		CheckInterval: time.Millisecond,
	})

	spec, err := NewTaskSpec("heartbeat", time.Minute, WithStartImmediately(true))
	if err != nil {
		t.Fatalf("NewTaskSpec: %v", err)
	}
	done := make(chan struct{})
	handle, err := sched.Register(spec, func(context.Context) error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sched.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start: err = %v, want ErrAlreadyStarted", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("task never ran")
	}

	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("second Stop should be a no-op, got: %v", err)
	}

	if handle.Name() != "heartbeat" {
		t.Fatalf("Name() = %q, want heartbeat", handle.Name())
	}
}

// TestRegisterRejectsDuplicateName covers §4.2's uniqueness requirement.
func TestRegisterRejectsDuplicateName(t *testing.T) {
	sched := New(Config{Clock: NewFakeClock(time.Unix(0, 0))})
	spec, err := NewTaskSpec("dup", time.Second)
	if err != nil {
		t.Fatalf("NewTaskSpec: %v", err)
	}
	if _, err := sched.Register(spec, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err = sched.Register(spec, func(context.Context) error { return nil })
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("second Register: err = %v, want ErrDuplicateName", err)
	}
}
