package scheduler

import (
	"errors"
	"testing"
	"time"
)

func newTestState(t *testing.T, opts ...TaskSpecOption) *TaskState {
	t.Helper()
	spec, err := NewTaskSpec("t", time.Minute, opts...)
	if err != nil {
		t.Fatalf("NewTaskSpec: %v", err)
	}
	return newTaskState(spec, 1, time.Unix(0, 0))
}

func TestPauseValidFromRestingStates(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusCompleted, StatusFailed} {
		st := newTestState(t)
		st.status = status
		if err := st.Pause(); err != nil {
			t.Fatalf("Pause from %v: %v", status, err)
		}
		if st.status != StatusPaused {
			t.Fatalf("status after Pause from %v = %v, want PAUSED", status, st.status)
		}
	}
}

func TestPauseIllegalFromRunningStoppedCancelled(t *testing.T) {
	for _, status := range []Status{StatusRunning, StatusStopped, StatusCancelled} {
		st := newTestState(t)
		st.status = status
		if err := st.Pause(); !errors.Is(err, ErrIllegalState) {
			t.Fatalf("Pause from %v: err = %v, want ErrIllegalState", status, err)
		}
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	st := newTestState(t)
	st.status = StatusPaused
	if err := st.Pause(); err != nil {
		t.Fatalf("Pause on already-paused task: %v", err)
	}
}

func TestResumeOnlyFromPaused(t *testing.T) {
	st := newTestState(t)
	if err := st.Resume(); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("Resume from PENDING: err = %v, want ErrIllegalState", err)
	}

	st.status = StatusPaused
	if err := st.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if st.status != StatusPending {
		t.Fatalf("status after Resume = %v, want PENDING", st.status)
	}
}

func TestStopFromRunningDefersUntilBodyReturns(t *testing.T) {
	st := newTestState(t)
	st.status = StatusRunning
	cancelled := false
	st.runCancel = func() { cancelled = true }

	if err := st.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if st.status != StatusRunning {
		t.Fatalf("status = %v, want RUNNING (transition deferred)", st.status)
	}
	if !st.pendingStop {
		t.Fatalf("pendingStop = false, want true")
	}
	if !cancelled {
		t.Fatalf("runCancel was not invoked")
	}
}

func TestStopFromRestingStateIsImmediate(t *testing.T) {
	st := newTestState(t)
	if err := st.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if st.status != StatusStopped {
		t.Fatalf("status = %v, want STOPPED", st.status)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	st := newTestState(t)
	st.status = StatusStopped
	if err := st.Stop(); err != nil {
		t.Fatalf("Stop on already-stopped task: %v", err)
	}
}

func TestResetOnlyFromStoppedOrCancelled(t *testing.T) {
	st := newTestState(t)
	if err := st.Reset(); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("Reset from PENDING: err = %v, want ErrIllegalState", err)
	}

	st.status = StatusStopped
	st.lastError = &TaskError{Kind: ErrorKindUserException, Message: "x"}
	if err := st.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if st.status != StatusPending {
		t.Fatalf("status after Reset = %v, want PENDING", st.status)
	}
	if st.lastError != nil {
		t.Fatalf("lastError = %+v, want nil after Reset", st.lastError)
	}
}

func TestResetAtUsesSuppliedClock(t *testing.T) {
	st := newTestState(t, WithStartImmediately(false))
	st.status = StatusCancelled
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := st.ResetAt(now); err != nil {
		t.Fatalf("ResetAt: %v", err)
	}
	want := now.Add(time.Minute)
	if !st.nextDueAt.Equal(want) {
		t.Fatalf("nextDueAt = %v, want %v", st.nextDueAt, want)
	}
}

func TestCancelFromAnyStateIncludingRunning(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusRunning, StatusPaused, StatusCompleted, StatusFailed, StatusStopped} {
		st := newTestState(t)
		st.status = status
		cancelled := false
		if status == StatusRunning {
			st.runCancel = func() { cancelled = true }
		}
		if err := st.Cancel(); err != nil {
			t.Fatalf("Cancel from %v: %v", status, err)
		}
		if st.status != StatusCancelled {
			t.Fatalf("status after Cancel from %v = %v, want CANCELLED", status, st.status)
		}
		if status == StatusRunning && !cancelled {
			t.Fatalf("Cancel from RUNNING did not invoke runCancel")
		}
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	st := newTestState(t)
	st.status = StatusCancelled
	if err := st.Cancel(); err != nil {
		t.Fatalf("Cancel on already-cancelled task: %v", err)
	}
}

func TestAutoTransitionRevertsOutcomeMarkersWhenDue(t *testing.T) {
	st := newTestState(t)
	st.status = StatusCompleted
	st.nextDueAt = time.Unix(100, 0)

	if _, changed := st.autoTransitionLocked(time.Unix(50, 0)); changed {
		t.Fatalf("autoTransitionLocked fired before next_due_at")
	}
	old, changed := st.autoTransitionLocked(time.Unix(100, 0))
	if !changed || old != StatusCompleted {
		t.Fatalf("autoTransitionLocked at the due instant: changed=%v old=%v", changed, old)
	}
	if st.status != StatusPending {
		t.Fatalf("status = %v, want PENDING", st.status)
	}
}

func TestAutoTransitionIgnoresNonOutcomeStates(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusRunning, StatusPaused, StatusStopped, StatusCancelled} {
		st := newTestState(t)
		st.status = status
		st.nextDueAt = time.Unix(0, 0)
		if _, changed := st.autoTransitionLocked(time.Unix(1000, 0)); changed {
			t.Fatalf("autoTransitionLocked fired from %v, should only apply to COMPLETED/FAILED", status)
		}
	}
}

func TestNewTaskStateStartImmediatelyVsDeferred(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	spec, _ := NewTaskSpec("x", time.Minute, WithStartImmediately(true))
	st := newTaskState(spec, 1, now)
	if !st.nextDueAt.Equal(now) {
		t.Fatalf("start_immediately=true: nextDueAt = %v, want %v", st.nextDueAt, now)
	}

	spec2, _ := NewTaskSpec("y", time.Minute, WithStartImmediately(false))
	st2 := newTaskState(spec2, 2, now)
	want := now.Add(time.Minute)
	if !st2.nextDueAt.Equal(want) {
		t.Fatalf("start_immediately=false: nextDueAt = %v, want %v", st2.nextDueAt, want)
	}
}

func TestViewIsConsistentSnapshot(t *testing.T) {
	st := newTestState(t)
	view := st.View()
	if view.Name != "t" {
		t.Fatalf("view.Name = %q, want %q", view.Name, "t")
	}
	if view.Status != StatusPending {
		t.Fatalf("view.Status = %v, want PENDING", view.Status)
	}
	if view.ID == "" {
		t.Fatalf("view.ID should be a non-empty uuid")
	}
}
