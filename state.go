package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Status is a task's position in the task state machine, whose transitions
// are made by the TaskState methods in this file and by the Executor.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusPaused
	StatusStopped
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusRunning:
		return "RUNNING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	case StatusPaused:
		return "PAUSED"
	case StatusStopped:
		return "STOPPED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// TaskView is a read-only, consistent snapshot of a task's state, handed to
// callbacks and returned by TaskHandle.Snapshot.
type TaskView struct {
	ID       string
	Name     string
	Status   Status
	Priority Priority

	RunCount         uint64
	SuccessCount     uint64
	ErrorCount       uint64
	CallbackErrCount uint64

	LastError *TaskError

	LastRunStartedAt  time.Time
	LastRunFinishedAt time.Time
	NextDueAt         time.Time

	RegisteredAt time.Time
}

// TaskState is the mutable runtime state of one registered task. It is
// always accessed under mu; callers never see a torn update.
type TaskState struct {
	mu sync.Mutex

	id           string
	spec         TaskSpec
	registeredAt time.Time
	seq          uint64 // stable registration order, for tie-breaking

	status Status

	nextDueAt         time.Time
	lastRunStartedAt  time.Time
	lastRunFinishedAt time.Time

	runCount         uint64
	successCount     uint64
	errorCount       uint64
	callbackErrCount atomic.Uint64

	lastError *TaskError

	// pendingStop is set by Stop() when called on a RUNNING task: the
	// transition to STOPPED is deferred until the body returns.
	pendingStop bool
	// runCancel cancels the context passed to the currently executing
	// body, nil when no run is in flight.
	runCancel context.CancelFunc

	callbacks *CallbackRegistry
}

func newTaskState(spec TaskSpec, seq uint64, now time.Time) *TaskState {
	t := &TaskState{
		id:           uuid.NewString(),
		spec:         spec,
		registeredAt: now,
		seq:          seq,
		status:       StatusPending,
		callbacks:    newCallbackRegistry(),
	}
	t.callbacks.setErrorHook(func() { t.callbackErrCount.Add(1) })
	if spec.StartImmediately {
		t.nextDueAt = now
	} else {
		t.nextDueAt = now.Add(spec.Interval)
	}
	return t
}

// View returns a consistent snapshot of the task's current state.
func (t *TaskState) View() TaskView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewLocked()
}

func (t *TaskState) viewLocked() TaskView {
	return TaskView{
		ID:                t.id,
		Name:              t.spec.Name,
		Status:            t.status,
		Priority:          t.spec.Priority,
		RunCount:          t.runCount,
		SuccessCount:      t.successCount,
		ErrorCount:        t.errorCount,
		CallbackErrCount:  t.callbackErrCount.Load(),
		LastError:         t.lastError,
		LastRunStartedAt:  t.lastRunStartedAt,
		LastRunFinishedAt: t.lastRunFinishedAt,
		NextDueAt:         t.nextDueAt,
		RegisteredAt:      t.registeredAt,
	}
}

// autoTransitionLocked reverts an outcome marker (COMPLETED/FAILED) to
// PENDING once its next due-time has arrived. Must be called with mu held.
// Returns true if a transition occurred (caller must notify).
func (t *TaskState) autoTransitionLocked(now time.Time) (old Status, changed bool) {
	if (t.status == StatusCompleted || t.status == StatusFailed) && !now.Before(t.nextDueAt) {
		old = t.status
		t.status = StatusPending
		return old, true
	}
	return 0, false
}

// dueLocked reports whether the task is due at t. Must be called with mu held,
// after autoTransitionLocked has already been applied for this tick.
func (t *TaskState) dueLocked(now time.Time) bool {
	return t.status == StatusPending && !now.Before(t.nextDueAt)
}

// Pause moves a waiting task to PAUSED. Valid from PENDING, COMPLETED, or
// FAILED (the "not currently running" resting states); a no-op if already
// PAUSED. Returns ErrIllegalState from RUNNING, STOPPED, or CANCELLED —
// the state table has no edge into PAUSED from those.
func (t *TaskState) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case StatusPaused:
		return nil
	case StatusPending, StatusCompleted, StatusFailed:
		old := t.status
		t.status = StatusPaused
		t.notifyStatusLocked(old, StatusPaused)
		return nil
	default:
		return ErrIllegalState
	}
}

// Resume moves a PAUSED task back to PENDING without altering next_due_at,
// so a task paused past its due time runs immediately on resume.
func (t *TaskState) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPaused {
		return ErrIllegalState
	}
	t.status = StatusPending
	t.notifyStatusLocked(StatusPaused, StatusPending)
	return nil
}

// Stop requests the task stop scheduling. If RUNNING, the transition to
// STOPPED is deferred until the in-flight body returns; the run's
// cancellation token is signaled immediately. Idempotent.
func (t *TaskState) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case StatusStopped:
		return nil
	case StatusRunning:
		t.pendingStop = true
		if t.runCancel != nil {
			t.runCancel()
		}
		return nil
	default:
		old := t.status
		t.status = StatusStopped
		t.notifyStatusLocked(old, StatusStopped)
		return nil
	}
}

// Reset returns a STOPPED or CANCELLED task to PENDING using wall-clock
// time. Prefer ResetAt (or TaskHandle.Reset, which threads the scheduler's
// injected clock through) so a FakeClock-driven caller isn't silently
// dropped back to real time.
func (t *TaskState) Reset() error {
	return t.ResetAt(time.Now())
}

// ResetAt returns a STOPPED or CANCELLED task to PENDING, recomputing
// next_due_at as if freshly registered from the supplied "now". Counters
// persist; last_error and run timestamps are cleared.
func (t *TaskState) ResetAt(now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusStopped && t.status != StatusCancelled {
		return ErrIllegalState
	}
	old := t.status
	t.status = StatusPending
	t.lastError = nil
	t.lastRunStartedAt = time.Time{}
	t.lastRunFinishedAt = time.Time{}
	t.pendingStop = false
	if t.spec.StartImmediately {
		t.nextDueAt = now
	} else {
		t.nextDueAt = now.Add(t.spec.Interval)
	}
	t.notifyStatusLocked(old, StatusPending)
	return nil
}

// Cancel moves the task to CANCELLED immediately, from any state,
// including RUNNING (unlike Stop, the transition is not deferred — the
// in-flight run's outcome is discarded by the executor when it returns).
// Idempotent.
func (t *TaskState) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusCancelled {
		return nil
	}
	old := t.status
	if old == StatusRunning && t.runCancel != nil {
		t.runCancel()
	}
	t.status = StatusCancelled
	t.pendingStop = false
	t.notifyStatusLocked(old, StatusCancelled)
	return nil
}

// notifyStatusLocked fires status-change callbacks synchronously, while mu
// is held, so that delivery order matches transition order as required by
// §5 ("OnStatusChange is delivered in transition order; no reordering").
// The registry itself snapshots its subscriber list before invoking any of
// them, so this never holds the *registry's* lock across user code — only
// the task's own lock, which callbacks must not re-enter synchronously.
func (t *TaskState) notifyStatusLocked(old, new Status) {
	t.callbacks.notifyStatusChange(t.viewLocked(), old, new)
}
