package scheduler

import "time"

// TaskHandle is the embedder-facing reference to a registered task. All
// operations forward to the underlying TaskState under its own lock; see
// state.go for the exact transition rules each one follows.
type TaskHandle struct {
	state *TaskState
	clock Clock
}

func (h *TaskHandle) Name() string { return h.state.spec.Name }

func (h *TaskHandle) Spec() TaskSpec { return h.state.spec }

// Snapshot returns a consistent, read-only view of the task's current
// state.
func (h *TaskHandle) Snapshot() TaskView { return h.state.View() }

func (h *TaskHandle) Pause() error  { return h.state.Pause() }
func (h *TaskHandle) Resume() error { return h.state.Resume() }
func (h *TaskHandle) Stop() error   { return h.state.Stop() }
func (h *TaskHandle) Cancel() error { return h.state.Cancel() }

// Reset returns a STOPPED or CANCELLED task to PENDING, computing the new
// next_due_at from the scheduler's injected clock rather than wall-clock
// time — an embedder driving the scheduler with a FakeClock (per §6's
// testability contract) sees the same clock here as everywhere else.
func (h *TaskHandle) Reset() error { return h.state.ResetAt(h.clock.Now()) }

// ResetAt behaves like Reset but lets the caller supply "now" explicitly,
// for tests that want a next_due_at independent of the handle's clock.
func (h *TaskHandle) ResetAt(now time.Time) error { return h.state.ResetAt(now) }

// OnStatusChange subscribes to every transition this task makes. Returns a
// handle usable with RemoveCallback.
func (h *TaskHandle) OnStatusChange(fn StatusChangeFunc) CallbackHandle {
	return h.state.callbacks.AddStatusChange(fn)
}

// OnSuccess subscribes to RUNNING→COMPLETED transitions.
func (h *TaskHandle) OnSuccess(fn SuccessFunc) CallbackHandle {
	return h.state.callbacks.AddSuccess(fn)
}

// OnFailure subscribes to RUNNING→FAILED transitions (including TIMEOUT).
func (h *TaskHandle) OnFailure(fn FailureFunc) CallbackHandle {
	return h.state.callbacks.AddFailure(fn)
}

// RemoveCallback drops a previously added subscription.
func (h *TaskHandle) RemoveCallback(handle CallbackHandle) {
	h.state.callbacks.Remove(handle)
}
