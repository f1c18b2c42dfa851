package scheduler

// TaskEvent is published on the observability bus (if one is attached to
// the Scheduler) for each transition the Executor makes: PENDING→RUNNING and
// RUNNING→COMPLETED/FAILED/STOPPED. Transitions made by the TaskState methods
// (Pause, Resume, Stop of a non-running task, Reset, Cancel) and the dispatch
// loop's COMPLETED/FAILED→PENDING reversion reach CallbackRegistry
// subscribers only and are not published. It is
// strictly additive — removing a bus never changes CallbackRegistry
// behavior, and a slow or absent bus subscriber never affects a task's
// outcome.
type TaskEvent struct {
	View      TaskView
	OldStatus Status
	NewStatus Status
	Err       error
}
