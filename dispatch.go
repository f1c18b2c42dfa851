package scheduler

import (
	"context"
	"sort"
	"time"

	logx "taskscheduler/pkg/logx"
)

// dispatchLoop runs the periodic tick described in §4.6: scan, select
// due+admitted tasks, sort by priority/due-time/registration order, hand
// each to the Executor, sleep until the next tick.
type dispatchLoop struct {
	registry      *taskRegistry
	executor      *Executor
	clock         Clock
	checkInterval time.Duration
	log           logx.Logger
}

func (d *dispatchLoop) run(ctx context.Context) {
	timer := d.clock.NewTimer(d.checkInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d.tick()

		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			timer.Reset(d.checkInterval)
		}
	}
}

// tick performs exactly one pass: scan, auto-transition outcome markers,
// select candidates, sort, dispatch. Dispatch itself never blocks the loop
// — each candidate runs on its own goroutine via the Executor.
func (d *dispatchLoop) tick() {
	now := d.clock.Now()
	tasks := d.registry.snapshot()

	type candidate struct {
		task *TaskState
		view TaskView
	}
	candidates := make([]candidate, 0, len(tasks))

	for _, t := range tasks {
		t.mu.Lock()
		if old, changed := t.autoTransitionLocked(now); changed {
			t.notifyStatusLocked(old, StatusPending)
		}
		due := t.dueLocked(now)
		admitted := due && AdmitsAny(t.spec.TimeWindows, TimeOfDayFromTime(now))
		view := t.viewLocked()
		t.mu.Unlock()

		if due && admitted {
			candidates = append(candidates, candidate{task: t, view: view})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.view.Priority != b.view.Priority {
			return a.view.Priority > b.view.Priority
		}
		if !a.view.NextDueAt.Equal(b.view.NextDueAt) {
			return a.view.NextDueAt.Before(b.view.NextDueAt)
		}
		return a.task.seq < b.task.seq
	})

	for _, c := range candidates {
		fn := d.registry.funcFor(c.task)
		if fn == nil {
			continue
		}
		d.executor.TryDispatch(c.task, fn)
	}
}
