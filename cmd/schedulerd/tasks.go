package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"taskscheduler"
	"taskscheduler/internal/config"
	logx "taskscheduler/pkg/logx"
)

// buildTaskSpec converts one declarative task_config entry into a
// scheduler.TaskSpec, resolving durations, priority names, and HH:MM:SS
// admission windows.
func buildTaskSpec(tc config.TaskConfig) (scheduler.TaskSpec, error) {
	interval, err := config.ParseDurationField("tasks["+tc.Name+"].interval", tc.Interval)
	if err != nil {
		return scheduler.TaskSpec{}, err
	}
	if interval <= 0 {
		return scheduler.TaskSpec{}, fmt.Errorf("tasks[%s].interval must be > 0", tc.Name)
	}

	opts := []scheduler.TaskSpecOption{}

	if tc.Priority != "" {
		p, err := scheduler.ParsePriority(tc.Priority)
		if err != nil {
			return scheduler.TaskSpec{}, fmt.Errorf("tasks[%s].priority: %w", tc.Name, err)
		}
		opts = append(opts, scheduler.WithPriority(p))
	}

	if tc.StartImmediately != nil {
		opts = append(opts, scheduler.WithStartImmediately(*tc.StartImmediately))
	}

	if tc.MaxRunningTime != "" {
		d, err := config.ParseDurationField("tasks["+tc.Name+"].max_running_time", tc.MaxRunningTime)
		if err != nil {
			return scheduler.TaskSpec{}, err
		}
		opts = append(opts, scheduler.WithMaxRunningTime(d))
	}

	if len(tc.Windows) > 0 {
		windows := make([]scheduler.TimeWindow, 0, len(tc.Windows))
		for _, wc := range tc.Windows {
			start, err := parseTimeOfDay(wc.Start)
			if err != nil {
				return scheduler.TaskSpec{}, fmt.Errorf("tasks[%s].windows: %w", tc.Name, err)
			}
			end, err := parseTimeOfDay(wc.End)
			if err != nil {
				return scheduler.TaskSpec{}, fmt.Errorf("tasks[%s].windows: %w", tc.Name, err)
			}
			win, err := scheduler.NewTimeWindow(start, end)
			if err != nil {
				return scheduler.TaskSpec{}, fmt.Errorf("tasks[%s].windows: %w", tc.Name, err)
			}
			windows = append(windows, win)
		}
		opts = append(opts, scheduler.WithTimeWindows(windows...))
	}

	return scheduler.NewTaskSpec(tc.Name, interval, opts...)
}

// parseTimeOfDay parses "HH:MM:SS" (seconds optional) in the local clock.
func parseTimeOfDay(raw string) (scheduler.TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return scheduler.TimeOfDay{}, fmt.Errorf("invalid time-of-day %q, want HH:MM[:SS]", raw)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return scheduler.TimeOfDay{}, fmt.Errorf("invalid time-of-day %q: %w", raw, err)
		}
		nums[i] = n
	}
	return scheduler.TimeOfDay{Hour: nums[0], Minute: nums[1], Second: nums[2]}, nil
}

// heartbeatTask is a demo task with no side effects beyond logging; it
// exists mainly so operators can confirm the daemon is alive.
func heartbeatTask(log logx.Logger) scheduler.TaskFunc {
	return func(ctx context.Context) error {
		log.Info("heartbeat")
		return nil
	}
}

// historyTrimTask is a demo housekeeping task: it runs on its own cadence
// and prunes an in-memory ring buffer. Represents the kind of low-priority,
// best-effort maintenance work the core scheduler was built to host.
func historyTrimTask(ring *boundedHistory) scheduler.TaskFunc {
	return func(ctx context.Context) error {
		ring.trim()
		return nil
	}
}

// flakyTask deliberately fails every other run, demonstrating that
// failures never stop future scheduling (see spec.md §4.4/§8 S6). It is
// also the one demo task routed through the optional task engine (see
// engine.go) so the engine's retry and circuit-breaker paths see real
// failures to react to.
func flakyTask() scheduler.TaskFunc {
	var n int
	return func(ctx context.Context) error {
		n++
		if n%2 == 1 {
			return fmt.Errorf("demo failure on run %d", n)
		}
		return nil
	}
}

// boundedHistory is a tiny ring buffer the demo housekeeping task trims;
// it stands in for whatever bounded in-memory state a real embedder's
// tasks would accumulate between runs.
type boundedHistory struct {
	max   int
	items []time.Time
}

func newBoundedHistory(max int) *boundedHistory {
	return &boundedHistory{max: max}
}

func (h *boundedHistory) record(t time.Time) {
	h.items = append(h.items, t)
}

func (h *boundedHistory) trim() {
	if len(h.items) <= h.max {
		return
	}
	h.items = h.items[len(h.items)-h.max:]
}
