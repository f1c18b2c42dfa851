package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Priority orders dispatch within a tick. Higher values dispatch first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority parses the case-insensitive names used in config and docs.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("%w: unknown priority %q", ErrInvalidSpec, s)
	}
}

// TaskSpec is the immutable configuration of a periodic task, fixed at
// registration time.
type TaskSpec struct {
	Name             string
	Interval         time.Duration
	Priority         Priority
	TimeWindows      []TimeWindow
	StartImmediately bool
	MaxRunningTime   time.Duration // 0 means no timeout
}

// TaskSpecOption mutates a TaskSpec under construction via NewTaskSpec.
type TaskSpecOption func(*TaskSpec)

func WithPriority(p Priority) TaskSpecOption {
	return func(s *TaskSpec) { s.Priority = p }
}

func WithTimeWindows(windows ...TimeWindow) TaskSpecOption {
	return func(s *TaskSpec) { s.TimeWindows = append([]TimeWindow(nil), windows...) }
}

func WithStartImmediately(v bool) TaskSpecOption {
	return func(s *TaskSpec) { s.StartImmediately = v }
}

func WithMaxRunningTime(d time.Duration) TaskSpecOption {
	return func(s *TaskSpec) { s.MaxRunningTime = d }
}

// NewTaskSpec validates and builds a TaskSpec. name must be non-empty;
// interval must be > 0. Defaults: priority NORMAL, no windows (always
// admitted), start_immediately true, no timeout.
func NewTaskSpec(name string, interval time.Duration, opts ...TaskSpecOption) (TaskSpec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TaskSpec{}, fmt.Errorf("%w: name must not be empty", ErrInvalidSpec)
	}
	if interval <= 0 {
		return TaskSpec{}, fmt.Errorf("%w: interval must be > 0, got %s", ErrInvalidSpec, interval)
	}

	s := TaskSpec{
		Name:             name,
		Interval:         interval,
		Priority:         PriorityNormal,
		StartImmediately: true,
	}
	for _, opt := range opts {
		opt(&s)
	}

	if s.MaxRunningTime < 0 {
		return TaskSpec{}, fmt.Errorf("%w: max_running_time must be >= 0, got %s", ErrInvalidSpec, s.MaxRunningTime)
	}
	return s, nil
}
