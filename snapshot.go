package scheduler

// SchedulerSnapshot is a point-in-time view of every registered task plus
// the underlying goroutine supervisor's best-effort counters. Intended for
// status lines and diagnostics, not for synchronization.
type SchedulerSnapshot struct {
	Tasks     []TaskView
	Goroutines SupervisorSnapshot
}

// SupervisorSnapshot mirrors runtime/supervisor.SupervisorSnapshot without
// forcing every caller of this package to import it directly.
type SupervisorSnapshot struct {
	Active  int64
	Started uint64
	Panics  uint64
}

// Snapshot returns the current state of every registered task, in
// registration order.
func (s *Scheduler) Snapshot() SchedulerSnapshot {
	tasks := s.registry.snapshot()
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, t.View())
	}

	var gs SupervisorSnapshot
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup != nil {
		c := sup.Counters()
		gs = SupervisorSnapshot{Active: c.Active, Started: c.Started, Panics: sup.TotalPanics()}
	}

	return SchedulerSnapshot{Tasks: views, Goroutines: gs}
}
