package scheduler

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock hour/minute/second, independent of date or
// timezone (the scheduler resolves a time.Time to a TimeOfDay with
// TimeOfDayFromTime, in the location of its clock's Now()).
type TimeOfDay struct {
	Hour, Minute, Second int
}

// TimeOfDayFromTime extracts the TimeOfDay of t in t's own location.
func TimeOfDayFromTime(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// secondsOfDay collapses a TimeOfDay into a single comparable integer.
func (d TimeOfDay) secondsOfDay() int {
	return d.Hour*3600 + d.Minute*60 + d.Second
}

func (d TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", d.Hour, d.Minute, d.Second)
}

func (d TimeOfDay) valid() bool {
	return d.Hour >= 0 && d.Hour < 24 &&
		d.Minute >= 0 && d.Minute < 60 &&
		d.Second >= 0 && d.Second < 60
}

// TimeWindow is a (start, end) pair of times-of-day admitting execution.
// A window that wraps midnight (Start > End) admits everything from Start
// through 23:59:59 and from 00:00:00 through End.
type TimeWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

// NewTimeWindow validates and builds a TimeWindow.
func NewTimeWindow(start, end TimeOfDay) (TimeWindow, error) {
	if !start.valid() || !end.valid() {
		return TimeWindow{}, fmt.Errorf("%w: time-of-day out of range", ErrInvalidSpec)
	}
	return TimeWindow{Start: start, End: end}, nil
}

// Contains reports whether now falls inside the window, handling
// midnight wrap-around. start == end admits only that exact instant.
func (w TimeWindow) Contains(now TimeOfDay) bool {
	s, e, n := w.Start.secondsOfDay(), w.End.secondsOfDay(), now.secondsOfDay()
	if s <= e {
		return n >= s && n <= e
	}
	return n >= s || n <= e
}

// AdmitsAny reports whether now is admitted by any of windows, or
// unconditionally true when windows is empty.
func AdmitsAny(windows []TimeWindow, now TimeOfDay) bool {
	if len(windows) == 0 {
		return true
	}
	for _, w := range windows {
		if w.Contains(now) {
			return true
		}
	}
	return false
}
