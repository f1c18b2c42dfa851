package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// Clock provides the time operations the scheduler depends on, so dispatch
// timing can be driven deterministically in tests instead of by wall time.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is the minimal timer contract the dispatch loop and executor need.
type Timer interface {
	// C returns the channel on which the timer fires.
	C() <-chan time.Time
	// Stop prevents the Timer from firing. Returns true if the call stops
	// the timer, false if the timer has already expired or been stopped.
	Stop() bool
	// Reset changes the timer to expire after duration d.
	Reset(d time.Duration) bool
}

// RealClock implements Clock using the standard time package. It is the
// default clock used in production.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

type realTimer struct{ timer *time.Timer }

func (r *realTimer) C() <-chan time.Time      { return r.timer.C }
func (r *realTimer) Stop() bool               { return r.timer.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.timer.Reset(d) }

// FakeClock is a controllable clock for deterministic tests. Timers fire
// when the clock is advanced past their deadline via Advance or Set.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  timerHeap
	waiters []chan struct{}
}

// NewFakeClock creates a FakeClock initialized to t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t, timers: make(timerHeap, 0)}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeClock) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{
		clock:     f,
		deadline:  f.now.Add(d),
		ch:        make(chan time.Time, 1),
		heapIndex: -1,
	}
	if d <= 0 {
		t.ch <- f.now
	} else {
		heap.Push(&f.timers, t)
		f.notifyWaiters()
	}
	return t
}

// Set moves the fake clock to t, firing any timers whose deadline falls
// at or before t.
func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
	f.fireExpiredTimers()
}

// Advance moves the fake clock forward by d, firing any timers whose
// deadline has passed.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.fireExpiredTimers()
}

// BlockUntil blocks until at least n timers are outstanding on the clock.
// Useful for synchronizing a test with goroutines that arm timers.
func (f *FakeClock) BlockUntil(n int) {
	f.mu.Lock()
	if len(f.timers) >= n {
		f.mu.Unlock()
		return
	}
	waiter := make(chan struct{})
	f.waiters = append(f.waiters, waiter)
	f.mu.Unlock()

	for {
		<-waiter
		f.mu.Lock()
		if len(f.timers) >= n {
			f.mu.Unlock()
			return
		}
		waiter = make(chan struct{})
		f.waiters = append(f.waiters, waiter)
		f.mu.Unlock()
	}
}

// TimerCount returns the number of outstanding timers. Useful for assertions.
func (f *FakeClock) TimerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *FakeClock) fireExpiredTimers() {
	for len(f.timers) > 0 && !f.timers[0].deadline.After(f.now) {
		t, _ := heap.Pop(&f.timers).(*fakeTimer)
		if t != nil && !t.stopped {
			select {
			case t.ch <- f.now:
			default:
			}
		}
	}
}

func (f *FakeClock) notifyWaiters() {
	for _, w := range f.waiters {
		select {
		case w <- struct{}{}:
		default:
		}
	}
	f.waiters = nil
}

func (f *FakeClock) removeTimer(t *fakeTimer) bool {
	return f.timers.RemoveTimer(t)
}

type fakeTimer struct {
	clock     *FakeClock
	deadline  time.Time
	ch        chan time.Time
	stopped   bool
	heapIndex int
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return t.clock.removeTimer(t)
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasActive := !t.stopped && t.clock.removeTimer(t)
	t.stopped = false
	t.deadline = t.clock.now.Add(d)

	if d <= 0 {
		select {
		case t.ch <- t.clock.now:
		default:
		}
	} else {
		heap.Push(&t.clock.timers, t)
		t.clock.notifyWaiters()
	}
	return wasActive
}

// timerHeap orders fakeTimer by deadline, earliest first.
type timerHeap []*fakeTimer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timerHeap) Push(x any) {
	t, _ := x.(*fakeTimer)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}

// RemoveTimer removes t from the heap in O(log n) using its stored index.
func (h *timerHeap) RemoveTimer(t *fakeTimer) bool {
	idx := t.heapIndex
	if idx < 0 || idx >= len(*h) || (*h)[idx] != t {
		return false
	}
	heap.Remove(h, idx)
	return true
}
