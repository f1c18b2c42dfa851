package scheduler

import (
	"testing"
	"time"
)

func TestFakeClockAdvanceFiresExpiredTimers(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewFakeClock(start)

	timer := clk.NewTimer(10 * time.Second)
	select {
	case <-timer.C():
		t.Fatalf("timer fired before deadline")
	default:
	}

	clk.Advance(5 * time.Second)
	select {
	case <-timer.C():
		t.Fatalf("timer fired early")
	default:
	}

	clk.Advance(5 * time.Second)
	select {
	case fired := <-timer.C():
		if !fired.Equal(clk.Now()) {
			t.Fatalf("fired time = %v, want %v", fired, clk.Now())
		}
	default:
		t.Fatalf("timer did not fire at deadline")
	}
}

func TestFakeClockOrdersMultipleTimers(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewFakeClock(start)

	var order []int
	fire := func(i int, d time.Duration) Timer { return clk.NewTimer(d) }
	t1 := fire(1, 30*time.Second)
	t2 := fire(2, 10*time.Second)
	t3 := fire(3, 20*time.Second)

	// Advance in 10s steps; exactly one timer reaches its deadline per step.
	pending := map[int]Timer{1: t1, 2: t2, 3: t3}
	for _, want := range []int{2, 3, 1} {
		clk.Advance(10 * time.Second)
		for i, tm := range pending {
			select {
			case <-tm.C():
				if i != want {
					t.Fatalf("timer %d fired at the step where timer %d was due", i, want)
				}
				order = append(order, i)
				delete(pending, i)
			default:
			}
		}
	}
	if len(order) != 3 || order[0] != 2 || order[1] != 3 || order[2] != 1 {
		t.Fatalf("fire order = %v, want [2 3 1]", order)
	}
}

func TestFakeClockStopPreventsFire(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	timer := clk.NewTimer(5 * time.Second)
	if !timer.Stop() {
		t.Fatalf("Stop() = false on a live timer")
	}
	clk.Advance(10 * time.Second)
	select {
	case <-timer.C():
		t.Fatalf("stopped timer fired")
	default:
	}
}

func TestFakeClockResetRearms(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	timer := clk.NewTimer(5 * time.Second)
	clk.Advance(3 * time.Second)
	timer.Reset(10 * time.Second)
	clk.Advance(5 * time.Second)
	select {
	case <-timer.C():
		t.Fatalf("timer fired before its reset deadline")
	default:
	}
	clk.Advance(10 * time.Second)
	select {
	case <-timer.C():
	default:
		t.Fatalf("timer did not fire after reset deadline")
	}
}

func TestFakeClockBlockUntil(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	done := make(chan struct{})
	go func() {
		clk.BlockUntil(1)
		close(done)
	}()
	clk.NewTimer(time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("BlockUntil did not unblock after a timer was armed")
	}
}
