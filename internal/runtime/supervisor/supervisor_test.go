package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

// A goroutine that panics is recovered and counted, and does not prevent
// Stop(ctx) from returning well before its timeout for the other tracked
// goroutines.
func TestPanicRecoveredDoesNotBlockStopForSiblings(t *testing.T) {
	sup := NewSupervisor(context.Background(), WithCancelOnError(false))

	sup.Go("panicker", func(ctx context.Context) error {
		panic("boom")
	})

	siblingExited := make(chan struct{})
	sup.Go("sibling", func(ctx context.Context) error {
		<-ctx.Done()
		close(siblingExited)
		return ctx.Err()
	})

	// Give the panicking goroutine a chance to run and be recovered before
	// we ask the supervisor to stop.
	deadline := time.After(2 * time.Second)
	for sup.Counters().Started < 2 {
		select {
		case <-deadline:
			t.Fatal("goroutines never started")
		case <-time.After(10 * time.Millisecond):
		}
	}
	waitForPanicRecorded(t, sup, "panicker")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	stopDone := make(chan error, 1)
	go func() { stopDone <- sup.Stop(stopCtx) }()

	select {
	case err := <-stopDone:
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("Stop took %v, expected it to return well before its 5s timeout", elapsed)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("Stop returned recorded first error (expected, from the panic): %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return before its own timeout")
	}

	select {
	case <-siblingExited:
	default:
		t.Fatal("sibling goroutine was not cancelled alongside the panicking one")
	}

	snap := sup.Snapshot()
	var panics uint64
	for _, g := range snap.Goroutines {
		if g.Name == "panicker" {
			panics = g.Panics
		}
	}
	if panics != 1 {
		t.Fatalf("panicker recorded %d panics, want 1", panics)
	}
}

func waitForPanicRecorded(t *testing.T, sup *Supervisor, name string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, g := range sup.Snapshot().Goroutines {
			if g.Name == name && g.Panics > 0 {
				return
			}
		}
		select {
		case <-deadline:
			t.Fatalf("panic from %q was never recorded", name)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
