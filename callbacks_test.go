package scheduler

import "testing"

func TestCallbackRegistryDeliversToAllSubscribers(t *testing.T) {
	r := newCallbackRegistry()
	var got []string
	r.AddStatusChange(func(view TaskView, old, new Status) { got = append(got, "a") })
	r.AddStatusChange(func(view TaskView, old, new Status) { got = append(got, "b") })

	r.notifyStatusChange(TaskView{}, StatusPending, StatusRunning)

	if len(got) != 2 {
		t.Fatalf("got %v, want 2 deliveries", got)
	}
}

func TestCallbackRegistryRemoveStopsDelivery(t *testing.T) {
	r := newCallbackRegistry()
	calls := 0
	h := r.AddSuccess(func(TaskView) { calls++ })
	r.notifySuccess(TaskView{})
	r.Remove(h)
	r.notifySuccess(TaskView{})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (removed subscriber should not fire again)", calls)
	}
}

func TestCallbackRegistryIsolatesPanics(t *testing.T) {
	r := newCallbackRegistry()
	var errHookCalls int
	r.setErrorHook(func() { errHookCalls++ })

	var secondCalled bool
	r.AddStatusChange(func(TaskView, Status, Status) { panic("boom") })
	r.AddStatusChange(func(TaskView, Status, Status) { secondCalled = true })

	r.notifyStatusChange(TaskView{}, StatusPending, StatusRunning)

	if !secondCalled {
		t.Fatalf("a panicking subscriber must not prevent its siblings from running")
	}
	if errHookCalls != 1 {
		t.Fatalf("errHookCalls = %d, want 1", errHookCalls)
	}
}

func TestCallbackRegistryAddDuringNotificationDoesNotAffectCurrentPass(t *testing.T) {
	r := newCallbackRegistry()
	firstPassCount := 0
	addedCalls := 0
	r.AddStatusChange(func(TaskView, Status, Status) {
		firstPassCount++
		r.AddStatusChange(func(TaskView, Status, Status) { addedCalls++ })
	})

	r.notifyStatusChange(TaskView{}, StatusPending, StatusRunning)
	if firstPassCount != 1 {
		t.Fatalf("firstPassCount = %d, want 1", firstPassCount)
	}
	if addedCalls != 0 {
		t.Fatalf("addedCalls = %d after the pass that added it, want 0", addedCalls)
	}

	// The second pass runs the subscriber added during the first pass; the
	// one added during this pass is not in its snapshot.
	r.notifyStatusChange(TaskView{}, StatusPending, StatusRunning)
	if addedCalls != 1 {
		t.Fatalf("addedCalls = %d after the next pass, want 1", addedCalls)
	}
}

func TestNilCallbacksAreNoOps(t *testing.T) {
	r := newCallbackRegistry()
	if h := r.AddStatusChange(nil); h != 0 {
		t.Fatalf("AddStatusChange(nil) handle = %d, want 0", h)
	}
	if h := r.AddSuccess(nil); h != 0 {
		t.Fatalf("AddSuccess(nil) handle = %d, want 0", h)
	}
	if h := r.AddFailure(nil); h != 0 {
		t.Fatalf("AddFailure(nil) handle = %d, want 0", h)
	}
	// Must not panic even though nothing was registered.
	r.notifyStatusChange(TaskView{}, StatusPending, StatusRunning)
	r.notifySuccess(TaskView{})
	r.notifyFailure(TaskView{}, nil)
}
