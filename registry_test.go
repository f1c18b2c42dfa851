package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistryAddNewAssignsStableSeq(t *testing.T) {
	r := newTaskRegistry()
	now := time.Unix(0, 0)
	fn := func(context.Context) error { return nil }

	specA, _ := NewTaskSpec("a", time.Second)
	specB, _ := NewTaskSpec("b", time.Second)
	a, err := r.addNew(specA, fn, now)
	if err != nil {
		t.Fatalf("addNew(a): %v", err)
	}
	b, err := r.addNew(specB, fn, now)
	if err != nil {
		t.Fatalf("addNew(b): %v", err)
	}
	if a.seq >= b.seq {
		t.Fatalf("seq(a)=%d should be < seq(b)=%d", a.seq, b.seq)
	}
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := newTaskRegistry()
	spec, _ := NewTaskSpec("dup", time.Second)
	fn := func(context.Context) error { return nil }
	if _, err := r.addNew(spec, fn, time.Unix(0, 0)); err != nil {
		t.Fatalf("first addNew: %v", err)
	}
	if _, err := r.addNew(spec, fn, time.Unix(0, 0)); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("second addNew: err = %v, want ErrDuplicateName", err)
	}
}

func TestRegistryNamesAreRegistrationOrder(t *testing.T) {
	r := newTaskRegistry()
	fn := func(context.Context) error { return nil }
	names := []string{"c", "a", "b"}
	for _, name := range names {
		spec, _ := NewTaskSpec(name, time.Second)
		if _, err := r.addNew(spec, fn, time.Unix(0, 0)); err != nil {
			t.Fatalf("addNew(%s): %v", name, err)
		}
	}
	got := r.names()
	for i, name := range names {
		if got[i] != name {
			t.Fatalf("names() = %v, want %v", got, names)
		}
	}
}

func TestRegistryRemoveDropsFromAllIndexes(t *testing.T) {
	r := newTaskRegistry()
	fn := func(context.Context) error { return nil }
	spec, _ := NewTaskSpec("x", time.Second)
	if _, err := r.addNew(spec, fn, time.Unix(0, 0)); err != nil {
		t.Fatalf("addNew: %v", err)
	}

	r.remove("x")

	if _, ok := r.get("x"); ok {
		t.Fatalf("get(x) still found after remove")
	}
	if len(r.names()) != 0 {
		t.Fatalf("names() = %v, want empty after remove", r.names())
	}
	st, _ := r.addNew(spec, fn, time.Unix(0, 0))
	if r.funcFor(st) == nil {
		t.Fatalf("funcFor returned nil after re-adding a removed name")
	}
}

func TestRegistryRemoveUnknownNameIsNoOp(t *testing.T) {
	r := newTaskRegistry()
	r.remove("does-not-exist")
}
