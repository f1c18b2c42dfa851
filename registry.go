package scheduler

import (
	"fmt"
	"sync"
	"time"
)

// taskRegistry is the read-mostly name→task map described in §5: dispatch
// takes the reader lock, Register/Deregister take the writer lock. Lock
// order is always registry-then-task, never the reverse, and no two
// per-task locks are ever held simultaneously.
type taskRegistry struct {
	mu      sync.RWMutex
	byName  map[string]*TaskState
	fns     map[string]TaskFunc
	order   []*TaskState // stable registration order, for tie-breaking
	nextSeq uint64
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{
		byName: make(map[string]*TaskState),
		fns:    make(map[string]TaskFunc),
	}
}

// addNew validates the name is unique, builds a TaskState under the
// registry's writer lock (so seq assignment and the duplicate-name check
// are atomic), and registers it.
func (r *taskRegistry) addNew(spec TaskSpec, fn TaskFunc, now time.Time) (*TaskState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[spec.Name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, spec.Name)
	}

	r.nextSeq++
	t := newTaskState(spec, r.nextSeq, now)

	r.byName[spec.Name] = t
	r.fns[spec.Name] = fn
	r.order = append(r.order, t)
	return t, nil
}

// snapshot returns a cheap copy of the registered task references, taken
// under the reader lock (step 1 of §4.6).
func (r *taskRegistry) snapshot() []*TaskState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TaskState, len(r.order))
	copy(out, r.order)
	return out
}

func (r *taskRegistry) funcFor(t *TaskState) TaskFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fns[t.spec.Name]
}

func (r *taskRegistry) get(name string) (*TaskState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

func (r *taskRegistry) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
	delete(r.fns, name)
	for i, t := range r.order {
		if t.spec.Name == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *taskRegistry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, t.spec.Name)
	}
	return out
}
