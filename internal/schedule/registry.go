package schedule

import (
	"sync"
	"time"
)

// Registry is the shared, mutex-guarded ordered collection of tasks.
//
// Addressing is positional: Remove(i) shifts every later task down by one,
// so indices must never be cached across mutations. This is the documented
// contract of the list/run/unschedule commands, not an accident.
type Registry struct {
	mu    sync.Mutex
	tasks []*Task
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a task. Duplicates are not detected.
func (r *Registry) Add(t *Task) {
	if t == nil {
		return
	}
	r.mu.Lock()
	r.tasks = append(r.tasks, t)
	r.mu.Unlock()
}

// Remove deletes the task at index i, shifting later indices down by one.
// Returns false when i is out of bounds.
func (r *Registry) Remove(i int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.tasks) {
		return false
	}
	r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
	return true
}

// Get returns the task at index i, or (nil, false) when out of bounds.
func (r *Registry) Get(i int) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.tasks) {
		return nil, false
	}
	return r.tasks[i], true
}

// List returns a snapshot copy taken under the lock; callers may iterate it
// without further locking and will never observe a concurrent mutation.
func (r *Registry) List() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// Replace atomically swaps the whole collection. Used when restoring a
// persisted schedule.
func (r *Registry) Replace(tasks []*Task) {
	cp := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if t != nil {
			cp = append(cp, t)
		}
	}
	r.mu.Lock()
	r.tasks = cp
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Due is one activation edge observed by a scan.
type Due struct {
	Index int
	Task  *Task
}

// DueTasks runs every task's due-check for the given instant under one lock
// acquisition and returns the tasks whose edge fired, in registry order.
// The lock is released before the caller dispatches anything.
func (r *Registry) DueTasks(now time.Time) []Due {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Due
	for i, t := range r.tasks {
		if t.ShouldActivate(now) {
			due = append(due, Due{Index: i, Task: t})
		}
	}
	return due
}
