// Package workqueue provides the deferred-execution primitive the transfer loop is
// built on: schedule a function after a delay, cancel it before it runs.
//
// Two implementations are provided. Loop is a single-goroutine actor that runs every
// submitted and delayed function in order, giving callers one serialized execution
// context. Manual runs tasks against a virtual clock and is meant for tests that need
// to step a state machine without real timers.
package workqueue

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned when work is submitted to a closed Loop.
var ErrClosed = errors.New("workqueue: closed")

// Queue schedules delayed work.
type Queue interface {
	// After arranges for fn to run once delay has elapsed. A zero delay means
	// "as soon as possible", never synchronously inside After.
	After(delay time.Duration, fn func()) *Task

	// Cancel prevents a pending task from running. It reports whether the task was
	// still pending. Cancelling a nil, finished or already cancelled task is a no-op.
	Cancel(task *Task) bool
}

// Task is a handle to scheduled work.
type Task struct {
	mu        sync.Mutex
	fn        func()
	deadline  time.Time
	seq       uint64
	timer     *time.Timer
	cancelled bool
	done      bool
}

// claim marks the task as running. It returns false if the task was cancelled or
// has already run, in which case fn must not be called.
func (t *Task) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.done {
		return false
	}
	t.done = true
	return true
}

func (t *Task) cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.done {
		return false
	}
	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
	return true
}

// Pending reports whether the task is still waiting to run.
func (t *Task) Pending() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.cancelled && !t.done
}

// Deadline returns when the task becomes due.
func (t *Task) Deadline() time.Time {
	return t.deadline
}
