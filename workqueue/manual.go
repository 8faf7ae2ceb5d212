package workqueue

import (
	"sync"
	"time"
)

// Manual is a Queue driven by a virtual clock. Nothing runs until the test calls
// RunDue, Advance or Step, and everything runs on the calling goroutine.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks []*Task
}

// NewManual returns a queue whose clock starts at an arbitrary fixed instant.
func NewManual() *Manual {
	return &Manual{now: time.Unix(1700000000, 0)}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After implements Queue.
func (m *Manual) After(delay time.Duration, fn func()) *Task {
	if delay < 0 {
		delay = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &Task{fn: fn, deadline: m.now.Add(delay), seq: m.seq}
	m.tasks = append(m.tasks, t)
	return t
}

// Cancel implements Queue.
func (m *Manual) Cancel(t *Task) bool {
	if t == nil {
		return false
	}
	return t.cancel()
}

// Pending returns the number of tasks still waiting to run.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.Pending() {
			n++
		}
	}
	return n
}

// NextDelay reports how far the clock must move for the next task to be due.
func (m *Manual) NextDelay() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.nextLocked()
	if t == nil {
		return 0, false
	}
	d := t.deadline.Sub(m.now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// nextLocked drops finished tasks and returns the earliest pending one.
func (m *Manual) nextLocked() *Task {
	live := m.tasks[:0]
	var next *Task
	for _, t := range m.tasks {
		if !t.Pending() {
			continue
		}
		live = append(live, t)
		if next == nil || t.deadline.Before(next.deadline) ||
			(t.deadline.Equal(next.deadline) && t.seq < next.seq) {
			next = t
		}
	}
	for i := len(live); i < len(m.tasks); i++ {
		m.tasks[i] = nil
	}
	m.tasks = live
	return next
}

// popDue removes and returns the earliest task due at or before the current time.
func (m *Manual) popDue() *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.nextLocked()
	if t == nil || t.deadline.After(m.now) {
		return nil
	}
	return t
}

// RunDue runs every task that is due now, including tasks that become due because
// a running task scheduled them with zero delay. It returns how many ran.
func (m *Manual) RunDue() int {
	ran := 0
	for {
		t := m.popDue()
		if t == nil {
			return ran
		}
		if t.claim() {
			t.fn()
			ran++
		}
	}
}

// Step moves the clock to the next pending task, if needed, and runs everything
// due at that instant. It reports whether anything was pending.
func (m *Manual) Step() bool {
	d, ok := m.NextDelay()
	if !ok {
		return false
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
	m.RunDue()
	return true
}

// Advance moves the clock forward by d, running tasks at their deadlines in order.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	ran := 0
	for {
		ran += m.RunDue()
		next, ok := m.NextDelay()
		m.mu.Lock()
		if !ok || m.now.Add(next).After(target) {
			m.now = target
			m.mu.Unlock()
			return ran + m.RunDue()
		}
		m.now = m.now.Add(next)
		m.mu.Unlock()
	}
}

// Drain keeps stepping until no task is pending or limit steps were taken. It
// returns the number of steps taken.
func (m *Manual) Drain(limit int) int {
	steps := 0
	for steps < limit && m.Step() {
		steps++
	}
	return steps
}
