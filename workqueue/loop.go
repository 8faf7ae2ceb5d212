package workqueue

import (
	"sync"
	"time"

	"github.com/user/nebula-blue/logger"
)

// Loop is a serialized execution context. Every function handed to Submit, Do or
// After runs on the loop goroutine, one at a time, in the order it became ready.
type Loop struct {
	name string
	jobs chan func()

	// Delayed work lands here instead of jobs so that After never blocks,
	// including when it is called from a loop job.
	readyMu sync.Mutex
	ready   []func()
	wake    chan struct{}

	stop     chan struct{}
	done     chan struct{}
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewLoop creates a loop with room for depth queued jobs. Call Start before use.
func NewLoop(name string, depth int) *Loop {
	if depth <= 0 {
		depth = 64
	}
	return &Loop{
		name: name,
		jobs: make(chan func(), depth),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calling Start more than once is harmless.
func (l *Loop) Start() {
	l.startMu.Lock()
	defer l.startMu.Unlock()
	if l.started {
		return
	}
	l.started = true
	go l.run()
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case fn := <-l.jobs:
			l.exec(fn)
		case <-l.wake:
		}
		l.runReady()
	}
}

// runReady executes posted work until the ready list is empty or the loop stops.
func (l *Loop) runReady() {
	for {
		select {
		case <-l.stop:
			return
		default:
		}
		l.readyMu.Lock()
		if len(l.ready) == 0 {
			l.readyMu.Unlock()
			return
		}
		fn := l.ready[0]
		l.ready[0] = nil
		l.ready = l.ready[1:]
		l.readyMu.Unlock()
		l.exec(fn)
	}
}

// post appends fn to the ready list without blocking.
func (l *Loop) post(fn func()) error {
	select {
	case <-l.stop:
		return ErrClosed
	default:
	}
	l.readyMu.Lock()
	l.ready = append(l.ready, fn)
	l.readyMu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("workqueue "+l.name, "job panicked: %v", r)
		}
	}()
	fn()
}

// Submit queues fn to run on the loop. It blocks while the queue is full.
func (l *Loop) Submit(fn func()) error {
	select {
	case <-l.stop:
		return ErrClosed
	default:
	}
	select {
	case l.jobs <- fn:
		return nil
	case <-l.stop:
		return ErrClosed
	}
}

// Do runs fn on the loop and waits for it to return. It must not be called from
// inside a loop job.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	if err := l.Submit(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.stop:
		return ErrClosed
	}
}

// After implements Queue. It never blocks, so it is safe to call from a loop
// job while the job queue is full.
func (l *Loop) After(delay time.Duration, fn func()) *Task {
	t := &Task{fn: fn, deadline: time.Now().Add(delay)}
	run := func() {
		if t.claim() {
			t.fn()
		}
	}

	if delay <= 0 {
		if err := l.post(run); err != nil {
			t.cancel()
		}
		return t
	}

	t.mu.Lock()
	t.timer = time.AfterFunc(delay, func() {
		if !t.Pending() {
			return
		}
		if err := l.post(run); err != nil {
			t.cancel()
		}
	})
	t.mu.Unlock()
	return t
}

// Cancel implements Queue. A task whose timer already fired but which has not yet
// been picked up by the loop will still not run.
func (l *Loop) Cancel(t *Task) bool {
	if t == nil {
		return false
	}
	return t.cancel()
}

// Close stops the loop. Jobs still queued are dropped. Close waits for the job in
// progress, if any, to return unless it is called from that job.
func (l *Loop) Close() {
	l.stopOnce.Do(func() { close(l.stop) })

	l.startMu.Lock()
	started := l.started
	l.startMu.Unlock()
	if !started {
		return
	}
	select {
	case <-l.done:
	case <-time.After(time.Second):
		logger.Warn("workqueue "+l.name, "loop did not stop within 1s")
	}
}
