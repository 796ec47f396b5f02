// Package loop serializes a screen's callbacks onto one goroutine. Socket
// events, timer ticks and image results are all posted here, so the state they
// touch is owned by that goroutine and needs no locks.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("loop: stopped")

// Poster accepts callbacks for serial execution.
type Poster interface {
	Post(fn func()) bool
}

// Timer is a cancellable one-shot callback.
type Timer interface {
	Stop()
}

// Scheduler arms one-shot timers whose callbacks run on the loop.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop is an unbounded FIFO of callbacks drained by Run.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
	stopped bool
	once    sync.Once
}

func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Post enqueues fn. It never blocks and is safe from any goroutine, including
// the loop itself. It reports false once the loop is stopped.
func (l *Loop) Post(fn func()) bool {
	if l == nil || fn == nil {
		return false
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		fn()
		close(finished)
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains callbacks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	defer l.markStopped()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.quit:
			return
		case <-l.wake:
		}
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			batch := l.queue
			l.queue = nil
			l.mu.Unlock()
			for _, fn := range batch {
				fn()
			}
		}
	}
}

func (l *Loop) markStopped() {
	l.mu.Lock()
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()
}

// Stop ends Run after the current callback. Idempotent.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.once.Do(func() { close(l.quit) })
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// AfterFunc arms a wall-clock timer whose callback is posted to the loop.
// Stop must be called from the loop goroutine; a tick that already fired but
// is still queued is discarded.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	return t
}

type loopTimer struct {
	timer   *time.Timer
	stopped bool
}

func (t *loopTimer) Stop() {
	if t == nil {
		return
	}
	t.stopped = true
	t.timer.Stop()
}
