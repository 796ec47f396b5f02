package ui

import (
	"sync"
	"time"
)

// frameScheduler coalesces pane updates and caps the draw rate. Only the
// latest callback per id survives until the next frame.
type frameScheduler struct {
	queue        func(func())
	pending      map[string]func()
	order        []string
	mu           sync.Mutex
	quit         chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
	frameTime    time.Duration
	drainTimeout time.Duration
}

// newFrameScheduler hands each frame's batch to queue (the dashboard's
// QueueUpdateDraw); a nil queue runs batches inline.
func newFrameScheduler(queue func(func()), frameTime, drainTimeout time.Duration) *frameScheduler {
	if frameTime <= 0 {
		frameTime = time.Second / 30
	}
	if drainTimeout <= 0 {
		drainTimeout = 100 * time.Millisecond
	}
	if queue == nil {
		queue = func(fn func()) { fn() }
	}
	return &frameScheduler{
		queue:        queue,
		pending:      make(map[string]func()),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		frameTime:    frameTime,
		drainTimeout: drainTimeout,
	}
}

func (f *frameScheduler) Start() {
	go f.run()
}

func (f *frameScheduler) Stop() {
	f.stopOnce.Do(func() { close(f.quit) })
	select {
	case <-f.done:
	case <-time.After(f.drainTimeout):
	}
}

func (f *frameScheduler) Schedule(id string, fn func()) {
	if f == nil {
		return
	}
	f.mu.Lock()
	if _, ok := f.pending[id]; !ok {
		f.order = append(f.order, id)
	}
	f.pending[id] = fn
	f.mu.Unlock()
}

func (f *frameScheduler) run() {
	defer close(f.done)

	ticker := time.NewTicker(f.frameTime)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-f.quit:
			f.flush()
			return
		}
	}
}

func (f *frameScheduler) flush() {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return
	}
	batch := make([]func(), 0, len(f.order))
	for _, id := range f.order {
		batch = append(batch, f.pending[id])
	}
	f.pending = make(map[string]func())
	f.order = f.order[:0]
	f.mu.Unlock()

	f.queue(func() {
		for _, fn := range batch {
			fn()
		}
	})
}
