package loop

import (
	"sort"
	"sync"
	"time"
)

// ManualScheduler is a virtual clock for deterministic tests. Due callbacks are
// handed to the Poster (or run inline when it is nil) as Advance moves time.
type ManualScheduler struct {
	mu     sync.Mutex
	poster Poster
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	owner   *ManualScheduler
	at      time.Duration
	delay   time.Duration
	seq     int
	fn      func()
	stopped bool
}

func NewManualScheduler(p Poster) *ManualScheduler {
	return &ManualScheduler{poster: p}
}

func (m *ManualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{owner: m, at: m.now + d, delay: d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() {
	t.owner.mu.Lock()
	t.stopped = true
	t.owner.mu.Unlock()
}

// Advance moves the clock forward by d, firing every timer that comes due in
// deadline order, including timers armed by the callbacks themselves.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()
	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.at
		m.removeLocked(next)
		poster := m.poster
		m.mu.Unlock()

		fire := func() {
			m.mu.Lock()
			stopped := next.stopped
			next.stopped = true
			m.mu.Unlock()
			if !stopped {
				next.fn()
			}
		}
		if poster != nil {
			poster.Post(fire)
		} else {
			fire()
		}
	}
}

func (m *ManualScheduler) nextDueLocked(target time.Duration) *manualTimer {
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && t.at <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at == due[j].at {
			return due[i].seq < due[j].seq
		}
		return due[i].at < due[j].at
	})
	return due[0]
}

func (m *ManualScheduler) removeLocked(t *manualTimer) {
	for i, cur := range m.timers {
		if cur == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

// Pending returns the delays of armed, unstopped timers in arming order.
func (m *ManualScheduler) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, t := range m.timers {
		if !t.stopped {
			out = append(out, t.delay)
		}
	}
	return out
}
