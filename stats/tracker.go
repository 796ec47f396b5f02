// Package stats tracks per-screen message, connection and carousel counters
// for display in the dashboard and periodic console output.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Counter names a per-screen event counter.
type Counter string

const (
	Received    Counter = "received"
	Malformed   Counter = "malformed"
	Ignored     Counter = "ignored"
	Applied     Counter = "applied"
	SendDropped Counter = "send_dropped"
	Reconnects  Counter = "reconnects"
	ImageFaults Counter = "image_faults"
	Rotations   Counter = "rotations"
)

var counterOrder = []Counter{Received, Applied, Ignored, Malformed, SendDropped, Reconnects, ImageFaults, Rotations}

// Tracker tracks counters by screen.
type Tracker struct {
	// counters live in sync.Map + atomic.Uint64 so per-message increments don't fight over a mutex
	counts sync.Map // "screen|counter" -> *atomic.Uint64
	states sync.Map // screen -> connState
	start  atomic.Int64
}

type connState struct {
	state string
	since time.Time
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// Increment bumps counter c for screen.
func (t *Tracker) Increment(screen string, c Counter) {
	if t == nil {
		return
	}
	screen = strings.TrimSpace(screen)
	if screen == "" {
		return
	}
	incrementCounter(&t.counts, screen+"|"+string(c))
}

// Count returns the current value of counter c for screen.
func (t *Tracker) Count(screen string, c Counter) uint64 {
	if t == nil {
		return 0
	}
	if value, ok := t.counts.Load(screen + "|" + string(c)); ok {
		return value.(*atomic.Uint64).Load()
	}
	return 0
}

// SetState records the connection state of screen and when it was entered.
func (t *Tracker) SetState(screen, state string, at time.Time) {
	if t == nil {
		return
	}
	t.states.Store(screen, connState{state: state, since: at})
}

// GetUptime returns how long the tracker has been running
func (t *Tracker) GetUptime() time.Duration {
	start := t.start.Load()
	return time.Since(time.Unix(0, start))
}

// Screens returns every screen that has recorded a state or counter, sorted.
func (t *Tracker) Screens() []string {
	seen := make(map[string]struct{})
	t.states.Range(func(key, _ any) bool {
		seen[key.(string)] = struct{}{}
		return true
	})
	t.counts.Range(func(key, _ any) bool {
		screen, _, _ := strings.Cut(key.(string), "|")
		seen[screen] = struct{}{}
		return true
	})
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines(now time.Time) []string {
	if t == nil {
		return nil
	}
	lines := []string{fmt.Sprintf("Uptime: %s", formatUptime(now.Sub(time.Unix(0, t.start.Load()))))}
	for _, screen := range t.Screens() {
		lines = append(lines, t.screenLine(screen, now))
	}
	return lines
}

func (t *Tracker) screenLine(screen string, now time.Time) string {
	var builder strings.Builder
	builder.WriteString(screen)
	builder.WriteString(": ")
	if value, ok := t.states.Load(screen); ok {
		st := value.(connState)
		fmt.Fprintf(&builder, "%s %s", st.state, humanize.RelTime(st.since, now, "ago", "from now"))
	} else {
		builder.WriteString("idle")
	}
	for _, c := range counterOrder {
		n := t.Count(screen, c)
		if n == 0 {
			continue
		}
		fmt.Fprintf(&builder, ", %s=%s", c, humanize.Comma(int64(n)))
	}
	return builder.String()
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Truncate(time.Second).String()
}

func incrementCounter(m *sync.Map, key string) {
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(1)
		return
	}
	counter.Add(1)
}
