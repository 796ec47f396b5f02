package main

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultRepeatLogMaxKeys = 256
)

// repeatLogDeduper collapses log lines that repeat on every reconnect attempt
// or carousel pass while the tray server is unreachable.
type repeatLogDeduper struct {
	mu      sync.Mutex
	window  time.Duration
	maxKeys int
	now     func() time.Time
	entries map[string]repeatLogEntry
}

type repeatLogEntry struct {
	nextEmit   time.Time
	lastSeen   time.Time
	suppressed uint64
}

func newRepeatLogDeduper(window time.Duration, maxKeys int) *repeatLogDeduper {
	if window <= 0 || maxKeys <= 0 {
		return nil
	}
	return &repeatLogDeduper{
		window:  window,
		maxKeys: maxKeys,
		now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[string]repeatLogEntry, maxKeys),
	}
}

// Process reports whether line should be emitted, annotating it with the
// number of copies swallowed since the last emission.
func (d *repeatLogDeduper) Process(line string) (string, bool) {
	if strings.TrimSpace(line) == "" {
		return "", false
	}
	if d == nil {
		return line, true
	}
	key, ok := repeatLogKey(line)
	if !ok {
		return line, true
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, found := d.entries[key]
	if !found {
		d.evictOneIfNeededLocked()
		d.entries[key] = repeatLogEntry{nextEmit: now.Add(d.window), lastSeen: now}
		return line, true
	}
	entry.lastSeen = now
	if now.Before(entry.nextEmit) {
		entry.suppressed++
		d.entries[key] = entry
		return "", false
	}
	suppressed := entry.suppressed
	entry.suppressed = 0
	entry.nextEmit = now.Add(d.window)
	d.entries[key] = entry
	if suppressed > 0 {
		line = fmt.Sprintf("%s (suppressed=%d over %s)", line, suppressed, d.window)
	}
	return line, true
}

// Forget drops every key for screen so its next failure is reported at once,
// e.g. after the connection was re-established.
func (d *repeatLogDeduper) Forget(screen string) {
	if d == nil {
		return
	}
	suffix := ":" + screen
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.entries {
		if strings.HasPrefix(key, "conn-") && strings.HasSuffix(key, suffix) {
			delete(d.entries, key)
		}
	}
}

func (d *repeatLogDeduper) evictOneIfNeededLocked() {
	if len(d.entries) < d.maxKeys {
		return
	}
	var oldestKey string
	var oldestSeen time.Time
	haveOldest := false
	for key, entry := range d.entries {
		if !haveOldest || entry.lastSeen.Before(oldestSeen) {
			oldestKey = key
			oldestSeen = entry.lastSeen
			haveOldest = true
		}
	}
	if haveOldest {
		delete(d.entries, oldestKey)
	}
}

// repeatLogKey classifies the noisy lines; anything else is never deduped.
func repeatLogKey(line string) (string, bool) {
	tag, rest, ok := strings.Cut(strings.TrimSpace(line), ": ")
	if !ok {
		return "", false
	}
	component, screen, ok := splitLogTag(tag)
	if !ok {
		return "", false
	}
	switch component {
	case "Conn":
		switch {
		case strings.HasPrefix(rest, "connecting to "):
			return "conn-connecting:" + screen, true
		case strings.HasPrefix(rest, "connection error: "):
			return "conn-error:" + screen, true
		case strings.HasPrefix(rest, "disconnected; "):
			return "conn-retry:" + screen, true
		}
	case "Carousel":
		if path, ok := strings.CutPrefix(rest, "failed to load image: "); ok {
			if i := strings.LastIndex(path, " ("); i > 0 {
				path = path[:i]
			}
			return "image:" + screen + ":" + path, true
		}
	}
	return "", false
}

// splitLogTag parses "Component[screen]".
func splitLogTag(tag string) (string, string, bool) {
	open := strings.IndexByte(tag, '[')
	if open <= 0 || !strings.HasSuffix(tag, "]") {
		return "", "", false
	}
	screen := tag[open+1 : len(tag)-1]
	if screen == "" {
		return "", "", false
	}
	return tag[:open], screen, true
}

// connectedScreen reports the screen of a "connection established" line.
func connectedScreen(line string) (string, bool) {
	tag, rest, ok := strings.Cut(strings.TrimSpace(line), ": ")
	if !ok || rest != "connection established" {
		return "", false
	}
	component, screen, ok := splitLogTag(tag)
	if !ok || component != "Conn" {
		return "", false
	}
	return screen, true
}
