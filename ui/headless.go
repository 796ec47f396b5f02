package ui

import (
	"io"
	"log"
	"sync"
)

// Headless reports screen changes through the standard logger. It is used
// when stdout is not a terminal or the dashboard is disabled.
type Headless struct {
	opts Options

	mu      sync.Mutex
	screens map[string]*screenPane
}

func NewHeadless(opts Options) *Headless {
	return &Headless{opts: opts.normalize(), screens: make(map[string]*screenPane)}
}

func (h *Headless) WaitReady() {}

func (h *Headless) Stop() {}

func (h *Headless) SetStats(lines []string) {
	for _, line := range lines {
		log.Printf("Stats: %s", line)
	}
}

// AppendSystem is a no-op; system lines already reach the console.
func (h *Headless) AppendSystem(string) {}

func (h *Headless) SystemWriter() io.Writer { return nil }

func (h *Headless) Screen(id, kind string) ScreenView {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.screens[id]; ok {
		return p
	}
	last := ""
	p := newScreenPane(id, kind, h.opts, func(text string) {
		// Collapse repeated renders, e.g. a resize to the same size.
		if text == last {
			return
		}
		last = text
		log.Printf("UI[%s]: %s", id, flatten(text))
	})
	h.screens[id] = p
	return p
}

func flatten(text string) string {
	out := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			out = append(out, " | "...)
			continue
		}
		out = append(out, text[i])
	}
	return string(out)
}
