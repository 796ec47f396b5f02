package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const systemMaxLines = 200

// Dashboard renders the console layout when a compatible terminal is
// available: stats on top, one pane per screen, and a scrolling system log.
type Dashboard struct {
	app        *tview.Application
	statsView  *tview.TextView
	screenRow  *tview.Flex
	systemView *tview.TextView
	frames     *frameScheduler
	opts       Options

	mu          sync.Mutex
	screens     map[string]*screenPane
	systemLines []string

	closed atomic.Bool
	ready  chan struct{}
}

// NewDashboard starts the tview application. Stop must be called to restore
// the terminal.
func NewDashboard(opts Options) *Dashboard {
	opts = opts.normalize()

	stats := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	stats.SetTextColor(tcell.ColorYellow)
	stats.SetBorder(true).SetTitle(" Screens ").SetTitleAlign(tview.AlignLeft)

	screenRow := tview.NewFlex().SetDirection(tview.FlexColumn)

	system := tview.NewTextView().SetDynamicColors(false).SetWrap(false)
	system.SetTextColor(tcell.ColorYellow)
	system.SetBorder(true).SetTitle(" System ").SetTitleAlign(tview.AlignLeft)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(stats, 8, 0, false).
		AddItem(screenRow, 7, 0, false).
		AddItem(system, 0, 1, false)

	app := tview.NewApplication().SetRoot(layout, true).EnableMouse(false)
	ready := make(chan struct{})
	var once sync.Once
	app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		once.Do(func() { close(ready) })
		return false
	})

	d := &Dashboard{
		app:        app,
		statsView:  stats,
		screenRow:  screenRow,
		systemView: system,
		opts:       opts,
		screens:    make(map[string]*screenPane),
		ready:      ready,
	}
	d.frames = newFrameScheduler(func(fn func()) { app.QueueUpdateDraw(fn) }, opts.RefreshInterval, 0)
	d.frames.Start()

	go func() {
		if err := app.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		}
	}()
	return d
}

func (d *Dashboard) WaitReady() {
	if d == nil || d.ready == nil {
		return
	}
	select {
	case <-d.ready:
	case <-time.After(2 * time.Second):
	}
}

func (d *Dashboard) Stop() {
	if d == nil || !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.frames.Stop()
	d.app.Stop()
}

func (d *Dashboard) SetStats(lines []string) {
	if d == nil || d.closed.Load() {
		return
	}
	text := strings.Join(lines, "\n")
	d.frames.Schedule("stats", func() { d.statsView.SetText(text) })
}

func (d *Dashboard) AppendSystem(line string) {
	if d == nil || d.closed.Load() {
		return
	}
	line = strings.TrimRight(line, "\n")
	if line == "" {
		return
	}
	d.mu.Lock()
	d.systemLines = append(d.systemLines, line)
	if len(d.systemLines) > systemMaxLines {
		d.systemLines = d.systemLines[len(d.systemLines)-systemMaxLines:]
	}
	text := strings.Join(d.systemLines, "\n")
	d.mu.Unlock()
	d.frames.Schedule("system", func() {
		d.systemView.SetText(text)
		d.systemView.ScrollToEnd()
	})
}

func (d *Dashboard) SystemWriter() io.Writer {
	if d == nil {
		return nil
	}
	return &paneWriter{emit: d.AppendSystem}
}

func (d *Dashboard) Screen(id, kind string) ScreenView {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.screens[id]; ok {
		return p
	}
	view := tview.NewTextView().SetDynamicColors(false).SetWrap(true)
	view.SetBorder(true).SetTitle(" " + id + " ").SetTitleAlign(tview.AlignLeft)
	key := "screen:" + id
	p := newScreenPane(id, kind, d.opts, func(text string) {
		if d.closed.Load() {
			return
		}
		d.frames.Schedule(key, func() { view.SetText(text) })
	})
	d.screens[id] = p
	text := p.Render()
	d.app.QueueUpdateDraw(func() {
		view.SetText(text)
		d.screenRow.AddItem(view, 0, 1, false)
	})
	return p
}

// paneWriter splits log output into lines for the system pane.
type paneWriter struct {
	emit func(string)
}

func (w *paneWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line != "" {
			w.emit(line)
		}
	}
	return len(p), nil
}
