package ui

import (
	"io"
	"time"

	"trackscreen/carousel"
	"trackscreen/display"
)

// Surface abstracts the console so the dashboard and the headless logger can
// plug in interchangeably. Implementations must be safe for concurrent calls
// from every screen loop and the stats ticker.
type Surface interface {
	WaitReady()
	Stop()
	SetStats(lines []string)
	AppendSystem(line string)
	// SystemWriter returns the sink for log output, or nil to keep stdout.
	SystemWriter() io.Writer
	// Screen returns the view for one status screen, creating it on first use.
	Screen(id, kind string) ScreenView
}

// ScreenView is where one screen's text, icon and thumbnail mutations land.
type ScreenView interface {
	display.Surface
	carousel.Surface
	SetConnState(state string)
}

// Options tune how screen views present transitions.
type Options struct {
	RefreshInterval time.Duration
	FadeDuration    time.Duration
	FadeType        string
}

const (
	DefaultRefreshInterval = 250 * time.Millisecond
	DefaultFadeDuration    = 500 * time.Millisecond
	DefaultFadeType        = "ease-out"
)

func (o Options) normalize() Options {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	if o.FadeDuration <= 0 {
		o.FadeDuration = DefaultFadeDuration
	}
	if o.FadeType == "" {
		o.FadeType = DefaultFadeType
	}
	return o
}
