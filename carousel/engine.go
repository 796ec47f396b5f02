// Package carousel rotates a screen's thumbnail images on a fixed interval,
// skipping images that failed to load, and sizes the container around the
// visible image.
package carousel

import (
	"log"
	"strings"
	"time"

	"trackscreen/assets"
	"trackscreen/loop"
	"trackscreen/stats"

	"github.com/zeebo/xxh3"
)

// DefaultInterval matches the stock thumbnail_switch_interval of 5 seconds.
const DefaultInterval = 5 * time.Second

// State is the rotation mode implied by the current set.
type State int

const (
	// Idle: no thumbnails, placeholder shown, no timer.
	Idle State = iota
	// Single: one thumbnail, always visible, no timer.
	Single
	// Rotating: two or more thumbnails and an armed timer.
	Rotating
)

func (s State) String() string {
	switch s {
	case Single:
		return "single"
	case Rotating:
		return "rotating"
	default:
		return "idle"
	}
}

// Set is an ordered thumbnail set plus optional size hints.
type Set struct {
	Paths []string
	Hints Hints
}

// Fingerprint identifies the ordered path list for logs and history.
func (s Set) Fingerprint() uint64 {
	return xxh3.HashString(strings.Join(s.Paths, "\x00"))
}

// Image is one element handed to the surface.
type Image struct {
	Src         string
	Alt         string
	Placeholder bool
}

// Surface is the image container the engine drives.
type Surface interface {
	// ResetImages empties the container and inserts images; only visible is shown.
	ResetImages(images []Image, visible int)
	// CrossFade hides from and shows to in one step; the animation is not awaited.
	CrossFade(from, to int)
	Resize(size Size)
}

// Loader resolves an image's natural size asynchronously. done must be
// invoked on the engine's loop.
type Loader interface {
	Load(src string, done func(natural Size, err error))
}

// Options tune an Engine.
type Options struct {
	Screen       string
	Interval     time.Duration
	Placeholder  string
	DefaultHints Hints
	Buster       assets.CacheBuster
	Stats        *stats.Tracker
}

type slot struct {
	path        string
	natural     Size
	loaded      bool
	faulted     bool
	placeholder bool
}

// Engine owns the cursor, fault flags and the single rotation timer of one
// container. All methods run on the screen's loop.
type Engine struct {
	opts    Options
	surface Surface
	loader  Loader
	sched   loop.Scheduler

	slots  []slot
	cursor int
	state  State
	hints  Hints
	timer  loop.Timer
	gen    uint64
	print  uint64
}

func New(opts Options, surface Surface, loader Loader, sched loop.Scheduler) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Placeholder == "" {
		opts.Placeholder = assets.DefaultPlaceholder
	}
	return &Engine{opts: opts, surface: surface, loader: loader, sched: sched}
}

// Replace installs a new set: the old timer is cancelled before anything
// else, fault flags are cleared, the cursor returns to 0 and a new timer is
// armed only when there is something to rotate.
func (e *Engine) Replace(set Set) {
	e.cancelTimer()
	e.gen++
	gen := e.gen

	e.hints = set.Hints
	if e.hints.IsZero() {
		e.hints = e.opts.DefaultHints
	}
	e.cursor = 0
	e.print = set.Fingerprint()

	images := make([]Image, 0, max(len(set.Paths), 1))
	e.slots = e.slots[:0]
	if len(set.Paths) == 0 {
		log.Printf("Carousel[%s]: no thumbnails found, displaying placeholder", e.opts.Screen)
		e.slots = append(e.slots, slot{path: e.opts.Placeholder, placeholder: true})
		images = append(images, Image{Src: assets.Bust(e.opts.Placeholder, e.opts.Buster), Alt: "No Thumbnail", Placeholder: true})
	} else {
		for _, p := range set.Paths {
			e.slots = append(e.slots, slot{path: p})
			images = append(images, Image{Src: assets.Bust(p, e.opts.Buster), Alt: "Thumbnail"})
		}
	}

	switch {
	case len(set.Paths) == 0:
		e.state = Idle
	case len(set.Paths) == 1:
		e.state = Single
	default:
		e.state = Rotating
	}

	e.surface.ResetImages(images, 0)
	e.resize()
	if e.loader != nil {
		for i, img := range images {
			i := i
			e.loader.Load(img.Src, func(natural Size, err error) {
				e.loaded(gen, i, natural, err)
			})
		}
	}
	if e.state == Rotating {
		e.arm()
	}
}

// Stop cancels the rotation timer.
func (e *Engine) Stop() {
	e.cancelTimer()
}

// Tick advances to the next non-faulted image. With nothing else to show the
// cursor stays where it is.
func (e *Engine) Tick() {
	if len(e.slots) < 2 {
		return
	}
	e.advance()
}

func (e *Engine) State() State        { return e.state }
func (e *Engine) Cursor() int         { return e.cursor }
func (e *Engine) Len() int            { return len(e.slots) }
func (e *Engine) Fingerprint() uint64 { return e.print }

// Faulted reports whether image i failed to load.
func (e *Engine) Faulted(i int) bool {
	return i >= 0 && i < len(e.slots) && e.slots[i].faulted
}

// Armed reports whether a rotation timer is pending.
func (e *Engine) Armed() bool {
	return e.timer != nil
}

func (e *Engine) arm() {
	gen := e.gen
	e.timer = e.sched.AfterFunc(e.opts.Interval, func() {
		if gen != e.gen {
			return
		}
		e.timer = nil
		e.Tick()
		if e.state == Rotating && gen == e.gen {
			e.arm()
		}
	})
}

func (e *Engine) cancelTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// advance runs the forward circular search from cursor+1, skipping faulted
// images, and stops after one full lap.
func (e *Engine) advance() {
	n := len(e.slots)
	if n == 0 {
		return
	}
	next := e.cursor
	for step := 1; step < n; step++ {
		i := (e.cursor + step) % n
		if !e.slots[i].faulted {
			next = i
			break
		}
	}
	if next == e.cursor {
		return
	}
	prev := e.cursor
	e.cursor = next
	e.surface.CrossFade(prev, next)
	e.opts.Stats.Increment(e.opts.Screen, stats.Rotations)
	e.resize()
}

func (e *Engine) loaded(gen uint64, i int, natural Size, err error) {
	if gen != e.gen || i < 0 || i >= len(e.slots) {
		return
	}
	s := &e.slots[i]
	if err != nil {
		if s.placeholder {
			log.Printf("Carousel[%s]: placeholder failed to load: %v", e.opts.Screen, err)
			return
		}
		s.faulted = true
		e.opts.Stats.Increment(e.opts.Screen, stats.ImageFaults)
		log.Printf("Carousel[%s]: failed to load image: %s (%v)", e.opts.Screen, s.path, err)
		if i == e.cursor {
			e.advance()
		}
		return
	}
	s.natural = natural
	s.loaded = true
	if i == e.cursor && (e.hints.Width <= 0 || e.hints.Height <= 0) {
		e.resize()
	}
}

// resize sizes the container around the visible image. Without both hints the
// natural size is required, so it waits for the image to load.
func (e *Engine) resize() {
	if len(e.slots) == 0 {
		return
	}
	s := e.slots[e.cursor]
	if e.hints.Width > 0 && e.hints.Height > 0 {
		e.surface.Resize(ComputeSize(s.natural, e.hints))
		return
	}
	if !s.loaded {
		return
	}
	e.surface.Resize(ComputeSize(s.natural, e.hints))
}
