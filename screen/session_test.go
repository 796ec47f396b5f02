package screen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"trackscreen/carousel"
	"trackscreen/conn"
	"trackscreen/display"
	"trackscreen/loop"
	"trackscreen/stats"
)

type pipeTransport struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newPipe() *pipeTransport {
	return &pipeTransport{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (p *pipeTransport) ReadMessage() ([]byte, error) {
	select {
	case f, ok := <-p.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-p.closed:
		return nil, net.ErrClosed
	}
}

func (p *pipeTransport) WriteMessage([]byte) error { return nil }

func (p *pipeTransport) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

type pipeDialer struct{ t *pipeTransport }

func (d pipeDialer) Dial(context.Context, string) (conn.Transport, error) { return d.t, nil }

type textSurface struct{ ops []string }

func (s *textSurface) SetText(f display.Field, text string) {
	s.ops = append(s.ops, fmt.Sprintf("text %s=%s", f, text))
}
func (s *textSurface) CreateIcon(src, alt string) {
	s.ops = append(s.ops, fmt.Sprintf("icon create %s alt=%s", src, alt))
}
func (s *textSurface) SetIconSource(src string) { s.ops = append(s.ops, "icon src "+src) }
func (s *textSurface) RemoveIcon()              { s.ops = append(s.ops, "icon remove") }

type imageSurface struct {
	images  []carousel.Image
	visible int
}

func (s *imageSurface) ResetImages(images []carousel.Image, visible int) {
	s.images = images
	s.visible = visible
}
func (s *imageSurface) CrossFade(from, to int)     { s.visible = to }
func (s *imageSurface) Resize(size carousel.Size) {}

// brokenLoader fails every image whose ref contains "broken".
type brokenLoader struct{ poster loop.Poster }

func (l brokenLoader) Load(src string, done func(carousel.Size, error)) {
	l.poster.Post(func() {
		if strings.Contains(src, "broken") {
			done(carousel.Size{}, errors.New("404"))
			return
		}
		done(carousel.Size{Width: 160, Height: 90}, nil)
	})
}

type recordingObserver struct {
	mu    sync.Mutex
	diffs []display.Diff
}

func (o *recordingObserver) Observe(screen string, st display.State, d display.Diff) {
	o.mu.Lock()
	o.diffs = append(o.diffs, d)
	o.mu.Unlock()
}

func (o *recordingObserver) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.diffs)
}

type fixture struct {
	s       *Session
	pipe    *pipeTransport
	text    *textSurface
	images  *imageSurface
	sched   *loop.ManualScheduler
	tracker *stats.Tracker
	obs     *recordingObserver
}

func start(t *testing.T, kind Kind) *fixture {
	t.Helper()
	f := &fixture{pipe: newPipe(), text: &textSurface{}, images: &imageSurface{}, tracker: stats.NewTracker(), obs: &recordingObserver{}}
	f.s = New(Options{
		ID:        string(kind),
		Kind:      kind,
		URL:       "ws://localhost:3489/startport",
		IconBase:  "/systems/",
		Stats:     f.tracker,
		Observers: []display.Observer{f.obs},
	}, Deps{
		Dialer: pipeDialer{f.pipe},
		Text:   f.text,
		Images: f.images,
		Loader: func(p loop.Poster) carousel.Loader { return brokenLoader{p} },
		Scheduler: func(p loop.Poster) loop.Scheduler {
			f.sched = loop.NewManualScheduler(p)
			return f.sched
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	go f.s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.s.Done():
		case <-time.After(2 * time.Second):
			t.Errorf("session did not stop")
		}
	})
	return f
}

func (f *fixture) send(frame string) {
	f.pipe.frames <- []byte(frame)
}

func (f *fixture) on(t *testing.T, fn func()) {
	t.Helper()
	if err := f.s.Loop().Do(context.Background(), fn); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSystemScreenScenario(t *testing.T) {
	f := start(t, KindSystem)
	update := `{"type":"update","screen":"system","payload":{"console":"SNES","icon":"snes.png"}}`
	f.send(update)
	waitFor(t, "applied", func() bool { return f.tracker.Count("system", stats.Applied) == 1 })

	var ops []string
	f.on(t, func() { ops = append(ops, f.text.ops...) })
	want := []string{"text system=SNES", "icon create /systems/snes.png alt=SNES"}
	if strings.Join(ops, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, ops)
	}

	f.send(update)
	f.send(`{"type":"update","screen":"system","payload":{"console":"SNES"}}`)
	waitFor(t, "received", func() bool { return f.tracker.Count("system", stats.Received) == 3 })
	f.on(t, func() { ops = append([]string(nil), f.text.ops...) })
	if len(ops) != 2 {
		t.Fatalf("repeat updates mutated the surface: %v", ops)
	}
	if f.obs.Len() != 1 {
		t.Fatalf("expected one observed diff, got %d", f.obs.Len())
	}
}

func TestOtherScreensIgnored(t *testing.T) {
	f := start(t, KindGame)
	f.send(`{"type":"update","screen":"system","payload":{"game":"Zelda"}}`)
	f.send(`{"type":"update","payload":{"game":"Zelda"}}`)
	waitFor(t, "ignored", func() bool { return f.tracker.Count("game", stats.Ignored) == 2 })
	var st display.State
	f.on(t, func() { st = f.s.State() })
	if st.Game != "" {
		t.Fatalf("foreign update applied: %+v", st)
	}
}

func TestThumbnailScreenSkipsBrokenFirstImage(t *testing.T) {
	f := start(t, KindThumbnails)
	f.send(`{"type":"update","screen":"thumbnails","payload":{"game":"Zelda","paths":["/t/broken.png","/t/b.png","/t/c.png"]}}`)
	waitFor(t, "applied", func() bool { return f.tracker.Count("thumbnails", stats.Applied) == 1 })

	var cursor, visible, n int
	waitFor(t, "advance past broken image", func() bool {
		f.on(t, func() {
			cursor = f.s.Carousel().Cursor()
			visible = f.images.visible
			n = len(f.images.images)
		})
		return cursor == 1
	})
	if visible != 1 || n != 3 {
		t.Fatalf("expected 3 images with index 1 visible, got %d visible of %d", visible, n)
	}
	if len(f.text.ops) != 0 {
		t.Fatalf("thumbnail screen must not write text, got %v", f.text.ops)
	}

	f.sched.Advance(carousel.DefaultInterval)
	waitFor(t, "tick", func() bool {
		f.on(t, func() { cursor = f.s.Carousel().Cursor() })
		return cursor == 2
	})
	f.sched.Advance(carousel.DefaultInterval)
	waitFor(t, "wrap skipping the broken image", func() bool {
		f.on(t, func() { cursor = f.s.Carousel().Cursor() })
		return cursor == 1
	})
}

func TestThumbnailEmptySetShowsPlaceholder(t *testing.T) {
	f := start(t, KindThumbnails)
	f.send(`{"type":"update","screen":"thumbnails","payload":{"game":"Tetris","paths":[]}}`)
	waitFor(t, "applied", func() bool { return f.tracker.Count("thumbnails", stats.Applied) == 1 })

	var state carousel.State
	var images []carousel.Image
	f.on(t, func() {
		state = f.s.Carousel().State()
		images = f.images.images
	})
	if state != carousel.Idle || len(images) != 1 || !images[0].Placeholder {
		t.Fatalf("expected idle placeholder, got %s %+v", state, images)
	}
	if pending := f.sched.Pending(); len(pending) != 0 {
		t.Fatalf("placeholder must not arm a timer, got %v", pending)
	}
}

func TestSameGameKeepsCarousel(t *testing.T) {
	f := start(t, KindThumbnails)
	f.send(`{"type":"update","screen":"thumbnails","payload":{"game":"Zelda","paths":["/t/a.png","/t/b.png"]}}`)
	waitFor(t, "applied", func() bool { return f.tracker.Count("thumbnails", stats.Applied) == 1 })
	f.sched.Advance(carousel.DefaultInterval)

	f.send(`{"type":"update","screen":"thumbnails","payload":{"game":"Zelda","paths":["/t/x.png"]}}`)
	waitFor(t, "received", func() bool { return f.tracker.Count("thumbnails", stats.Received) == 2 })
	var cursor, n int
	f.on(t, func() {
		cursor = f.s.Carousel().Cursor()
		n = f.s.Carousel().Len()
	})
	if cursor != 1 || n != 2 {
		t.Fatalf("same game must not replace the set, cursor=%d len=%d", cursor, n)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind(" All "); err != nil || k != KindAll {
		t.Fatalf("ParseKind: %v %v", k, err)
	}
	if _, err := ParseKind("settings-games"); err == nil {
		t.Fatalf("expected error for unsupported kind")
	}
	if KindThumbnails.Shows() != 0 || KindAll.Observes() != display.Game|display.System|display.Icon {
		t.Fatalf("unexpected field sets")
	}
}
