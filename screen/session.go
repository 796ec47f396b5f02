package screen

import (
	"context"
	"log"
	"sync"
	"time"

	"trackscreen/assets"
	"trackscreen/carousel"
	"trackscreen/conn"
	"trackscreen/display"
	"trackscreen/loop"
	"trackscreen/protocol"
	"trackscreen/stats"
)

// Options describe one screen session.
type Options struct {
	ID             string
	Kind           Kind
	URL            string
	ReconnectDelay time.Duration
	IconBase       string
	Buster         assets.CacheBuster
	// Carousel is used for thumbnail screens; Screen, Buster and Stats are
	// filled in from the session.
	Carousel  carousel.Options
	Observers []display.Observer
	Stats     *stats.Tracker
	OnState   func(screen string, st conn.State)
}

// Deps are the collaborators a session drives. Loader and Scheduler are built
// once the loop exists because they post back to it; Scheduler defaults to
// the loop's wall clock.
type Deps struct {
	Dialer    conn.Dialer
	Text      display.Surface
	Images    carousel.Surface
	Loader    func(loop.Poster) carousel.Loader
	Scheduler func(loop.Poster) loop.Scheduler
}

// Session runs one screen. Everything below the loop is single-threaded.
type Session struct {
	opts     Options
	loop     *loop.Loop
	mgr      *conn.Manager
	store    *display.Store
	renderer *display.Renderer
	engine   *carousel.Engine

	stopOnce sync.Once
}

func New(opts Options, deps Deps) *Session {
	l := loop.New()
	var sched loop.Scheduler = l
	if deps.Scheduler != nil {
		sched = deps.Scheduler(l)
	}
	s := &Session{
		opts:     opts,
		loop:     l,
		store:    display.NewStore(opts.Kind.Observes()),
		renderer: display.NewRenderer(deps.Text, opts.Kind.Shows(), opts.IconBase, opts.Buster),
	}
	if opts.Kind.HasCarousel() && deps.Images != nil {
		copts := opts.Carousel
		copts.Screen = opts.ID
		copts.Buster = opts.Buster
		copts.Stats = opts.Stats
		var loader carousel.Loader
		if deps.Loader != nil {
			loader = deps.Loader(l)
		}
		s.engine = carousel.New(copts, deps.Images, loader, sched)
	}
	cfg := conn.Config{URL: opts.URL, Screen: opts.ID, ReconnectDelay: opts.ReconnectDelay}
	if opts.OnState != nil {
		cfg.OnState = func(st conn.State) { opts.OnState(opts.ID, st) }
	}
	s.mgr = conn.NewManager(cfg, deps.Dialer, l, sched, opts.Stats)
	s.mgr.Handle(protocol.KindUpdate, s.handleUpdate)
	return s
}

// Run connects and drains the loop until ctx is cancelled or Stop is called.
func (s *Session) Run(ctx context.Context) {
	s.mgr.Start(ctx)
	if s.engine != nil {
		s.loop.Post(func() { s.engine.Replace(carousel.Set{}) })
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.loop.Done():
		}
	}()
	s.loop.Run(context.Background())
}

// Stop closes the connection, cancels timers and ends Run. Idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mgr.Stop()
		if !s.loop.Post(func() {
			if s.engine != nil {
				s.engine.Stop()
			}
			s.loop.Stop()
		}) {
			s.loop.Stop()
		}
	})
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.loop.Done()
}

func (s *Session) ID() string { return s.opts.ID }

func (s *Session) Kind() Kind { return s.opts.Kind }

// Loop exposes the session loop so callers can inspect state with Do.
func (s *Session) Loop() *loop.Loop { return s.loop }

// State returns the cached display state. Call on the loop.
func (s *Session) State() display.State { return s.store.State() }

// Carousel returns the engine of a thumbnail screen, or nil. Call on the loop.
func (s *Session) Carousel() *carousel.Engine { return s.engine }

// Send forwards an outbound message on the session's connection. Call on the
// loop.
func (s *Session) Send(msg any) error { return s.mgr.Send(msg) }

func (s *Session) handleUpdate(env protocol.Envelope) {
	u, err := protocol.DecodeUpdate(env)
	if err != nil {
		s.opts.Stats.Increment(s.opts.ID, stats.Malformed)
		log.Printf("Screen[%s]: dropping update: %v", s.opts.ID, err)
		return
	}
	d := s.store.Apply(u)
	if d.Empty() {
		return
	}
	s.renderer.Apply(d)
	if s.engine != nil && d.GameChanged() {
		set := carousel.Set{
			Paths: u.Paths,
			Hints: carousel.Hints{Width: int(u.Width), Height: int(u.Height)},
		}
		log.Printf("Screen[%s]: game changed to %q, %d thumbnails (set %016x)", s.opts.ID, d.Game, len(set.Paths), set.Fingerprint())
		s.engine.Replace(set)
	}
	s.opts.Stats.Increment(s.opts.ID, stats.Applied)
	st := s.store.State()
	for _, o := range s.opts.Observers {
		o.Observe(s.opts.ID, st, d)
	}
}
