// Package conn owns the persistent push connection of one screen: dialing,
// registration, inbound dispatch and the fixed-delay reconnect cycle.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"trackscreen/loop"
	"trackscreen/protocol"
	"trackscreen/stats"

	"github.com/google/uuid"
)

// DefaultReconnectDelay is used when Config.ReconnectDelay is unset.
const DefaultReconnectDelay = 3 * time.Second

// ErrNotOpen is returned by Send while no connection is open. The message is
// not queued.
var ErrNotOpen = errors.New("conn: connection not open")

// State is the lifecycle state of the current connection.
type State int

const (
	Closed State = iota
	Connecting
	Open
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// Handler consumes one routed envelope on the loop goroutine.
type Handler func(env protocol.Envelope)

// Config describes one screen's connection.
type Config struct {
	URL            string
	Screen         string
	ReconnectDelay time.Duration
	// OnState is called on the loop whenever the state changes.
	OnState func(State)
}

// Manager holds exactly one live connection per screen. Every method except
// Start and Stop must run on the loop goroutine.
type Manager struct {
	cfg      Config
	dialer   Dialer
	loop     loop.Poster
	sched    loop.Scheduler
	stats    *stats.Tracker
	handlers map[string]Handler

	ctx     context.Context
	cancel  context.CancelFunc
	state   State
	current *session
	retry   loop.Timer
	stopped bool
}

// session is one connection attempt. A closed session is never reused.
type session struct {
	id        string
	transport Transport
	closed    bool
}

func NewManager(cfg Config, dialer Dialer, poster loop.Poster, sched loop.Scheduler, tracker *stats.Tracker) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	return &Manager{
		cfg:      cfg,
		dialer:   dialer,
		loop:     poster,
		sched:    sched,
		stats:    tracker,
		handlers: make(map[string]Handler),
	}
}

// Handle registers h for messages of kind addressed to this screen. Register
// handlers before Start.
func (m *Manager) Handle(kind string, h Handler) {
	m.handlers[kind] = h
}

// Start begins the first connection attempt.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.loop.Post(m.connect)
}

// Stop cancels any pending reconnect and closes the live connection. No
// further attempts are made.
func (m *Manager) Stop() {
	m.loop.Post(func() {
		m.stopped = true
		if m.retry != nil {
			m.retry.Stop()
			m.retry = nil
		}
		if m.cancel != nil {
			m.cancel()
		}
		if m.current != nil {
			m.closeSession(m.current)
		}
	})
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	return m.state
}

func (m *Manager) connect() {
	m.retry = nil
	if m.stopped {
		return
	}
	s := &session{id: uuid.NewString()}
	m.current = s
	m.setState(Connecting)
	log.Printf("Conn[%s]: connecting to %s (attempt %s)", m.cfg.Screen, m.cfg.URL, shortID(s.id))

	ctx := m.ctx
	go func() {
		t, err := m.dialer.Dial(ctx, m.cfg.URL)
		if !m.loop.Post(func() { m.onDial(s, t, err) }) && t != nil {
			_ = t.Close()
		}
	}()
}

func (m *Manager) onDial(s *session, t Transport, err error) {
	if s != m.current || m.stopped {
		if t != nil {
			_ = t.Close()
		}
		return
	}
	if err != nil {
		log.Printf("Conn[%s]: connection error: %v", m.cfg.Screen, err)
		m.onClose(s)
		return
	}
	s.transport = t
	m.setState(Open)
	log.Printf("Conn[%s]: connection established", m.cfg.Screen)
	if err := m.Send(protocol.NewRegister(m.cfg.Screen)); err != nil {
		log.Printf("Conn[%s]: register failed: %v", m.cfg.Screen, err)
	}
	go m.readLoop(s, t)
}

func (m *Manager) readLoop(s *session, t Transport) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			m.loop.Post(func() { m.onReadError(s, err) })
			return
		}
		m.loop.Post(func() { m.dispatch(s, data) })
	}
}

func (m *Manager) onReadError(s *session, err error) {
	if s != m.current || s.closed {
		return
	}
	if !isOrderlyClose(err) {
		log.Printf("Conn[%s]: transport error: %v", m.cfg.Screen, err)
	}
	m.onClose(s)
}

// onClose is the only path that schedules a reconnect; the closed flag keeps
// it to one per session.
func (m *Manager) onClose(s *session) {
	if s.closed {
		return
	}
	m.closeSession(s)
	if m.stopped {
		return
	}
	m.stats.Increment(m.cfg.Screen, stats.Reconnects)
	log.Printf("Conn[%s]: disconnected; reconnecting in %s", m.cfg.Screen, m.cfg.ReconnectDelay)
	m.retry = m.sched.AfterFunc(m.cfg.ReconnectDelay, m.connect)
}

func (m *Manager) closeSession(s *session) {
	s.closed = true
	if s.transport != nil {
		_ = s.transport.Close()
	}
	if m.current == s {
		m.current = nil
		m.setState(Closed)
	}
}

func (m *Manager) dispatch(s *session, raw []byte) {
	if s != m.current || s.closed {
		return
	}
	m.stats.Increment(m.cfg.Screen, stats.Received)
	env, err := protocol.Decode(raw)
	if err != nil {
		m.stats.Increment(m.cfg.Screen, stats.Malformed)
		log.Printf("Conn[%s]: dropping message: %v", m.cfg.Screen, err)
		return
	}
	h, ok := m.handlers[env.Type]
	if !ok || env.Screen != m.cfg.Screen {
		m.stats.Increment(m.cfg.Screen, stats.Ignored)
		return
	}
	h(env)
}

// Send writes msg on the open connection. With no open connection the message
// is lost and ErrNotOpen is returned. A write failure is logged but does not
// change the connection state; the read side reports the close.
func (m *Manager) Send(msg any) error {
	if m.state != Open || m.current == nil || m.current.transport == nil {
		m.stats.Increment(m.cfg.Screen, stats.SendDropped)
		return ErrNotOpen
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := m.current.transport.WriteMessage(data); err != nil {
		log.Printf("Conn[%s]: transport error: %v", m.cfg.Screen, err)
		return fmt.Errorf("conn: write: %w", err)
	}
	return nil
}

func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.stats.SetState(m.cfg.Screen, s.String(), time.Now())
	if m.cfg.OnState != nil {
		m.cfg.OnState(s)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
