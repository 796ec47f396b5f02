package conn

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"trackscreen/loop"
	"trackscreen/protocol"
	"trackscreen/stats"

	"github.com/gorilla/websocket"
)

const testDelay = 3 * time.Second

type fakeTransport struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	written  []string
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case frame, ok := <-f.frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-f.closed:
		return nil, net.ErrClosed
	}
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, string(data))
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

type fakeDialer struct {
	mu    sync.Mutex
	dials int
	next  func() (Transport, error)
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Transport, error) {
	d.mu.Lock()
	d.dials++
	next := d.next
	d.mu.Unlock()
	return next()
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type harness struct {
	m       *Manager
	l       *loop.Loop
	sched   *loop.ManualScheduler
	tracker *stats.Tracker

	mu      sync.Mutex
	handled []protocol.Envelope
}

func newHarness(t *testing.T, dialer Dialer, url string) *harness {
	t.Helper()
	h := &harness{l: loop.New(), tracker: stats.NewTracker()}
	h.sched = loop.NewManualScheduler(h.l)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		h.l.Stop()
	})
	go h.l.Run(ctx)
	h.m = NewManager(Config{URL: url, Screen: "system", ReconnectDelay: testDelay}, dialer, h.l, h.sched, h.tracker)
	h.m.Handle(protocol.KindUpdate, func(env protocol.Envelope) {
		h.mu.Lock()
		h.handled = append(h.handled, env)
		h.mu.Unlock()
	})
	h.m.Start(ctx)
	return h
}

func (h *harness) Handled() []protocol.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Envelope(nil), h.handled...)
}

func (h *harness) State(t *testing.T) State {
	t.Helper()
	var st State
	if err := h.l.Do(context.Background(), func() { st = h.m.State() }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	return st
}

func eventually(t *testing.T, what string, cond func() bool) {
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

func pendingIs(s *loop.ManualScheduler, want ...time.Duration) func() bool {
	return func() bool {
		got := s.Pending()
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}
}

func TestReconnectScheduledOncePerClose(t *testing.T) {
	dialer := &fakeDialer{next: func() (Transport, error) { return nil, errors.New("connection refused") }}
	h := newHarness(t, dialer, "ws://localhost:1/startport")

	eventually(t, "first reconnect timer", pendingIs(h.sched, testDelay))
	if got := dialer.Dials(); got != 1 {
		t.Fatalf("expected 1 dial before the delay elapses, got %d", got)
	}

	h.sched.Advance(testDelay - time.Millisecond)
	if got := dialer.Dials(); got != 1 {
		t.Fatalf("reconnect fired early: %d dials", got)
	}

	h.sched.Advance(time.Millisecond)
	eventually(t, "second dial", func() bool { return dialer.Dials() == 2 })
	eventually(t, "second reconnect timer", pendingIs(h.sched, testDelay))
	if got := h.tracker.Count("system", stats.Reconnects); got != 2 {
		t.Fatalf("expected 2 scheduled reconnects, got %d", got)
	}
}

func TestRegisterAndDispatchRouting(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{next: func() (Transport, error) { return transport, nil }}
	h := newHarness(t, dialer, "ws://localhost:1/startport")

	eventually(t, "open state", func() bool { return h.State(t) == Open })
	written := transport.Written()
	if len(written) != 1 || written[0] != `{"type":"register","screen":"system"}` {
		t.Fatalf("expected register frame first, got %v", written)
	}

	transport.frames <- []byte("{not json")
	transport.frames <- []byte(`{"type":"update","screen":"thumbnails","payload":{"game":"x"}}`)
	transport.frames <- []byte(`{"type":"refresh","screen":"system","payload":true}`)
	transport.frames <- []byte(`{"type":"update","screen":"system","payload":{"console":"SNES"}}`)

	eventually(t, "routed update", func() bool { return len(h.Handled()) == 1 })
	if env := h.Handled()[0]; env.Screen != "system" || env.Type != protocol.KindUpdate {
		t.Fatalf("unexpected routed envelope %+v", env)
	}
	eventually(t, "counters", func() bool {
		return h.tracker.Count("system", stats.Received) == 4 &&
			h.tracker.Count("system", stats.Malformed) == 1 &&
			h.tracker.Count("system", stats.Ignored) == 2
	})
	if st := h.State(t); st != Open {
		t.Fatalf("malformed message must not affect the connection, state=%s", st)
	}

	close(transport.frames)
	eventually(t, "reconnect after close", pendingIs(h.sched, testDelay))
	if st := h.State(t); st != Closed {
		t.Fatalf("expected closed state, got %s", st)
	}
}

func TestSendWhileClosedIsDropped(t *testing.T) {
	dialer := &fakeDialer{next: func() (Transport, error) { return nil, errors.New("refused") }}
	h := newHarness(t, dialer, "ws://localhost:1/startport")
	eventually(t, "closed", pendingIs(h.sched, testDelay))

	var err error
	if doErr := h.l.Do(context.Background(), func() { err = h.m.Send(protocol.NewRegister("system")) }); doErr != nil {
		t.Fatalf("Do: %v", doErr)
	}
	if !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if got := h.tracker.Count("system", stats.SendDropped); got != 1 {
		t.Fatalf("expected dropped send to be counted, got %d", got)
	}
}

func TestWriteErrorKeepsConnectionOpen(t *testing.T) {
	transport := newFakeTransport()
	dialer := &fakeDialer{next: func() (Transport, error) { return transport, nil }}
	h := newHarness(t, dialer, "ws://localhost:1/startport")
	eventually(t, "open state", func() bool { return h.State(t) == Open })

	transport.mu.Lock()
	transport.writeErr = errors.New("broken pipe")
	transport.mu.Unlock()

	var err error
	if doErr := h.l.Do(context.Background(), func() { err = h.m.Send(protocol.GetData("system", protocol.DataProcesses, "")) }); doErr != nil {
		t.Fatalf("Do: %v", doErr)
	}
	if err == nil {
		t.Fatalf("expected write error")
	}
	if st := h.State(t); st != Open {
		t.Fatalf("write error must not change state, got %s", st)
	}
	if pending := h.sched.Pending(); len(pending) != 0 {
		t.Fatalf("write error must not schedule a reconnect, got %v", pending)
	}
}

func TestStopCancelsPendingReconnect(t *testing.T) {
	dialer := &fakeDialer{next: func() (Transport, error) { return nil, errors.New("refused") }}
	h := newHarness(t, dialer, "ws://localhost:1/startport")
	eventually(t, "reconnect timer", pendingIs(h.sched, testDelay))

	h.m.Stop()
	eventually(t, "timer cancelled", pendingIs(h.sched))
	h.sched.Advance(10 * testDelay)
	time.Sleep(20 * time.Millisecond)
	if got := dialer.Dials(); got != 1 {
		t.Fatalf("expected no dial after Stop, got %d", got)
	}
}

func TestWebsocketEndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	registered := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/startport" {
			http.NotFound(w, r)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		registered <- string(msg)
		frame, _ := protocol.Encode(protocol.NewUpdate("system", map[string]string{"console": "SNES", "icon": "snes.png"}))
		_ = ws.WriteMessage(websocket.TextMessage, frame)
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/startport"
	h := newHarness(t, WebsocketDialer{HandshakeTimeout: time.Second}, url)

	select {
	case msg := <-registered:
		if msg != `{"type":"register","screen":"system"}` {
			t.Fatalf("unexpected register frame %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never saw register")
	}
	eventually(t, "update routed", func() bool { return len(h.Handled()) == 1 })
	u, err := protocol.DecodeUpdate(h.Handled()[0])
	if err != nil {
		t.Fatalf("DecodeUpdate: %v", err)
	}
	if u.Console == nil || *u.Console != "SNES" {
		t.Fatalf("unexpected payload %+v", u)
	}
	eventually(t, "reconnect scheduled after server close", pendingIs(h.sched, testDelay))
}

func TestEndpoint(t *testing.T) {
	if got := Endpoint("", 3489, "startport"); got != "ws://localhost:3489/startport" {
		t.Fatalf("unexpected endpoint %s", got)
	}
	if got := Endpoint("::1", 80, "/startport"); got != "ws://[::1]:80/startport" {
		t.Fatalf("unexpected endpoint %s", got)
	}
}
