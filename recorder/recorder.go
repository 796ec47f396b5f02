// Package recorder keeps a bounded SQLite history of what the screens showed,
// one row per game or system change, without slowing the screen loops.
package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"trackscreen/display"
	"trackscreen/sqliteutil"

	_ "modernc.org/sqlite"
)

const queueSize = 256

// Entry is one recorded transition.
type Entry struct {
	Screen string
	Game   string
	System string
	Icon   string
	At     time.Time
}

// Recorder is a display.Observer that persists game/system transitions.
type Recorder struct {
	db      *sql.DB
	maxRows int
	now     func() time.Time

	entries chan write
	done    chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

type write struct {
	entry Entry
	ack   chan struct{}
}

// Open checks, opens (or creates) the database at path and starts the writer.
// maxRows bounds the table; older rows are pruned after each insert.
func Open(path string, maxRows int) (*Recorder, error) {
	if maxRows <= 0 {
		return nil, errors.New("recorder: max rows must be > 0")
	}
	if _, err := sqliteutil.Preflight(context.Background(), path, 2*time.Second, nil); err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: schema: %w", err)
	}
	r := &Recorder{
		db:      db,
		maxRows: maxRows,
		now:     time.Now,
		entries: make(chan write, queueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS now_playing (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    screen TEXT NOT NULL,
    game TEXT,
    system TEXT,
    icon TEXT,
    observed_at INTEGER
);
CREATE INDEX IF NOT EXISTS now_playing_screen ON now_playing(screen, id);`
	_, err := db.Exec(schema)
	return err
}

// Observe records the state after a game or system change. Icon-only changes
// are not history.
func (r *Recorder) Observe(screen string, st display.State, d display.Diff) {
	if r == nil || !(display.Has(d.Changed, display.Game) || display.Has(d.Changed, display.System)) {
		return
	}
	r.enqueue(write{entry: Entry{Screen: screen, Game: st.Game, System: st.System, Icon: st.Icon, At: r.now()}})
}

func (r *Recorder) enqueue(w write) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	select {
	case r.entries <- w:
		return true
	default:
		r.dropped++
		return false
	}
}

// Flush waits until every entry queued so far is written.
func (r *Recorder) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	select {
	case r.entries <- write{ack: ack}:
		r.mu.Unlock()
	case <-ctx.Done():
		r.mu.Unlock()
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for w := range r.entries {
		if w.ack != nil {
			close(w.ack)
			continue
		}
		if err := r.insert(w.entry); err != nil {
			log.Printf("Recorder: failed to insert %s entry: %v", w.entry.Screen, err)
		}
	}
}

func (r *Recorder) insert(e Entry) error {
	_, err := r.db.Exec(`INSERT INTO now_playing (screen, game, system, icon, observed_at) VALUES (?, ?, ?, ?, ?)`,
		e.Screen, e.Game, e.System, e.Icon, e.At.UTC().UnixMilli())
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`DELETE FROM now_playing WHERE id <= (SELECT MAX(id) FROM now_playing) - ?`, r.maxRows)
	return err
}

// Recent returns up to limit entries, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT screen, game, system, icon, observed_at FROM now_playing ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recorder: query: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&e.Screen, &e.Game, &e.System, &e.Icon, &at); err != nil {
			return nil, fmt.Errorf("recorder: scan: %w", err)
		}
		e.At = time.UnixMilli(at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Dropped reports entries discarded because the writer fell behind.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close drains pending writes and closes the database.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.entries)
	r.mu.Unlock()
	<-r.done
	return r.db.Close()
}
