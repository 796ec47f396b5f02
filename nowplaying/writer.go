// Package nowplaying mirrors the current game and system into plain text
// files that stream overlays can read.
package nowplaying

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"trackscreen/display"
)

const (
	GameFile    = "game.txt"
	ConsoleFile = "console.txt"
	OutputFile  = "output.txt"
)

// Writer is a display.Observer. Game and system are merged across screens, so
// a game-only screen and a system-only screen together still fill both files.
type Writer struct {
	dir     string
	oneFile bool

	mu     sync.Mutex
	game   string
	system string
}

// New prepares dir. With oneFile set a single output.txt holds
// "<system>: <game>"; otherwise game.txt and console.txt are written.
func New(dir string, oneFile bool) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("nowplaying: ensure dir: %w", err)
	}
	return &Writer{dir: dir, oneFile: oneFile}, nil
}

func (w *Writer) Observe(screen string, st display.State, d display.Diff) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := false
	if display.Has(d.Changed, display.Game) && st.Game != w.game {
		w.game = st.Game
		changed = true
	}
	if display.Has(d.Changed, display.System) && st.System != w.system {
		w.system = st.System
		changed = true
	}
	if !changed {
		return
	}
	if w.game == "" && w.system == "" {
		w.clearLocked()
		return
	}
	w.writeLocked()
}

func (w *Writer) writeLocked() {
	if w.oneFile {
		output := w.system + ": " + w.game
		if w.put(OutputFile, output) {
			log.Printf("NowPlaying: output updated: %s", output)
		}
		return
	}
	if w.put(GameFile, w.game) {
		log.Printf("NowPlaying: game updated: %s", w.game)
	}
	if w.put(ConsoleFile, w.system) {
		log.Printf("NowPlaying: system updated: %s", w.system)
	}
}

func (w *Writer) clearLocked() {
	if w.oneFile {
		w.put(OutputFile, "")
		return
	}
	w.put(GameFile, "")
	w.put(ConsoleFile, "")
}

func (w *Writer) put(name, text string) bool {
	if err := os.WriteFile(filepath.Join(w.dir, name), []byte(text), 0o644); err != nil {
		log.Printf("NowPlaying: error writing %s: %v", name, err)
		return false
	}
	return true
}
