// Command history prints the most recent now-playing transitions recorded by
// the screen client.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"trackscreen/recorder"

	"github.com/dustin/go-humanize"
)

func main() {
	dbPath := flag.String("db", "data/history.db", "path to the now-playing history database")
	limit := flag.Int("n", 20, "number of entries to print")
	screen := flag.String("screen", "", "only print entries from this screen")
	flag.Parse()

	if err := run(os.Stdout, *dbPath, *limit, *screen, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, dbPath string, limit int, screen string, now time.Time) error {
	if limit <= 0 {
		return fmt.Errorf("-n must be > 0")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("history database: %w", err)
	}
	rec, err := recorder.Open(dbPath, 1<<20)
	if err != nil {
		return err
	}
	defer rec.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries, err := rec.Recent(ctx, limit)
	if err != nil {
		return err
	}
	printed := 0
	for _, e := range entries {
		if screen != "" && !strings.EqualFold(e.Screen, screen) {
			continue
		}
		fmt.Fprintln(w, formatEntry(e, now))
		printed++
	}
	if printed == 0 {
		fmt.Fprintln(w, "no entries recorded")
	}
	return nil
}

func formatEntry(e recorder.Entry, now time.Time) string {
	game := e.Game
	if game == "" {
		game = "-"
	}
	system := e.System
	if system == "" {
		system = "-"
	}
	return fmt.Sprintf("%s  %-10s %s: %s (%s)",
		e.At.Local().Format("2006-01-02 15:04:05"), e.Screen, system, game,
		humanize.RelTime(e.At, now, "ago", "from now"))
}
