package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"trackscreen/config"
)

const (
	logTimestampLayout = "2006/01/02 15:04:05"
	logFileDateLayout  = "02-Jan-2006"
	maxLogBufferBytes  = 16 * 1024
)

type lineSink interface {
	WriteLine(line string, now time.Time)
	Close() error
}

// writerSink prints lines to the console or the dashboard's system pane.
type writerSink struct {
	w             io.Writer
	withTimestamp bool
}

func (s *writerSink) WriteLine(line string, now time.Time) {
	if s == nil || s.w == nil {
		return
	}
	if s.withTimestamp {
		line = formatLogTimestamp(now) + " " + line
	}
	_, _ = io.WriteString(s.w, line+"\n")
}

func (s *writerSink) Close() error { return nil }

// dayRolloverHook runs on its own goroutine after the file sink switches to a
// new day, so it may log through the same logger.
type dayRolloverHook func(prevDate time.Time, newPath string)

// dailyFileSink appends to <dir>/<DD-Mon-YYYY>.log and prunes files older than
// the retention window whenever the day changes.
type dailyFileSink struct {
	mu            sync.Mutex
	dir           string
	retentionDays int
	day           string
	path          string
	file          *os.File
	lastErrorAt   time.Time
	onRollover    dayRolloverHook
}

// Purpose: Initialize a daily file sink with directory creation and cleanup.
// Key aspects: Retention defaults to 7 days; a failed cleanup is reported, not fatal.
// Upstream: setupLogging.
// Downstream: os.MkdirAll and cleanupOldLogs.
func newDailyFileSink(dir string, retentionDays int) (*dailyFileSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}
	if err := cleanupOldLogs(dir, time.Now().UTC(), retentionDays); err != nil {
		fmt.Fprintf(os.Stderr, "Logging: cleanup failed for %s: %v\n", dir, err)
	}
	return &dailyFileSink{dir: dir, retentionDays: retentionDays}, nil
}

func (s *dailyFileSink) WriteLine(line string, now time.Time) {
	if s == nil {
		return
	}
	now = now.UTC()
	day := now.Format(logFileDateLayout)

	var hook dayRolloverHook
	var prev time.Time
	s.mu.Lock()
	if s.file == nil || s.day != day {
		prev = s.openDayLocked(day, now)
		if !prev.IsZero() {
			hook = s.onRollover
		}
	}
	if s.file == nil {
		s.mu.Unlock()
		return
	}
	if _, err := s.file.WriteString(formatLogTimestamp(now) + " " + line + "\n"); err != nil {
		s.reportErrorLocked(now, fmt.Errorf("write failed: %w", err))
	}
	path := s.path
	s.mu.Unlock()

	if hook != nil {
		go hook(prev, path)
	}
}

// openDayLocked switches to the file for day and returns the previous day,
// zero when this is the first file opened.
func (s *dailyFileSink) openDayLocked(day string, now time.Time) time.Time {
	var prev time.Time
	if s.day != "" && s.day != day {
		if parsed, err := time.ParseInLocation(logFileDateLayout, s.day, time.UTC); err == nil {
			prev = parsed
		}
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	path := filepath.Join(s.dir, logFileNameForDate(now))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.reportErrorLocked(now, fmt.Errorf("open failed for %s: %w", path, err))
		return time.Time{}
	}
	s.file, s.day, s.path = file, day, path
	if err := cleanupOldLogs(s.dir, now, s.retentionDays); err != nil {
		s.reportErrorLocked(now, fmt.Errorf("cleanup failed: %w", err))
	}
	return prev
}

func (s *dailyFileSink) SetRolloverHook(hook dayRolloverHook) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.onRollover = hook
	s.mu.Unlock()
}

func (s *dailyFileSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.day, s.path = nil, "", ""
	return err
}

// reportErrorLocked writes sink failures to stderr at most once a minute.
func (s *dailyFileSink) reportErrorLocked(now time.Time, err error) {
	if !s.lastErrorAt.IsZero() && now.Sub(s.lastErrorAt) < time.Minute {
		return
	}
	s.lastErrorAt = now
	fmt.Fprintf(os.Stderr, "Logging: %v\n", err)
}

// logFanout is the log.Logger output: it splits writes into lines and copies
// each line to the console sink and the file sink.
type logFanout struct {
	mu      sync.Mutex
	buf     []byte
	console lineSink
	file    lineSink
	dedupe  *repeatLogDeduper
}

func newLogFanout(console, file lineSink) *logFanout {
	return &logFanout{console: console, file: file}
}

// Purpose: Wire logging based on config without blocking startup.
// Key aspects: Returns a working fanout even when the file sink fails.
// Upstream: main startup.
// Downstream: newDailyFileSink.
func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logFanout, error) {
	fanout := newLogFanout(&writerSink{w: console, withTimestamp: true}, nil)
	if cfg.DedupeWindowSeconds > 0 {
		fanout.dedupe = newRepeatLogDeduper(time.Duration(cfg.DedupeWindowSeconds)*time.Second, defaultRepeatLogMaxKeys)
	}
	if !cfg.Enabled {
		return fanout, nil
	}
	sink, err := newDailyFileSink(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return fanout, err
	}
	fanout.setFileSink(sink)
	return fanout, nil
}

// SetConsole swaps the console sink, e.g. to the dashboard system pane.
func (f *logFanout) SetConsole(w io.Writer, withTimestamp bool) {
	if f == nil {
		return
	}
	var sink lineSink
	if w != nil {
		sink = &writerSink{w: w, withTimestamp: withTimestamp}
	}
	f.mu.Lock()
	f.console = sink
	f.mu.Unlock()
}

func (f *logFanout) setFileSink(sink lineSink) {
	f.mu.Lock()
	f.file = sink
	f.mu.Unlock()
}

// SetRolloverHook installs hook on the file sink; a no-op without one.
func (f *logFanout) SetRolloverHook(hook dayRolloverHook) {
	if f == nil {
		return
	}
	f.mu.Lock()
	sink, ok := f.file.(*dailyFileSink)
	f.mu.Unlock()
	if ok {
		sink.SetRolloverHook(hook)
	}
}

func (f *logFanout) Write(p []byte) (int, error) {
	if f == nil {
		return len(p), nil
	}
	f.mu.Lock()
	f.buf = append(f.buf, p...)
	data := f.buf
	var lines []string
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(data[:idx], "\r")))
		data = data[idx+1:]
	}
	// An unterminated line past the cap is flushed as is.
	if len(data) > maxLogBufferBytes {
		if rest := string(bytes.TrimRight(data, "\r")); rest != "" {
			lines = append(lines, rest)
		}
		data = data[:0]
	}
	f.buf = append(f.buf[:0], data...)
	console, file, dedupe := f.console, f.file, f.dedupe
	f.mu.Unlock()

	now := time.Now().UTC()
	for _, line := range lines {
		if screen, ok := connectedScreen(line); ok {
			dedupe.Forget(screen)
		}
		line, ok := dedupe.Process(line)
		if !ok {
			continue
		}
		if console != nil {
			console.WriteLine(line, now)
		}
		if file != nil {
			file.WriteLine(line, now)
		}
	}
	return len(p), nil
}

// WriteFileOnly writes a line to the file sink only, for periodic summaries
// that would clutter the console.
func (f *logFanout) WriteFileOnly(line string, now time.Time) {
	if f == nil {
		return
	}
	f.mu.Lock()
	file := f.file
	f.mu.Unlock()
	if file != nil {
		file.WriteLine(line, now)
	}
}

func (f *logFanout) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	file := f.file
	f.mu.Unlock()
	if file != nil {
		return file.Close()
	}
	return nil
}

func formatLogTimestamp(now time.Time) string {
	return now.UTC().Format(logTimestampLayout)
}

func logFileNameForDate(now time.Time) string {
	return now.UTC().Format(logFileDateLayout) + ".log"
}

func parseLogFileDate(name string) (time.Time, bool) {
	if filepath.Ext(name) != ".log" {
		return time.Time{}, false
	}
	parsed, err := time.ParseInLocation(logFileDateLayout, strings.TrimSuffix(name, ".log"), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func cleanupOldLogs(dir string, now time.Time, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	y, m, d := now.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(retentionDays - 1))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		date, ok := parseLogFileDate(entry.Name())
		if ok && date.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}
