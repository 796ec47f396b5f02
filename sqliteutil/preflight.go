// Package sqliteutil holds SQLite helpers shared by on-disk stores.
package sqliteutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PreflightResult reports the outcome of a SQLite preflight check.
type PreflightResult struct {
	Healthy        bool   // No issues detected; safe to proceed.
	Quarantined    bool   // The database was renamed so startup can use a fresh file.
	QuarantinePath string // Path of the quarantined main file.
	Elapsed        time.Duration
	CheckError     error
}

var sidecarSuffixes = []string{"-wal", "-shm", "-journal"}

// Preflight runs a bounded quick_check on an existing database before the
// store opens it. A missing file is healthy. A file that fails the check is
// renamed, with its sidecars, to a timestamped .bad- path.
func Preflight(ctx context.Context, path string, timeout time.Duration, logf func(string, ...any)) (PreflightResult, error) {
	var res PreflightResult
	if strings.TrimSpace(path) == "" {
		return res, errors.New("preflight: empty path")
	}
	if logf == nil {
		logf = log.Printf
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return res, fmt.Errorf("preflight: ensure dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		res.Healthy = true
		return res, nil
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return res, fmt.Errorf("preflight: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	res.CheckError = quickCheck(ctx, db)
	_ = db.Close()
	res.Elapsed = time.Since(start)

	if res.CheckError == nil {
		res.Healthy = true
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("preflight: %s timed out after %s", path, timeout)
	}

	dest, err := quarantine(path, time.Now().UTC())
	if err != nil {
		return res, fmt.Errorf("preflight: quarantine failed: %w (quick_check=%v)", err, res.CheckError)
	}
	res.Quarantined = true
	res.QuarantinePath = dest
	logf("SQLite preflight: %s failed quick_check (%v); quarantined to %s", path, res.CheckError, dest)
	return res, nil
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

func quarantine(path string, now time.Time) (string, error) {
	suffix := ".bad-" + now.Format("20060102T150405Z")
	if err := os.Rename(path, path+suffix); err != nil {
		return "", err
	}
	for _, s := range sidecarSuffixes {
		side := path + s
		if _, err := os.Stat(side); err != nil {
			continue
		}
		if err := os.Rename(side, side+suffix); err != nil {
			return "", err
		}
	}
	return path + suffix, nil
}
