package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"trackscreen/carousel"
	"trackscreen/config"
	"trackscreen/screen"
	"trackscreen/stats"
)

func TestUIChoice(t *testing.T) {
	cases := []struct {
		mode string
		tty  bool
		want string
	}{
		{"auto", true, "dashboard"},
		{"auto", false, "headless"},
		{"dashboard", true, "dashboard"},
		{"dashboard", false, "headless"},
		{"headless", true, "headless"},
	}
	for _, tc := range cases {
		got, reason := uiChoice(tc.mode, tc.tty)
		if got != tc.want {
			t.Fatalf("mode=%s tty=%v: expected %s, got %s", tc.mode, tc.tty, tc.want, got)
		}
		if got == "headless" && reason == "" {
			t.Fatalf("mode=%s tty=%v: expected a reason for headless", tc.mode, tc.tty)
		}
	}
}

func TestScreenOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "tray.local"
	cfg.Thumbnails.Size = "x200"
	tracker := stats.NewTracker()

	opts, err := screenOptions(cfg, config.ScreenConfig{ID: "art", Kind: "thumbnails"}, tracker, nil)
	if err != nil {
		t.Fatalf("screenOptions: %v", err)
	}
	if opts.ID != "art" || opts.Kind != screen.KindThumbnails {
		t.Fatalf("unexpected identity %s/%s", opts.ID, opts.Kind)
	}
	if opts.URL != "ws://tray.local:3489/startport" {
		t.Fatalf("unexpected url %s", opts.URL)
	}
	if opts.ReconnectDelay != 3*time.Second || opts.Carousel.Interval != 5*time.Second {
		t.Fatalf("unexpected timings %s %s", opts.ReconnectDelay, opts.Carousel.Interval)
	}
	if opts.Carousel.DefaultHints != (carousel.Hints{Height: 200}) {
		t.Fatalf("unexpected hints %+v", opts.Carousel.DefaultHints)
	}
	if opts.Buster == nil || opts.Stats != tracker {
		t.Fatalf("buster and tracker must be wired")
	}
}

func TestScreenOptionsRejectsUnknownKind(t *testing.T) {
	if _, err := screenOptions(config.Default(), config.ScreenConfig{ID: "x", Kind: "settings"}, nil, nil); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Setenv(config.EnvPath, "")
	chdirForTest(t, t.TempDir())

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LoadedFrom != "built-in defaults" {
		t.Fatalf("expected built-in defaults, got %s", cfg.LoadedFrom)
	}
}

func TestLoadConfigRequiresExplicitFile(t *testing.T) {
	t.Setenv(config.EnvPath, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error for missing env config")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screens.yaml")
	if err := os.WriteFile(path, []byte("screens:\n  - kind: game\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(config.EnvPath, path)
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.Screens) != 1 || cfg.Screens[0].ID != "game" {
		t.Fatalf("unexpected screens %+v", cfg.Screens)
	}
}

// chdirForTest mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	})
}
