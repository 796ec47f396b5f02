package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"trackscreen/assets"
	"trackscreen/carousel"
	"trackscreen/config"
	"trackscreen/conn"
	"trackscreen/display"
	"trackscreen/imageprobe"
	"trackscreen/loop"
	"trackscreen/nowplaying"
	"trackscreen/recorder"
	"trackscreen/screen"
	"trackscreen/stats"
	"trackscreen/ui"

	"golang.org/x/term"
)

// Version is the client release shown at startup.
const Version = "1.4.0"

// Purpose: Report whether stdout is a TTY for UI gating.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: main UI selection.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Load configuration from the env override or the default file.
// Key aspects: A missing default file falls back to built-in defaults; an
// explicitly named file must exist.
// Upstream: main startup.
// Downstream: config.Load and config.Default.
func loadConfig() (*config.Config, error) {
	path := config.ResolvePath("")
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == config.DefaultPath && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

// uiChoice resolves the configured mode against the terminal.
func uiChoice(mode string, tty bool) (string, string) {
	switch mode {
	case "headless":
		return "headless", "mode=headless"
	case "dashboard":
		if !tty {
			return "headless", "dashboard requires an interactive console"
		}
		return "dashboard", ""
	default:
		if tty {
			return "dashboard", ""
		}
		return "headless", "stdout is not a terminal"
	}
}

func surfaceOptions(cfg *config.Config) ui.Options {
	return ui.Options{
		RefreshInterval: time.Duration(cfg.UI.RefreshMS) * time.Millisecond,
		FadeDuration:    time.Duration(cfg.Thumbnails.FadeMS) * time.Millisecond,
		FadeType:        cfg.Thumbnails.FadeType,
	}
}

// screenOptions maps one configured screen onto session options.
func screenOptions(cfg *config.Config, sc config.ScreenConfig, tracker *stats.Tracker, observers []display.Observer) (screen.Options, error) {
	kind, err := screen.ParseKind(sc.Kind)
	if err != nil {
		return screen.Options{}, err
	}
	return screen.Options{
		ID:             sc.ID,
		Kind:           kind,
		URL:            conn.Endpoint(cfg.Server.Host, cfg.Server.Port, cfg.Server.Path),
		ReconnectDelay: cfg.ReconnectDelay(),
		IconBase:       cfg.Icons.Path,
		Buster:         assets.ClockBuster(nil),
		Carousel: carousel.Options{
			Interval:     cfg.Interval(),
			Placeholder:  cfg.Thumbnails.Placeholder,
			DefaultHints: carousel.ParseHints(cfg.Thumbnails.Size),
		},
		Observers: observers,
		Stats:     tracker,
	}, nil
}

// Purpose: Program entrypoint; wires configuration, logging, UI and screens.
// Key aspects: One session per configured screen; graceful shutdown on signal.
// Upstream: OS process start.
// Downstream: screen.Session, ui surfaces, recorder and nowplaying observers.
func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	fanout, logErr := setupLogging(cfg.Logging, os.Stdout)
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()
	if logErr != nil {
		log.Printf("Logging: file sink disabled: %v", logErr)
	}
	log.Printf("Loaded configuration from %s", cfg.LoadedFrom)

	choice, reason := uiChoice(cfg.UI.Mode, isStdoutTTY())
	var surface ui.Surface
	if choice == "dashboard" {
		dash := ui.NewDashboard(surfaceOptions(cfg))
		dash.WaitReady()
		surface = dash
		fanout.SetConsole(dash.SystemWriter(), true)
		surface.SetStats([]string{"Initializing..."})
	} else {
		log.Printf("UI disabled (%s)", reason)
		surface = ui.NewHeadless(surfaceOptions(cfg))
		cfg.Print()
	}
	defer surface.Stop()

	log.Printf("Track screens v%s starting...", Version)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var observers []display.Observer
	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec, err = recorder.Open(cfg.Recorder.DBPath, cfg.Recorder.MaxRows)
		if err != nil {
			log.Printf("Warning: now-playing history disabled: %v", err)
		} else {
			observers = append(observers, rec)
			log.Printf("Recording now-playing history to %s", cfg.Recorder.DBPath)
		}
	}
	if cfg.Output.Enabled {
		out, err := nowplaying.New(cfg.Output.Dir, cfg.Output.OneFile)
		if err != nil {
			log.Printf("Warning: text outputs disabled: %v", err)
		} else {
			observers = append(observers, out)
		}
	}

	tracker := stats.NewTracker()
	httpBase := imageprobe.HTTPBase(cfg.Server.Host, cfg.Server.Port)
	dialer := conn.WebsocketDialer{HandshakeTimeout: 10 * time.Second, ReadLimit: 1 << 20}

	var wg sync.WaitGroup
	for _, sc := range cfg.Screens {
		opts, err := screenOptions(cfg, sc, tracker, observers)
		if err != nil {
			log.Fatalf("Screen %s: %v", sc.ID, err)
		}
		view := surface.Screen(opts.ID, string(opts.Kind))
		opts.OnState = func(_ string, st conn.State) { view.SetConnState(st.String()) }
		session := screen.New(opts, screen.Deps{
			Dialer: dialer,
			Text:   view,
			Images: view,
			Loader: func(p loop.Poster) carousel.Loader {
				prober, err := imageprobe.New(ctx, httpBase, p)
				if err != nil {
					log.Printf("Screen[%s]: image sizes unavailable: %v", opts.ID, err)
					return nil
				}
				return prober
			},
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			session.Run(ctx)
		}()
		log.Printf("Screen[%s]: %s screen on %s", opts.ID, opts.Kind, opts.URL)
	}

	statsInterval := time.Duration(cfg.UI.StatsMS) * time.Millisecond
	go displayStats(ctx, statsInterval, tracker, surface)
	fanout.SetRolloverHook(func(prev time.Time, newPath string) {
		for _, line := range tracker.SnapshotLines(time.Now()) {
			fanout.WriteFileOnly("Stats: "+line, time.Now())
		}
		log.Printf("Logging: %s closed, now writing %s", prev.Format("02-Jan-2006"), newPath)
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.Println("Screens are running. Press Ctrl+C to stop.")

	sig := <-sigChan
	log.Printf("Received signal: %v", sig)
	log.Println("Shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		log.Println("Timed out waiting for screens to stop")
	}
	if rec != nil {
		if err := rec.Close(); err != nil {
			log.Printf("Recorder: close failed: %v", err)
		}
	}
	log.Println("Shutdown complete")
}

// Purpose: Periodically push stats to the UI surface.
// Key aspects: Dashboard gets every tick; headless output is throttled to changes.
// Upstream: main startup.
// Downstream: stats.Tracker.SnapshotLines and ui.Surface.SetStats.
func displayStats(ctx context.Context, interval time.Duration, tracker *stats.Tracker, surface ui.Surface) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	_, headless := surface.(*ui.Headless)
	if headless && interval < 30*time.Second {
		ticker.Reset(30 * time.Second)
	}
	last := ""
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			lines := tracker.SnapshotLines(now)
			if headless {
				// Uptime always changes; compare only the per-screen lines.
				key := strings.Join(lines[1:], "\n")
				if key == last {
					continue
				}
				last = key
			}
			surface.SetStats(lines)
		}
	}
}
