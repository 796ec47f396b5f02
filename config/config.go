package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath overrides the config location when set.
const EnvPath = "TRACKSCREEN_CONFIG"

// DefaultPath is used when neither a flag nor EnvPath names a file.
const DefaultPath = "trackscreen.yaml"

// Config represents the complete screen client configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Screens    []ScreenConfig   `yaml:"screens"`
	Thumbnails ThumbnailsConfig `yaml:"thumbnails"`
	Icons      IconsConfig      `yaml:"icons"`
	UI         UIConfig         `yaml:"ui"`
	Logging    LoggingConfig    `yaml:"logging"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Output     OutputConfig     `yaml:"output"`

	LoadedFrom string `yaml:"-"`
}

// ServerConfig locates the push server.
type ServerConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Path             string `yaml:"path"`
	ReconnectDelayMS int    `yaml:"reconnect_delay_ms"`
}

// ScreenConfig declares one screen. Kind is game, system, all or thumbnails;
// ID defaults to the kind.
type ScreenConfig struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
}

// ThumbnailsConfig tunes the carousel.
type ThumbnailsConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	Size            string `yaml:"size"`
	Placeholder     string `yaml:"placeholder"`
	FadeMS          int    `yaml:"fade_ms"`
	FadeType        string `yaml:"fade_type"`
}

// IconsConfig locates system icons.
type IconsConfig struct {
	Path string `yaml:"path"`
}

// UIConfig selects the console surface: "auto" (dashboard on a TTY),
// "dashboard" or "headless".
type UIConfig struct {
	Mode      string `yaml:"mode"`
	RefreshMS int    `yaml:"refresh_ms"`
	StatsMS   int    `yaml:"stats_ms"`
}

// LoggingConfig contains the optional daily log file sink.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`

	// DedupeWindowSeconds collapses repeated reconnect and image-fault
	// lines; negative disables it.
	DedupeWindowSeconds int `yaml:"dedupe_window_seconds"`
}

// RecorderConfig controls the SQLite now-playing history.
type RecorderConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
	MaxRows int    `yaml:"max_rows"`
}

// OutputConfig controls the text file outputs for overlays.
type OutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	OneFile bool   `yaml:"one_file"`
}

var validKinds = map[string]bool{"game": true, "system": true, "all": true, "thumbnails": true}

var validUIModes = map[string]bool{"auto": true, "dashboard": true, "headless": true}

var validFadeTypes = map[string]bool{"linear": true, "ease": true, "ease-in": true, "ease-out": true, "ease-in-out": true}

// Load reads configuration from a YAML file, or from every *.yaml/*.yml file
// in a directory merged in name order, then applies defaults and validates.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		files, err = yamlFiles(path)
		if err != nil {
			return nil, err
		}
	}

	var cfg Config
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", filepath.Base(file), err)
		}
	}
	cfg.LoadedFrom = path
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{LoadedFrom: "built-in defaults"}
	cfg.normalize()
	return cfg
}

// ResolvePath picks the config location: explicit flag, then EnvPath, then
// DefaultPath.
func ResolvePath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(EnvPath)); env != "" {
		return env
	}
	return DefaultPath
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no yaml files in config dir %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

func (c *Config) normalize() {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3489
	}
	if strings.TrimSpace(c.Server.Path) == "" {
		c.Server.Path = "/startport"
	}
	if c.Server.ReconnectDelayMS == 0 {
		c.Server.ReconnectDelayMS = 3000
	}
	if len(c.Screens) == 0 {
		c.Screens = []ScreenConfig{{Kind: "all"}, {Kind: "thumbnails"}}
	}
	for i := range c.Screens {
		s := &c.Screens[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			s.ID = s.Kind
		}
	}
	if c.Thumbnails.IntervalSeconds == 0 {
		c.Thumbnails.IntervalSeconds = 5
	}
	if c.Thumbnails.Placeholder == "" {
		c.Thumbnails.Placeholder = "/theme/default/noimage.png"
	}
	if c.Thumbnails.FadeMS == 0 {
		c.Thumbnails.FadeMS = 500
	}
	c.Thumbnails.FadeType = strings.ToLower(strings.TrimSpace(c.Thumbnails.FadeType))
	if c.Thumbnails.FadeType == "" {
		c.Thumbnails.FadeType = "ease-out"
	}
	if c.Icons.Path == "" {
		c.Icons.Path = "/systems/"
	}
	c.UI.Mode = strings.ToLower(strings.TrimSpace(c.UI.Mode))
	if c.UI.Mode == "" {
		c.UI.Mode = "auto"
	}
	if c.UI.RefreshMS == 0 {
		c.UI.RefreshMS = 250
	}
	if c.UI.StatsMS == 0 {
		c.UI.StatsMS = 1000
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = filepath.Join("data", "logs")
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = 7
	}
	if c.Logging.DedupeWindowSeconds == 0 {
		c.Logging.DedupeWindowSeconds = 60
	}
	if c.Recorder.DBPath == "" {
		c.Recorder.DBPath = filepath.Join("data", "history.db")
	}
	if c.Recorder.MaxRows == 0 {
		c.Recorder.MaxRows = 5000
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "output"
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ReconnectDelayMS < 0 {
		errs = append(errs, fmt.Errorf("server.reconnect_delay_ms must be >= 0, got %d", c.Server.ReconnectDelayMS))
	}
	seen := make(map[string]bool, len(c.Screens))
	for i, s := range c.Screens {
		if !validKinds[s.Kind] {
			errs = append(errs, fmt.Errorf("screens[%d].kind %q must be one of game, system, all, thumbnails", i, s.Kind))
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("screens[%d].id %q is duplicated", i, s.ID))
		}
		seen[s.ID] = true
	}
	if c.Thumbnails.IntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("thumbnails.interval_seconds must be > 0, got %d", c.Thumbnails.IntervalSeconds))
	}
	if c.Thumbnails.FadeMS < 0 {
		errs = append(errs, fmt.Errorf("thumbnails.fade_ms must be >= 0, got %d", c.Thumbnails.FadeMS))
	}
	if !validFadeTypes[c.Thumbnails.FadeType] {
		errs = append(errs, fmt.Errorf("thumbnails.fade_type %q is not a CSS timing keyword", c.Thumbnails.FadeType))
	}
	if !validUIModes[c.UI.Mode] {
		errs = append(errs, fmt.Errorf("ui.mode %q must be auto, dashboard or headless", c.UI.Mode))
	}
	if c.UI.RefreshMS < 0 || c.UI.StatsMS < 0 {
		errs = append(errs, errors.New("ui.refresh_ms and ui.stats_ms must be >= 0"))
	}
	if c.Logging.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("logging.retention_days must be >= 0, got %d", c.Logging.RetentionDays))
	}
	if c.Recorder.MaxRows < 0 {
		errs = append(errs, fmt.Errorf("recorder.max_rows must be > 0, got %d", c.Recorder.MaxRows))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config %s: %w", c.LoadedFrom, errors.Join(errs...))
	}
	return nil
}

// ReconnectDelay returns the fixed reconnect delay.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Server.ReconnectDelayMS) * time.Millisecond
}

// Interval returns the thumbnail rotation interval.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Thumbnails.IntervalSeconds) * time.Second
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Server: ws://%s:%d%s (reconnect %dms)\n", c.Server.Host, c.Server.Port, c.Server.Path, c.Server.ReconnectDelayMS)
	ids := make([]string, 0, len(c.Screens))
	for _, s := range c.Screens {
		ids = append(ids, s.ID+"="+s.Kind)
	}
	fmt.Printf("Screens: %s\n", strings.Join(ids, ", "))
	size := c.Thumbnails.Size
	if size == "" {
		size = "natural"
	}
	fmt.Printf("Thumbnails: every %ds, size %s, fade %dms %s\n", c.Thumbnails.IntervalSeconds, size, c.Thumbnails.FadeMS, c.Thumbnails.FadeType)
	if c.Recorder.Enabled {
		fmt.Printf("Recorder: %s (max %d rows)\n", c.Recorder.DBPath, c.Recorder.MaxRows)
	}
	if c.Output.Enabled {
		mode := "game.txt + console.txt"
		if c.Output.OneFile {
			mode = "output.txt"
		}
		fmt.Printf("Output: %s (%s)\n", c.Output.Dir, mode)
	}
}
