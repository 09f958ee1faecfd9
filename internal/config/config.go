package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for daemon state and sockets.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	RuntimeDir string `toml:"runtime_dir"`
	LogDir     string `toml:"log_dir"`
}

// General contains top-level daemon behavior settings.
type General struct {
	DefaultTimeoutMs  int  `toml:"default_timeout_ms"`
	CriticalTimeoutMs int  `toml:"critical_timeout_ms"`
	SoundEnabled      bool `toml:"sound_enabled"`
	BodyMarkup        bool `toml:"body_markup"`
	ReloadDebounceMs  int  `toml:"reload_debounce_ms"`
}

// History contains retention policy for the notification store.
type History struct {
	MaxEntries         int  `toml:"max_entries"`
	MaxActive          int  `toml:"max_active"`
	TransientToHistory bool `toml:"transient_to_history"`
	DedupWindowMs      int  `toml:"dedup_window_ms"`
	Persist            bool `toml:"persist"`
}

// DNDWindow defines one scheduled do-not-disturb window. Days are lowercase
// three-letter names; an empty list means every day. Windows may span
// midnight (end before start).
type DNDWindow struct {
	Start string   `toml:"start"`
	End   string   `toml:"end"`
	Days  []string `toml:"days"`
}

// DND contains scheduled do-not-disturb configuration.
type DND struct {
	Windows []DNDWindow `toml:"windows"`
}

// RuleMatch holds the predicates of a rule. Empty fields match anything.
// Patterns are case-insensitive substrings by default; patterns containing
// glob metacharacters (* ? [..]) match the whole field, and the "re:" prefix
// selects regular-expression matching. Compiled forms are populated during
// Validate.
type RuleMatch struct {
	App      string `toml:"app"`
	Summary  string `toml:"summary"`
	Body     string `toml:"body"`
	Category string `toml:"category"`
	Urgency  string `toml:"urgency"`

	CompiledApp      *regexp.Regexp `toml:"-"`
	CompiledSummary  *regexp.Regexp `toml:"-"`
	CompiledBody     *regexp.Regexp `toml:"-"`
	CompiledCategory *regexp.Regexp `toml:"-"`
}

// Rule pairs a match predicate with the actions applied when it matches.
// Suppress is terminal; the remaining actions accumulate across rules.
type Rule struct {
	Name         string    `toml:"name"`
	Match        RuleMatch `toml:"match"`
	Suppress     bool      `toml:"suppress"`
	ForceUrgency string    `toml:"force_urgency"`
	MuteSound    bool      `toml:"mute_sound"`
	DNDExempt    bool      `toml:"dnd_exempt"`
	SetSummary   string    `toml:"set_summary"`
	SetBody      string    `toml:"set_body"`
	SetTimeoutMs *int      `toml:"set_timeout_ms"`
}

// Commands contains the external command execution budget.
type Commands struct {
	Workers         int `toml:"workers"`
	FastTimeoutMs   int `toml:"fast_timeout_ms"`
	SlowTimeoutMs   int `toml:"slow_timeout_ms"`
	ActionTimeoutMs int `toml:"action_timeout_ms"`
	JitterMs        int `toml:"jitter_ms"`
}

// WatcherSpec configures one status watcher. StateCmd produces the current
// value; WatchCmd, when set, is a long-running process whose stdout lines
// trigger refreshes; Subsystem, when set, subscribes to udev events for that
// subsystem instead of polling.
type WatcherSpec struct {
	Name       string `toml:"name"`
	StateCmd   string `toml:"state_cmd"`
	WatchCmd   string `toml:"watch_cmd"`
	Subsystem  string `toml:"subsystem"`
	IntervalMs int    `toml:"interval_ms"`
	TimeoutMs  int    `toml:"timeout_ms"`
	Enabled    bool   `toml:"enabled"`
}

// Widgets contains panel widget refresh cadence and watcher definitions.
type Widgets struct {
	RefreshFastMs int           `toml:"refresh_fast_ms"`
	RefreshSlowMs int           `toml:"refresh_slow_ms"`
	Watchers      []WatcherSpec `toml:"watchers"`
}

// Theme names the stylesheet assets resolved relative to the config directory.
type Theme struct {
	BaseCSS        string `toml:"base_css"`
	PopupCSS       string `toml:"popup_css"`
	PanelCSS       string `toml:"panel_css"`
	WidgetsCSS     string `toml:"widgets_css"`
	WriteIfMissing bool   `toml:"write_if_missing"`
}

// Cache contains byte budgets for the decode caches.
type Cache struct {
	IconBudgetBytes  int64 `toml:"icon_budget_bytes"`
	ThemeBudgetBytes int64 `toml:"theme_budget_bytes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the daemon.
type Config struct {
	Paths    Paths   `toml:"paths"`
	General  General `toml:"general"`
	History  History `toml:"history"`
	DND      DND     `toml:"dnd"`
	Rules    []Rule  `toml:"rules"`
	Commands Commands `toml:"commands"`
	Widgets  Widgets `toml:"widgets"`
	Theme    Theme   `toml:"theme"`
	Cache    Cache   `toml:"cache"`
	Logging  Logging `toml:"logging"`

	// ConfigDir is the directory the config file was resolved in. Theme
	// assets resolve relative to it.
	ConfigDir string `toml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); base != "" {
		return filepath.Join(base, "notisd", "config.toml"), nil
	}
	return expandPath("~/.config/notisd/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and rule patterns compiled. A missing
// file yields defaults.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ConfigDir = filepath.Dir(resolvedPath)

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.RuntimeDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "notisd.sock")
}

// EventSocketPath returns the event feed socket location.
func (c *Config) EventSocketPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "events.sock")
}

// DatabasePath returns the history database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "notisd.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
