package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultStateDir          = "~/.local/share/notisd"
	defaultLogDir            = "~/.local/share/notisd/logs"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultTimeoutMs         = 5000
	defaultCriticalTimeoutMs = 0
	defaultReloadDebounceMs  = 250
	defaultHistoryMaxEntries = 200
	defaultHistoryMaxActive  = 500
	defaultDedupWindowMs     = 2000
	defaultCommandWorkers    = 2
	defaultFastTimeoutMs     = 350
	defaultSlowTimeoutMs     = 800
	defaultActionTimeoutMs   = 1200
	defaultJitterMs          = 200
	defaultRefreshFastMs     = 1000
	defaultRefreshSlowMs     = 3000
	defaultBaseCSS           = "base.css"
	defaultPopupCSS          = "popup.css"
	defaultPanelCSS          = "panel.css"
	defaultWidgetsCSS        = "widgets.css"
	defaultIconBudgetBytes   = 16 << 20
	defaultThemeBudgetBytes  = 1 << 20
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			RuntimeDir: defaultRuntimeDir(),
			LogDir:     defaultLogDir,
		},
		General: General{
			DefaultTimeoutMs:  defaultTimeoutMs,
			CriticalTimeoutMs: defaultCriticalTimeoutMs,
			SoundEnabled:      true,
			BodyMarkup:        true,
			ReloadDebounceMs:  defaultReloadDebounceMs,
		},
		History: History{
			MaxEntries:    defaultHistoryMaxEntries,
			MaxActive:     defaultHistoryMaxActive,
			DedupWindowMs: defaultDedupWindowMs,
			Persist:       true,
		},
		Commands: Commands{
			Workers:         defaultCommandWorkers,
			FastTimeoutMs:   defaultFastTimeoutMs,
			SlowTimeoutMs:   defaultSlowTimeoutMs,
			ActionTimeoutMs: defaultActionTimeoutMs,
			JitterMs:        defaultJitterMs,
		},
		Widgets: Widgets{
			RefreshFastMs: defaultRefreshFastMs,
			RefreshSlowMs: defaultRefreshSlowMs,
		},
		Theme: Theme{
			BaseCSS:        defaultBaseCSS,
			PopupCSS:       defaultPopupCSS,
			PanelCSS:       defaultPanelCSS,
			WidgetsCSS:     defaultWidgetsCSS,
			WriteIfMissing: true,
		},
		Cache: Cache{
			IconBudgetBytes:  defaultIconBudgetBytes,
			ThemeBudgetBytes: defaultThemeBudgetBytes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultRuntimeDir() string {
	if base := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); base != "" {
		return filepath.Join(base, "notisd")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("notisd-%d", os.Getuid()))
}
