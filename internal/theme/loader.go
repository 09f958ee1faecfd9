// Package theme resolves and loads the four stylesheet assets. Filenames
// come from config and resolve relative to the config directory; missing
// files are provisioned from the embedded defaults when the config allows
// it.
package theme

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"notisd/internal/cache"
	"notisd/internal/config"
	"notisd/internal/logging"
)

//go:embed assets/*.css
var defaultAssets embed.FS

// Role names one of the four stylesheet slots.
type Role string

const (
	RoleBase    Role = "base"
	RolePopup   Role = "popup"
	RolePanel   Role = "panel"
	RoleWidgets Role = "widgets"
)

// Roles lists every slot in load order; base first so later sheets override.
var Roles = []Role{RoleBase, RolePopup, RolePanel, RoleWidgets}

// Loader loads validated stylesheet text through the byte cache.
type Loader struct {
	logger *slog.Logger
	cache  *cache.Cache[string]
}

// NewLoader builds a loader with the given resident byte budget.
func NewLoader(logger *slog.Logger, budgetBytes int64) *Loader {
	return &Loader{
		logger: logging.NewComponentLogger(logger, "theme"),
		cache:  cache.New[string]("theme", budgetBytes, logger),
	}
}

// SetBudget applies a new byte budget from a config reload.
func (l *Loader) SetBudget(budgetBytes int64) {
	l.cache.SetBudget(budgetBytes)
}

// Path resolves a role's stylesheet location for a config snapshot.
func Path(cfg *config.Config, role Role) string {
	var name string
	switch role {
	case RolePopup:
		name = cfg.Theme.PopupCSS
	case RolePanel:
		name = cfg.Theme.PanelCSS
	case RoleWidgets:
		name = cfg.Theme.WidgetsCSS
	default:
		name = cfg.Theme.BaseCSS
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.ConfigDir, name)
}

// EnsureFiles writes the embedded default for any missing stylesheet, when
// the config opts in. Existing files are never touched.
func EnsureFiles(cfg *config.Config, logger *slog.Logger) error {
	if !cfg.Theme.WriteIfMissing {
		return nil
	}
	for _, role := range Roles {
		path := Path(cfg, role)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("stat stylesheet %q: %w", path, err)
		}

		data, err := defaultAssets.ReadFile("assets/" + string(role) + ".css")
		if err != nil {
			return fmt.Errorf("embedded default for %s: %w", role, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create theme directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write default stylesheet %q: %w", path, err)
		}
		if logger != nil {
			logger.Info("default stylesheet written",
				logging.String(logging.FieldEventType, "theme_provisioned"),
				logging.String("path", path))
		}
	}
	return nil
}

// Load returns the validated stylesheet text for one role. A file that fails
// validation is a compute error and is cached negatively.
func (l *Loader) Load(cfg *config.Config, role Role) (string, error) {
	path := Path(cfg, role)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat stylesheet %q: %w", path, err)
	}
	key := path + "|" + strconv.FormatInt(info.ModTime().UnixNano(), 10)

	return l.cache.GetOrCompute(key, func() (string, int64, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", 0, err
		}
		text := string(data)
		if err := validate(text); err != nil {
			return "", 0, fmt.Errorf("stylesheet %q: %w", path, err)
		}
		return text, int64(len(text)), nil
	})
}

// LoadAll concatenates every role's sheet in order. Sheets that fail to load
// are skipped so one bad file cannot blank the whole theme; the first error
// is reported alongside the usable remainder.
func (l *Loader) LoadAll(cfg *config.Config) (string, error) {
	var (
		b        strings.Builder
		firstErr error
	)
	for _, role := range Roles {
		text, err := l.Load(cfg, role)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String(), firstErr
}

// validate applies cheap structural checks: UTF-8 text with balanced braces.
// Full CSS parsing belongs to the renderer; this catches truncated writes
// and binary garbage before they are cached.
func validate(text string) error {
	depth := 0
	for i, r := range text {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced '}' at byte %d", i)
			}
		case 0:
			return fmt.Errorf("NUL byte at %d, not a stylesheet", i)
		}
	}
	if depth != 0 {
		return fmt.Errorf("%d unclosed '{' blocks", depth)
	}
	return nil
}
