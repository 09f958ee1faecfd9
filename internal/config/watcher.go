package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"notisd/internal/logging"
)

// ReloadWatcher watches the config file and theme stylesheets for changes and
// hot-swaps the live snapshot. Rapid successive writes are debounced into one
// reload. A failed parse or validation keeps the previous snapshot live.
type ReloadWatcher struct {
	store      *Store
	configPath string
	logger     *slog.Logger

	mu        sync.Mutex
	fsw       *fsnotify.Watcher
	debounce  *time.Timer
	running   bool
	lastError error
}

// NewReloadWatcher constructs a watcher for the resolved config path.
func NewReloadWatcher(store *Store, configPath string, logger *slog.Logger) *ReloadWatcher {
	return &ReloadWatcher{
		store:      store,
		configPath: configPath,
		logger:     logging.NewComponentLogger(logger, "config-watcher"),
	}
}

// Start begins watching the config directory. A watch failure is non-fatal;
// the daemon keeps running with the startup snapshot.
func (w *ReloadWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logging.WarnWithContext(w.logger, "file watching unavailable; config changes require restart", "config_watch_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check inotify limits"),
			logging.String(logging.FieldImpact, "hot reload disabled"))
		return nil
	}

	dir := filepath.Dir(w.configPath)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		logging.WarnWithContext(w.logger, "cannot watch config directory", "config_watch_failed",
			logging.Error(err),
			logging.String("dir", dir),
			logging.String(logging.FieldErrorHint, "ensure the config directory exists and is readable"),
			logging.String(logging.FieldImpact, "hot reload disabled"))
		return nil
	}

	w.fsw = fsw
	w.running = true
	go w.loop(ctx, fsw)

	w.logger.Info("config watcher started", logging.String("dir", dir))
	return nil
}

// Stop shuts down the watcher.
func (w *ReloadWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
		w.fsw = nil
	}
	w.running = false
}

// LastError reports the most recent reload failure, or nil after a clean
// reload.
func (w *ReloadWatcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

func (w *ReloadWatcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "config watch error", "config_watch_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "restart the daemon if hot reload stops working"),
				logging.String(logging.FieldImpact, "a config change may have been missed"))
		}
	}
}

func (w *ReloadWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	if name == filepath.Base(w.configPath) {
		return true
	}
	return strings.HasSuffix(strings.ToLower(name), ".css")
}

func (w *ReloadWatcher) scheduleReload() {
	debounce := time.Duration(defaultReloadDebounceMs) * time.Millisecond
	if cfg := w.store.Current(); cfg != nil && cfg.General.ReloadDebounceMs > 0 {
		debounce = time.Duration(cfg.General.ReloadDebounceMs) * time.Millisecond
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounce, w.reload)
}

func (w *ReloadWatcher) reload() {
	cfg, _, _, err := Load(w.configPath)
	if err != nil {
		w.mu.Lock()
		w.lastError = err
		w.mu.Unlock()
		logging.WarnWithContext(w.logger, "config reload rejected; previous snapshot stays live", "config_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the config file and save again"),
			logging.String(logging.FieldImpact, "changes not applied"))
		return
	}

	w.mu.Lock()
	w.lastError = nil
	w.mu.Unlock()

	w.store.Replace(cfg)
	w.logger.Info("config reloaded",
		logging.String(logging.FieldEventType, "config_reloaded"),
		logging.Int("rules", len(cfg.Rules)),
		logging.Int("watchers", len(cfg.Widgets.Watchers)))
}
