// Package daemon wires the notification pipeline together: protocol requests
// flow through the rules engine and DND gate into the history store, expiry
// timers close entries, and every state change lands on the event hub for
// the panel and popup collaborators.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"notisd/internal/command"
	"notisd/internal/config"
	"notisd/internal/dnd"
	"notisd/internal/events"
	"notisd/internal/expire"
	"notisd/internal/history"
	"notisd/internal/icons"
	"notisd/internal/logging"
	"notisd/internal/notify"
	"notisd/internal/rules"
	"notisd/internal/theme"
	"notisd/internal/watchers"
)

// Server identity reported by get_server_information.
const (
	Version     = "0.3.0"
	ServerName  = "notisd"
	Vendor      = "notisd"
	SpecVersion = "1.2"
)

// Daemon coordinates all daemon-side state and enforces single-instance
// execution.
type Daemon struct {
	cfgStore *config.Store
	logger   *slog.Logger

	store   *history.Store
	db      *history.DB
	expiry  *expire.Scheduler
	dnd     *dnd.Scheduler
	runner  *command.Runner
	board   *watchers.Board
	manager *watchers.Manager
	icons   *icons.Loader
	themes  *theme.Loader
	hub     *events.Hub

	lockPath string
	lock     *flock.Flock

	mu           sync.Mutex
	engine       *rules.Engine
	panelVisible bool
	configPath   string
	startedAt    time.Time
	unsubscribe  func()

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status is the runtime summary answered over the control channel.
type Status struct {
	Running         bool           `json:"running"`
	PID             int            `json:"pid"`
	StartedAt       time.Time      `json:"started_at"`
	ConfigPath      string         `json:"config_path"`
	SocketPath      string         `json:"socket_path"`
	EventSocketPath string         `json:"event_socket_path"`
	DatabasePath    string         `json:"database_path,omitempty"`
	DNDActive       bool           `json:"dnd_active"`
	DNDMode         string         `json:"dnd_mode"`
	PanelVisible    bool           `json:"panel_visible"`
	WatchersPaused  bool           `json:"watchers_paused"`
	Counts          history.Counts `json:"counts"`
}

// New constructs a daemon from a loaded config snapshot.
func New(cfgStore *config.Store, configPath string, logger *slog.Logger) (*Daemon, error) {
	if cfgStore == nil || logger == nil {
		return nil, errors.New("daemon requires config store and logger")
	}
	cfg := cfgStore.Current()

	d := &Daemon{
		cfgStore:   cfgStore,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		configPath: configPath,
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
		hub:        events.NewHub(512),
	}

	d.store = history.New(logger, limitsFromConfig(cfg))
	d.expiry = expire.New(logger, d.onExpire)
	d.store.SetTimerCanceller(d.expiry.Cancel)
	d.dnd = dnd.New(logger, d.onDNDChange)
	if err := d.dnd.ApplyConfig(cfg.DND); err != nil {
		return nil, err
	}
	d.runner = command.NewRunner(logger, command.BudgetFromConfig(cfg.Commands))
	d.board = watchers.NewBoard(d.onWatcherUpdate)
	d.manager = watchers.NewManager(logger, d.runner, d.board)
	d.icons = icons.NewLoader(logger, cfg.Cache.IconBudgetBytes)
	d.themes = theme.NewLoader(logger, cfg.Cache.ThemeBudgetBytes)
	d.engine = rules.New(cfg.Rules, logger)

	return d, nil
}

func limitsFromConfig(cfg *config.Config) history.Limits {
	return history.Limits{
		Capacity:           cfg.History.MaxEntries,
		MaxOpen:            cfg.History.MaxActive,
		TransientToHistory: cfg.History.TransientToHistory,
		DedupWindow:        time.Duration(cfg.History.DedupWindowMs) * time.Millisecond,
	}
}

// Start acquires the instance lock, restores persisted history, and launches
// the background loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another notisd instance is already running")
	}

	cfg := d.cfgStore.Current()
	if cfg.History.Persist {
		db, err := history.OpenDB(cfg.DatabasePath())
		if err != nil {
			// Persistence is a convenience, not a startup gate.
			logging.WarnWithContext(d.logger, "history database unavailable", "history_db_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the state directory or delete the database file"),
				logging.String(logging.FieldImpact, "history will not survive restarts"))
		} else {
			d.db = db
			if err := d.store.AttachDB(db); err != nil {
				logging.WarnWithContext(d.logger, "history restore failed", "history_restore_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "delete the database file to reset"),
					logging.String(logging.FieldImpact, "starting with empty history"))
			}
		}
	}

	if err := theme.EnsureFiles(cfg, d.logger); err != nil {
		logging.WarnWithContext(d.logger, "theme provisioning failed", "theme_provision_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check config directory permissions"),
			logging.String(logging.FieldImpact, "surfaces may render unstyled"))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Lock()
	d.startedAt = time.Now().UTC()
	d.unsubscribe = d.cfgStore.Subscribe(d.onConfigReload)
	d.mu.Unlock()

	d.manager.Start(d.ctx, cfg.Widgets.Watchers)
	// The panel starts hidden; watchers stay suspended until it opens.
	d.manager.Pause()
	go d.dnd.Run(d.ctx)
	go d.historyChangeLoop(d.ctx)

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Int("restored_entries", d.store.Stats().Total))
	return nil
}

// Stop tears down background loops and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Lock()
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	d.mu.Unlock()

	d.manager.Stop()
	d.expiry.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the history database.
func (d *Daemon) Close() error {
	d.Stop()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Running reports whether Start has completed.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Hub exposes the event feed for the event socket server.
func (d *Daemon) Hub() *events.Hub {
	return d.hub
}

// Icons exposes the icon loader for the popup renderer.
func (d *Daemon) Icons() *icons.Loader {
	return d.icons
}

// Themes exposes the stylesheet loader.
func (d *Daemon) Themes() *theme.Loader {
	return d.themes
}

// historyChangeLoop forwards the store's coalesced change signal to the
// event feed.
func (d *Daemon) historyChangeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.store.Changed():
			d.hub.Publish(events.Event{Type: events.TypeHistoryChanged})
		}
	}
}

func (d *Daemon) onExpire(id uint32) {
	if err := d.store.Close(id, notify.ReasonExpired); err != nil {
		// Lost the race against an explicit close; nothing to signal.
		return
	}
	d.hub.Publish(events.Event{
		Type:           events.TypeNotificationClosed,
		NotificationID: id,
		Reason:         notify.ReasonExpired.String(),
	})
}

func (d *Daemon) onDNDChange(active bool, mode dnd.Mode) {
	d.hub.Publish(events.Event{
		Type:      events.TypeDNDChanged,
		DNDActive: active,
		DNDMode:   string(mode),
	})
}

func (d *Daemon) onWatcherUpdate(res watchers.Result) {
	d.hub.Publish(events.Event{
		Type:    events.TypeWatcherUpdated,
		Watcher: res.Name,
		Value:   res.Value,
		Stale:   res.Stale,
	})
}

func (d *Daemon) onConfigReload(cfg *config.Config) {
	d.mu.Lock()
	d.engine = rules.New(cfg.Rules, d.logger)
	d.mu.Unlock()

	if err := d.dnd.ApplyConfig(cfg.DND); err != nil {
		// Load validated the windows already; never expected here.
		d.logger.Warn("dnd windows rejected on reload", logging.Error(err))
	}
	d.store.ApplyLimits(limitsFromConfig(cfg))
	d.manager.ApplyConfig(cfg.Widgets.Watchers)
	d.icons.SetBudget(cfg.Cache.IconBudgetBytes)
	d.themes.SetBudget(cfg.Cache.ThemeBudgetBytes)

	d.hub.Publish(events.Event{Type: events.TypeConfigReloaded})
}

func (d *Daemon) currentEngine() *rules.Engine {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine
}
