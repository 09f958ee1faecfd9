package daemon

import (
	"fmt"
	"os"
	"time"

	"notisd/internal/events"
	"notisd/internal/expire"
	"notisd/internal/history"
	"notisd/internal/logging"
	"notisd/internal/notify"
	"notisd/internal/watchers"
)

// Notify is the protocol entry point. The raw request is parsed, run through
// the rules engine, gated by DND, and stored. The returned id is valid even
// for suppressed or muted notifications.
func (d *Daemon) Notify(app string, replaces uint32, icon, summary, body string, actions []string, hints map[string]any, timeoutMs int32) (uint32, error) {
	n, err := notify.Build(app, replaces, icon, summary, body, actions, hints, timeoutMs)
	if err != nil {
		return 0, err
	}

	verdict := d.currentEngine().Evaluate(n)
	if verdict.Suppress {
		// Answer with a fresh id but leave no record and raise no event.
		id := d.store.AllocateID()
		d.logger.Debug("notification suppressed by rule",
			logging.Uint64(logging.FieldNotificationID, uint64(id)),
			logging.String("app", n.App))
		return id, nil
	}

	cfg := d.cfgStore.Current()
	present := d.dnd.ShouldPresent(n, verdict.DNDExempt)
	id, outcome := d.store.InsertOrReplace(n, present)

	if present {
		d.expiry.Schedule(id, expire.ResolveTimeout(n, cfg.General))
		d.hub.Publish(events.Event{
			Type:           events.TypeNotificationPosted,
			NotificationID: id,
		})
	}

	d.logger.Info("notification accepted",
		logging.String(logging.FieldEventType, "notification_accepted"),
		logging.Uint64(logging.FieldNotificationID, uint64(id)),
		logging.String("app", n.App),
		logging.String("summary", logging.BodySnippet(n.Summary)),
		logging.String("urgency", n.Urgency.String()),
		logging.Bool("presented", present),
		logging.Bool("replaced", outcome == history.OutcomeReplaced),
		logging.Bool("deduped", outcome == history.OutcomeDeduped))
	return id, nil
}

// CloseNotification handles the protocol close: reason closed-by-request.
// Unknown or already-closed ids are a tolerated no-op.
func (d *Daemon) CloseNotification(id uint32) {
	d.closeWithReason(id, notify.ReasonClosedByCall)
}

// Dismiss closes one notification as user-dismissed.
func (d *Daemon) Dismiss(id uint32) {
	d.closeWithReason(id, notify.ReasonDismissed)
}

// DismissAll closes every open notification as dismissed.
func (d *Daemon) DismissAll() int {
	closed := d.store.CloseAll(notify.ReasonDismissed)
	for _, id := range closed {
		d.hub.Publish(events.Event{
			Type:           events.TypeNotificationClosed,
			NotificationID: id,
			Reason:         notify.ReasonDismissed.String(),
		})
	}
	return len(closed)
}

func (d *Daemon) closeWithReason(id uint32, reason notify.CloseReason) {
	if err := d.store.Close(id, reason); err != nil {
		// Raced with expiry or never existed; the protocol tolerates both.
		return
	}
	d.hub.Publish(events.Event{
		Type:           events.TypeNotificationClosed,
		NotificationID: id,
		Reason:         reason.String(),
	})
}

// InvokeAction fires an action on an open notification. Non-resident
// notifications close with reason closed-by-request after the action.
func (d *Daemon) InvokeAction(id uint32, key string) error {
	e, ok := d.store.Get(id)
	if !ok || e.Closed {
		return fmt.Errorf("invoke action on notification %d: %w", id, history.ErrNotFound)
	}
	if _, ok := e.Notification.ActionByKey(key); !ok {
		return fmt.Errorf("notification %d has no action %q", id, key)
	}

	d.hub.Publish(events.Event{
		Type:           events.TypeActionInvoked,
		NotificationID: id,
		ActionKey:      key,
	})
	if !e.Notification.Resident {
		d.closeWithReason(id, notify.ReasonClosedByCall)
	}
	return nil
}

// Capabilities answers get_capabilities from static flags plus config.
func (d *Daemon) Capabilities() []string {
	caps := []string{"actions", "body", "icon-static"}
	cfg := d.cfgStore.Current()
	if cfg.General.BodyMarkup {
		caps = append(caps, "body-markup")
	}
	if cfg.General.SoundEnabled {
		caps = append(caps, "sound")
	}
	if cfg.History.Persist {
		caps = append(caps, "persistence")
	}
	return caps
}

// ServerInformation answers get_server_information.
func (d *Daemon) ServerInformation() (name, vendor, version, specVersion string) {
	return ServerName, Vendor, Version, SpecVersion
}

// ListActive returns the open notifications, newest first.
func (d *Daemon) ListActive() []*notify.Notification {
	return d.store.ListActive()
}

// ListHistory returns stored entries, newest first.
func (d *Daemon) ListHistory(limit int) []history.Entry {
	return d.store.List(limit)
}

// ClearHistory drops closed entries and reports how many were removed.
func (d *Daemon) ClearHistory() int {
	return d.store.ClearClosed()
}

// ToggleDND flips the manual override and returns the new state.
func (d *Daemon) ToggleDND() (bool, string) {
	active := d.dnd.Toggle()
	return active, string(d.dnd.Mode())
}

// SetDND sets the manual override directly.
func (d *Daemon) SetDND(on bool) (bool, string) {
	d.dnd.SetManual(on)
	return d.dnd.Active(), string(d.dnd.Mode())
}

// SetPanelVisible records panel visibility and suspends or resumes the
// watcher schedules accordingly.
func (d *Daemon) SetPanelVisible(visible bool) {
	d.mu.Lock()
	changed := d.panelVisible != visible
	d.panelVisible = visible
	d.mu.Unlock()
	if !changed {
		return
	}

	if visible {
		d.manager.Resume()
	} else {
		d.manager.Pause()
	}
	d.hub.Publish(events.Event{Type: events.TypePanelVisibility, Visible: visible})
}

// TogglePanel flips panel visibility and returns the new state.
func (d *Daemon) TogglePanel() bool {
	d.mu.Lock()
	next := !d.panelVisible
	d.mu.Unlock()
	d.SetPanelVisible(next)
	return next
}

// PanelVisible reports the recorded panel state.
func (d *Daemon) PanelVisible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.panelVisible
}

// WatcherSnapshot returns the current watcher results.
func (d *Daemon) WatcherSnapshot() []watchers.Result {
	return d.board.Snapshot()
}

// Status summarizes the daemon for the CLI.
func (d *Daemon) Status() Status {
	cfg := d.cfgStore.Current()
	d.mu.Lock()
	startedAt := d.startedAt
	panelVisible := d.panelVisible
	configPath := d.configPath
	d.mu.Unlock()

	st := Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		StartedAt:       startedAt,
		ConfigPath:      configPath,
		SocketPath:      cfg.SocketPath(),
		EventSocketPath: cfg.EventSocketPath(),
		DNDActive:       d.dnd.Active(),
		DNDMode:         string(d.dnd.Mode()),
		PanelVisible:    panelVisible,
		WatchersPaused:  d.manager.Paused(),
		Counts:          d.store.Stats(),
	}
	if cfg.History.Persist {
		st.DatabasePath = cfg.DatabasePath()
	}
	return st
}

// Uptime reports time since Start.
func (d *Daemon) Uptime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startedAt.IsZero() {
		return 0
	}
	return time.Since(d.startedAt)
}
