package daemon

import (
	"context"
	"testing"
	"time"

	"notisd/internal/config"
	"notisd/internal/events"
	"notisd/internal/logging"
	"notisd/internal/notify"
	"notisd/internal/testsupport"
)

func newTestDaemon(t *testing.T, mutate func(cfg *config.Config)) *Daemon {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
		if err := cfg.Validate(); err != nil {
			t.Fatalf("mutated config invalid: %v", err)
		}
	}

	store := config.NewStore(cfg)
	d, err := New(store, "", logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasEvent(d *Daemon, typ events.Type, id uint32) bool {
	evts, _ := d.Hub().Tail(0)
	for _, evt := range evts {
		if evt.Type == typ && evt.NotificationID == id {
			return true
		}
	}
	return false
}

func TestNotifyStoresAndPublishes(t *testing.T) {
	d := newTestDaemon(t, nil)

	id, err := d.Notify("mail", 0, "", "new message", "hello", nil, nil, 0)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if id == 0 {
		t.Fatal("id must never be zero")
	}

	active := d.ListActive()
	if len(active) != 1 || active[0].ID != id {
		t.Fatalf("active = %+v", active)
	}
	if !hasEvent(d, events.TypeNotificationPosted, id) {
		t.Fatal("posted event not published")
	}
}

func TestNotifySuppressedLeavesNoRecord(t *testing.T) {
	d := newTestDaemon(t, func(cfg *config.Config) {
		cfg.Rules = []config.Rule{{
			Name:     "drop-spam",
			Match:    config.RuleMatch{App: "spam"},
			Suppress: true,
		}}
	})

	id, err := d.Notify("spam", 0, "", "buy now", "", nil, nil, 0)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if id == 0 {
		t.Fatal("suppressed notify must still allocate an id")
	}
	if got := d.ListHistory(0); len(got) != 0 {
		t.Fatalf("history = %+v", got)
	}
	if hasEvent(d, events.TypeNotificationPosted, id) {
		t.Fatal("suppressed notification must not publish")
	}

	// The burned id must not be handed out again.
	next, err := d.Notify("mail", 0, "", "real", "", nil, nil, 0)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if next == id {
		t.Fatalf("id %d reused after suppression", id)
	}
}

func TestNotifyUnderDND(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.SetDND(true)

	id, err := d.Notify("chat", 0, "", "ping", "", nil, nil, 0)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if id == 0 {
		t.Fatal("muted notify must still return a valid id")
	}
	if got := d.ListActive(); len(got) != 0 {
		t.Fatalf("active = %+v", got)
	}
	entries := d.ListHistory(0)
	if len(entries) != 1 || !entries[0].Closed {
		t.Fatalf("history = %+v", entries)
	}

	// Critical urgency pierces DND.
	crit, err := d.Notify("ups", 0, "", "battery", "", nil, map[string]any{"urgency": 2}, 0)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	active := d.ListActive()
	if len(active) != 1 || active[0].ID != crit {
		t.Fatalf("active = %+v", active)
	}
}

func TestNotifyDNDExemptRule(t *testing.T) {
	d := newTestDaemon(t, func(cfg *config.Config) {
		cfg.Rules = []config.Rule{{
			Name:      "alarm-through",
			Match:     config.RuleMatch{App: "alarm"},
			DNDExempt: true,
		}}
	})
	d.SetDND(true)

	id, err := d.Notify("alarm", 0, "", "wake up", "", nil, nil, 0)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	active := d.ListActive()
	if len(active) != 1 || active[0].ID != id {
		t.Fatalf("active = %+v", active)
	}
}

func TestNotifyReplaceKeepsID(t *testing.T) {
	d := newTestDaemon(t, nil)

	id, err := d.Notify("player", 0, "", "track 1", "", nil, nil, 0)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	id2, err := d.Notify("player", id, "", "track 2", "", nil, nil, 0)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if id2 != id {
		t.Fatalf("replace returned %d, want %d", id2, id)
	}
	active := d.ListActive()
	if len(active) != 1 || active[0].Summary != "track 2" {
		t.Fatalf("active = %+v", active)
	}
}

func TestNotifyExpires(t *testing.T) {
	d := newTestDaemon(t, nil)

	id, err := d.Notify("toast", 0, "", "brief", "", nil, nil, 30)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitUntil(t, "expiry close", func() bool {
		e, ok := d.store.Get(id)
		return ok && e.Closed && e.Reason == notify.ReasonExpired
	})
	if !hasEvent(d, events.TypeNotificationClosed, id) {
		t.Fatal("closed event not published")
	}
}

func TestCloseNotification(t *testing.T) {
	d := newTestDaemon(t, nil)

	id, _ := d.Notify("mail", 0, "", "msg", "", nil, nil, 0)
	d.CloseNotification(id)

	e, ok := d.store.Get(id)
	if !ok || !e.Closed || e.Reason != notify.ReasonClosedByCall {
		t.Fatalf("entry = %+v ok=%v", e, ok)
	}
	if !hasEvent(d, events.TypeNotificationClosed, id) {
		t.Fatal("closed event not published")
	}

	// Unknown and repeated closes are silent no-ops.
	d.CloseNotification(id)
	d.CloseNotification(9999)
}

func TestDismissAll(t *testing.T) {
	d := newTestDaemon(t, nil)

	// Distinct summaries so the dedup window does not fold them.
	for _, summary := range []string{"one", "two", "three"} {
		if _, err := d.Notify("mail", 0, "", summary, "", nil, nil, 0); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	if n := d.DismissAll(); n != 3 {
		t.Fatalf("DismissAll = %d", n)
	}
	if got := d.ListActive(); len(got) != 0 {
		t.Fatalf("active = %+v", got)
	}
}

func TestInvokeAction(t *testing.T) {
	d := newTestDaemon(t, nil)

	id, err := d.Notify("mail", 0, "", "msg", "", []string{"open", "Open", "archive", "Archive"}, nil, 0)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := d.InvokeAction(id, "missing"); err == nil {
		t.Fatal("unknown action key must error")
	}
	if err := d.InvokeAction(id, "open"); err != nil {
		t.Fatalf("InvokeAction: %v", err)
	}
	if !hasEvent(d, events.TypeActionInvoked, id) {
		t.Fatal("action event not published")
	}
	e, _ := d.store.Get(id)
	if !e.Closed || e.Reason != notify.ReasonClosedByCall {
		t.Fatalf("entry = %+v", e)
	}
	if err := d.InvokeAction(id, "open"); err == nil {
		t.Fatal("action on closed notification must error")
	}
}

func TestInvokeActionResidentStaysOpen(t *testing.T) {
	d := newTestDaemon(t, nil)

	id, err := d.Notify("player", 0, "", "track", "",
		[]string{"next", "Next"}, map[string]any{"resident": true}, 0)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := d.InvokeAction(id, "next"); err != nil {
		t.Fatalf("InvokeAction: %v", err)
	}
	e, _ := d.store.Get(id)
	if e.Closed {
		t.Fatal("resident notification closed by action")
	}
}

func TestCapabilities(t *testing.T) {
	d := newTestDaemon(t, nil)
	caps := map[string]bool{}
	for _, c := range d.Capabilities() {
		caps[c] = true
	}
	for _, want := range []string{"actions", "body", "body-markup", "sound", "icon-static"} {
		if !caps[want] {
			t.Fatalf("missing capability %q in %v", want, caps)
		}
	}
	if caps["persistence"] {
		t.Fatal("persistence must not be advertised while history.persist is off")
	}

	d2 := newTestDaemon(t, func(cfg *config.Config) {
		cfg.General.BodyMarkup = false
		cfg.General.SoundEnabled = false
		cfg.History.Persist = true
	})
	caps2 := map[string]bool{}
	for _, c := range d2.Capabilities() {
		caps2[c] = true
	}
	if caps2["body-markup"] || caps2["sound"] {
		t.Fatalf("disabled capabilities still advertised in %v", caps2)
	}
	if !caps2["persistence"] {
		t.Fatal("persistence must be advertised while history.persist is on")
	}
}

func TestPanelVisibilityControlsWatchers(t *testing.T) {
	d := newTestDaemon(t, nil)

	if !d.manager.Paused() {
		t.Fatal("watchers must start paused with the panel hidden")
	}
	d.SetPanelVisible(true)
	if d.manager.Paused() {
		t.Fatal("watchers still paused after panel open")
	}
	d.SetPanelVisible(false)
	if !d.manager.Paused() {
		t.Fatal("watchers not paused after panel close")
	}
	if !d.TogglePanel() {
		t.Fatal("toggle should report visible")
	}
	if !d.PanelVisible() {
		t.Fatal("panel state not recorded")
	}
}

func TestConfigReloadRebuildsRules(t *testing.T) {
	d := newTestDaemon(t, nil)

	id, _ := d.Notify("spam", 0, "", "first", "", nil, nil, 0)
	if len(d.ListActive()) != 1 {
		t.Fatal("first notify should be active")
	}
	d.Dismiss(id)

	next := testsupport.NewConfig(t)
	next.Rules = []config.Rule{{
		Name:     "drop-spam",
		Match:    config.RuleMatch{App: "spam"},
		Suppress: true,
	}}
	if err := next.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	d.cfgStore.Replace(next)

	if _, err := d.Notify("spam", 0, "", "second", "", nil, nil, 0); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := d.ListActive(); len(got) != 0 {
		t.Fatalf("active = %+v", got)
	}
}

func TestStatus(t *testing.T) {
	d := newTestDaemon(t, nil)
	d.Notify("mail", 0, "", "msg", "", nil, nil, 0)

	st := d.Status()
	if !st.Running || st.PID == 0 {
		t.Fatalf("status = %+v", st)
	}
	if st.Counts.Open != 1 {
		t.Fatalf("counts = %+v", st.Counts)
	}
	if st.DNDActive {
		t.Fatal("dnd should be off")
	}
	if st.DatabasePath != "" {
		t.Fatal("database path set with persistence disabled")
	}
	if d.Uptime() <= 0 {
		t.Fatal("uptime not tracked")
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	d := newTestDaemon(t, nil)

	cfg := d.cfgStore.Current()
	other, err := New(config.NewStore(cfg), "", logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := other.Start(context.Background()); err == nil {
		other.Stop()
		t.Fatal("second instance acquired the lock")
	}
}
