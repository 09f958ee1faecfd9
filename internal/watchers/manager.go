// Package watchers schedules the external status probes behind the panel
// widgets. Probes run through the command budget; event-driven watchers
// (watch process or udev subscription) replace polling and fall back to it
// when their event source dies. The whole set suspends while the panel is
// hidden.
package watchers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"notisd/internal/command"
	"notisd/internal/config"
	"notisd/internal/logging"
)

// Runner is the slice of the command runner the manager needs.
type Runner interface {
	Run(ctx context.Context, spec string, class command.Class) (command.Result, error)
	Jitter() time.Duration
}

type watcher struct {
	spec        config.WatcherSpec
	timer       *time.Timer
	cancelEvent context.CancelFunc // stops the watch process / udev loop
}

// Manager owns all configured watchers.
type Manager struct {
	logger *slog.Logger
	runner Runner
	board  *Board

	mu       sync.Mutex
	ctx      context.Context
	watchers map[string]*watcher
	paused   bool
	stopped  bool
	// gen invalidates in-flight probe results across a pause boundary.
	gen int
}

// NewManager builds a manager publishing into board.
func NewManager(logger *slog.Logger, runner Runner, board *Board) *Manager {
	return &Manager{
		logger:   logging.NewComponentLogger(logger, "watchers"),
		runner:   runner,
		board:    board,
		watchers: make(map[string]*watcher),
	}
}

// Start registers the configured watchers and begins scheduling.
func (m *Manager) Start(ctx context.Context, specs []config.WatcherSpec) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	m.ApplyConfig(specs)
}

// ApplyConfig reconciles the watcher set against a new config snapshot.
// Removed watchers are torn down with their results; new and changed ones
// restart from a fresh probe.
func (m *Manager) ApplyConfig(specs []config.WatcherSpec) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}

	want := make(map[string]config.WatcherSpec)
	for _, spec := range specs {
		if spec.Enabled {
			want[spec.Name] = spec
		}
	}

	var removed []string
	for name, w := range m.watchers {
		spec, keep := want[name]
		if keep && spec == w.spec {
			delete(want, name)
			continue
		}
		m.teardownLocked(w)
		delete(m.watchers, name)
		if !keep {
			removed = append(removed, name)
		}
	}
	for name, spec := range want {
		m.watchers[name] = &watcher{spec: spec}
		if !m.paused {
			m.armLocked(name)
		}
	}
	m.mu.Unlock()

	for _, name := range removed {
		m.board.Remove(name)
	}
}

// Pause suspends all scheduling. Pending timers are disarmed, event sources
// stopped, and any in-flight probe result is discarded on arrival.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused || m.stopped {
		return
	}
	m.paused = true
	m.gen++
	for _, w := range m.watchers {
		m.teardownLocked(w)
	}
	m.logger.Debug("watchers paused")
}

// Resume restarts scheduling after a pause, refreshing every watcher.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused || m.stopped {
		return
	}
	m.paused = false
	for name := range m.watchers {
		m.armLocked(name)
	}
	m.logger.Debug("watchers resumed")
}

// Paused reports the suspension state.
func (m *Manager) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Stop tears everything down permanently.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.gen++
	for _, w := range m.watchers {
		m.teardownLocked(w)
	}
}

// armLocked starts a watcher's schedule: an immediate jittered probe, plus
// its event source when it has one.
func (m *Manager) armLocked(name string) {
	w := m.watchers[name]
	if w == nil {
		return
	}
	m.scheduleProbeLocked(name, 0)

	if m.ctx == nil {
		return
	}
	switch {
	case w.spec.WatchCmd != "":
		evCtx, cancel := context.WithCancel(m.ctx)
		w.cancelEvent = cancel
		go m.runWatchProcess(evCtx, w.spec)
	case w.spec.Subsystem != "":
		evCtx, cancel := context.WithCancel(m.ctx)
		w.cancelEvent = cancel
		go m.runSubsystemMonitor(evCtx, w.spec)
	}
}

func (m *Manager) teardownLocked(w *watcher) {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.cancelEvent != nil {
		w.cancelEvent()
		w.cancelEvent = nil
	}
}

// eventDriven reports whether the watcher refreshes from pushes rather than
// an interval.
func eventDriven(spec config.WatcherSpec) bool {
	return spec.WatchCmd != "" || spec.Subsystem != ""
}

func (m *Manager) scheduleProbeLocked(name string, delay time.Duration) {
	w := m.watchers[name]
	if w == nil || m.paused || m.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(delay+m.runner.Jitter(), func() { m.probe(name) })
}

// refresh triggers an immediate probe, used by event sources.
func (m *Manager) refresh(name string) {
	m.mu.Lock()
	m.scheduleProbeLocked(name, 0)
	m.mu.Unlock()
}

func (m *Manager) probe(name string) {
	m.mu.Lock()
	w := m.watchers[name]
	if w == nil || m.paused || m.stopped || m.ctx == nil {
		m.mu.Unlock()
		return
	}
	gen := m.gen
	spec := w.spec
	ctx := m.ctx
	m.mu.Unlock()

	runCtx := ctx
	if spec.TimeoutMs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(spec.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	res, err := m.runner.Run(runCtx, spec.StateCmd, command.Classify(spec.StateCmd))

	m.mu.Lock()
	discard := m.paused || m.stopped || gen != m.gen || m.watchers[name] == nil
	m.mu.Unlock()
	if discard {
		return
	}

	if err != nil {
		m.board.MarkStale(name)
		m.logger.Debug("probe failed, last value marked stale",
			logging.String(logging.FieldWatcher, name),
			logging.Error(err))
	} else {
		m.board.Set(name, res.Stdout, res.ExitCode)
	}

	if !eventDriven(spec) {
		m.mu.Lock()
		m.scheduleProbeLocked(name, time.Duration(spec.IntervalMs)*time.Millisecond)
		m.mu.Unlock()
	}
}

// fallBackToPolling re-arms interval scheduling for a watcher whose event
// source died.
func (m *Manager) fallBackToPolling(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.watchers[name]
	if w == nil || m.paused || m.stopped {
		return
	}
	// Drop the event source so probe() keeps rescheduling on interval.
	w.spec.WatchCmd = ""
	w.spec.Subsystem = ""
	m.scheduleProbeLocked(name, time.Duration(w.spec.IntervalMs)*time.Millisecond)
	logging.WarnWithContext(m.logger, "event source lost, watcher reverted to polling", "watcher_event_source_lost",
		logging.String(logging.FieldWatcher, name),
		logging.String(logging.FieldErrorHint, "check the watch command or udev access"),
		logging.String(logging.FieldImpact, "updates arrive on the poll interval"))
}
