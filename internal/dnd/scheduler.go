// Package dnd tracks do-not-disturb state. Manual toggling always wins over
// the configured schedule; releasing the manual override falls back to
// whatever the schedule says at that moment.
package dnd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"notisd/internal/config"
	"notisd/internal/logging"
	"notisd/internal/notify"
)

// Mode reports why do-not-disturb is (in)active.
type Mode string

const (
	ModeOff       Mode = "off"
	ModeManual    Mode = "manual"
	ModeScheduled Mode = "scheduled"
)

// recomputeInterval bounds how stale a scheduled transition can be. Window
// edges are minute-granular, so half a minute keeps transitions prompt
// without a per-minute alignment dance.
const recomputeInterval = 30 * time.Second

type window struct {
	startMin int
	endMin   int
	days     map[time.Weekday]bool
}

// Scheduler owns the do-not-disturb state machine.
type Scheduler struct {
	logger   *slog.Logger
	onChange func(active bool, mode Mode)

	mu       sync.Mutex
	manualOn bool
	windows  []window
	active   bool
	now      func() time.Time
}

// New builds a scheduler. onChange fires outside the lock whenever the
// effective active state flips; it may be nil.
func New(logger *slog.Logger, onChange func(active bool, mode Mode)) *Scheduler {
	return &Scheduler{
		logger:   logging.NewComponentLogger(logger, "dnd"),
		onChange: onChange,
		now:      time.Now,
	}
}

// ApplyConfig replaces the scheduled windows. Parse failures leave the
// previous windows in place; the config loader validates window syntax, so an
// error here means the snapshot bypassed validation.
func (s *Scheduler) ApplyConfig(cfg config.DND) error {
	parsed := make([]window, 0, len(cfg.Windows))
	for i, w := range cfg.Windows {
		win, err := parseWindow(w)
		if err != nil {
			return fmt.Errorf("dnd window %d: %w", i+1, err)
		}
		parsed = append(parsed, win)
	}

	s.mu.Lock()
	s.windows = parsed
	s.mu.Unlock()
	s.recompute()
	return nil
}

// SetManual turns the manual override on or off. Turning it off does not
// force quiet hours to end; a live scheduled window keeps DND active.
func (s *Scheduler) SetManual(on bool) {
	s.mu.Lock()
	s.manualOn = on
	s.mu.Unlock()
	s.recompute()
}

// Toggle flips the manual override and returns the new effective state.
func (s *Scheduler) Toggle() bool {
	s.mu.Lock()
	s.manualOn = !s.manualOn
	s.mu.Unlock()
	s.recompute()
	return s.Active()
}

// Active reports whether do-not-disturb is currently in effect.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Mode reports the current state's origin.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.manualOn:
		return ModeManual
	case s.scheduledActiveLocked(s.now()):
		return ModeScheduled
	default:
		return ModeOff
	}
}

// ShouldPresent decides whether a notification breaks through. Critical
// urgency, a rule exemption, and the sender bypass hint all pierce DND.
// Suppressed-by-DND notifications still reach the store; only presentation is
// gated.
func (s *Scheduler) ShouldPresent(n *notify.Notification, ruleExempt bool) bool {
	if !s.Active() {
		return true
	}
	if n.Urgency == notify.UrgencyCritical {
		return true
	}
	if ruleExempt || n.DNDBypass {
		return true
	}
	return false
}

// Run recomputes the scheduled state until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(recomputeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.recompute()
		}
	}
}

func (s *Scheduler) recompute() {
	s.mu.Lock()
	next := s.manualOn || s.scheduledActiveLocked(s.now())
	changed := next != s.active
	s.active = next
	var mode Mode
	switch {
	case s.manualOn:
		mode = ModeManual
	case next:
		mode = ModeScheduled
	default:
		mode = ModeOff
	}
	onChange := s.onChange
	s.mu.Unlock()

	if changed {
		s.logger.Info("do-not-disturb state changed",
			logging.String(logging.FieldEventType, "dnd_changed"),
			logging.Bool("active", next),
			logging.String("mode", string(mode)))
		if onChange != nil {
			onChange(next, mode)
		}
	}
}

func (s *Scheduler) scheduledActiveLocked(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()
	day := t.Weekday()
	prev := (day + 6) % 7
	for _, w := range s.windows {
		if w.startMin < w.endMin {
			if w.appliesOn(day) && minute >= w.startMin && minute < w.endMin {
				return true
			}
			continue
		}
		// Spans midnight: the window belongs to the day it starts on.
		if w.appliesOn(day) && minute >= w.startMin {
			return true
		}
		if w.appliesOn(prev) && minute < w.endMin {
			return true
		}
	}
	return false
}

func (w *window) appliesOn(day time.Weekday) bool {
	if len(w.days) == 0 {
		return true
	}
	return w.days[day]
}

var dayNames = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

func parseWindow(w config.DNDWindow) (window, error) {
	start, err := parseClock(w.Start)
	if err != nil {
		return window{}, err
	}
	end, err := parseClock(w.End)
	if err != nil {
		return window{}, err
	}
	if start == end {
		return window{}, fmt.Errorf("window start equals end (%s)", w.Start)
	}

	win := window{startMin: start, endMin: end}
	if len(w.Days) > 0 {
		win.days = make(map[time.Weekday]bool, len(w.Days))
		for _, name := range w.Days {
			day, ok := dayNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return window{}, fmt.Errorf("unknown day %q", name)
			}
			win.days[day] = true
		}
	}
	return win, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("clock value %q: want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
