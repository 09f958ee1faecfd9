// Package expire schedules per-notification expiry. Each live notification
// with a finite timeout owns at most one timer, keyed by its ID. Cancellation
// wins over a concurrently firing timer: a fire that finds its entry gone or
// replaced is discarded.
package expire

import (
	"log/slog"
	"sync"
	"time"

	"notisd/internal/config"
	"notisd/internal/logging"
	"notisd/internal/notify"
)

// Scheduler maps notification IDs to their pending expiry timers.
type Scheduler struct {
	logger *slog.Logger
	fire   func(id uint32)

	mu      sync.Mutex
	timers  map[uint32]*time.Timer
	stopped bool
}

// New builds a scheduler. fire runs on a timer goroutine when a notification
// expires; it must not call back into Schedule for the same ID synchronously
// while holding its own locks in an order that conflicts with the caller.
func New(logger *slog.Logger, fire func(id uint32)) *Scheduler {
	return &Scheduler{
		logger: logging.NewComponentLogger(logger, "expire"),
		fire:   fire,
		timers: make(map[uint32]*time.Timer),
	}
}

// Schedule arms (or re-arms) the expiry timer for id. A non-positive duration
// cancels any pending timer and schedules nothing, which is how
// never-expiring notifications are handled.
func (s *Scheduler) Schedule(id uint32, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.timers[id]; ok {
		prev.Stop()
		delete(s.timers, id)
	}
	if d <= 0 {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		current, ok := s.timers[id]
		if !ok || current != t || s.stopped {
			// Cancelled or replaced while this fire was in flight.
			s.mu.Unlock()
			return
		}
		delete(s.timers, id)
		s.mu.Unlock()
		s.fire(id)
	})
	s.timers[id] = t
	s.logger.Debug("expiry armed",
		logging.Uint64(logging.FieldNotificationID, uint64(id)),
		logging.Duration("after", d))
}

// Cancel disarms the timer for id, if any. Safe to call for IDs that never
// had one.
func (s *Scheduler) Cancel(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// Pending reports whether id currently has an armed timer.
func (s *Scheduler) Pending(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// Stop disarms every timer and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// ResolveTimeout turns a sender-requested timeout into an effective duration.
// Zero means never expire, as does residency. The sentinel -1 selects the
// configured default, with a separate default for critical notifications.
func ResolveTimeout(n *notify.Notification, general config.General) time.Duration {
	if n.Resident {
		return 0
	}
	switch {
	case n.TimeoutMs == 0:
		return 0
	case n.TimeoutMs > 0:
		return time.Duration(n.TimeoutMs) * time.Millisecond
	}
	// Sender asked for the server default.
	if n.Urgency == notify.UrgencyCritical {
		return time.Duration(general.CriticalTimeoutMs) * time.Millisecond
	}
	return time.Duration(general.DefaultTimeoutMs) * time.Millisecond
}
