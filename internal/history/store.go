// Package history owns the notification record: every accepted notification
// lives here from insertion until eviction, open or closed. Mutations are
// serialized behind one mutex; reads hand out clones so callers never alias
// store-owned memory.
package history

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"notisd/internal/logging"
	"notisd/internal/notify"
)

// ErrNotFound reports a close or lookup against an unknown or already-closed
// id. The protocol layer treats it as a no-op.
var ErrNotFound = errors.New("notification not found")

// Entry is one stored notification with its lifecycle state.
type Entry struct {
	Notification *notify.Notification
	Closed       bool
	Reason       notify.CloseReason
	ClosedAt     time.Time
}

func (e *Entry) clone() Entry {
	return Entry{
		Notification: e.Notification.Clone(),
		Closed:       e.Closed,
		Reason:       e.Reason,
		ClosedAt:     e.ClosedAt,
	}
}

// Limits carries the retention policy from the config snapshot.
type Limits struct {
	// Capacity bounds the total entry count, open and closed together.
	Capacity int
	// MaxOpen bounds open entries; exceeding it closes the oldest open
	// entry rather than evicting it.
	MaxOpen int
	// TransientToHistory keeps transient notifications after closure.
	TransientToHistory bool
	// DedupWindow is how far back a repeat of the same message folds into
	// the existing entry instead of creating a new one.
	DedupWindow time.Duration
}

// InsertOutcome describes what InsertOrReplace did.
type InsertOutcome int

const (
	OutcomeInserted InsertOutcome = iota
	OutcomeReplaced
	OutcomeDeduped
)

// Counts is the aggregate view consumed by the panel.
type Counts struct {
	Open         int `json:"open"`
	CriticalOpen int `json:"critical_open"`
	Closed       int `json:"closed"`
	Total        int `json:"total"`
}

// Store is the single owner of all notification entries.
type Store struct {
	logger      *slog.Logger
	cancelTimer func(id uint32)

	mu      sync.Mutex
	nextID  uint32
	entries []*Entry // oldest first
	byID    map[uint32]*Entry
	limits  Limits
	db      *DB

	changed chan struct{}
}

// New builds an empty store with the given retention policy.
func New(logger *slog.Logger, limits Limits) *Store {
	return &Store{
		logger:  logging.NewComponentLogger(logger, "history"),
		byID:    make(map[uint32]*Entry),
		limits:  limits,
		changed: make(chan struct{}, 1),
	}
}

// SetTimerCanceller installs the expiry cancellation hook. The store calls it
// before evicting or closing any open entry so no expiry can fire for a
// removed id.
func (s *Store) SetTimerCanceller(fn func(id uint32)) {
	s.mu.Lock()
	s.cancelTimer = fn
	s.mu.Unlock()
}

// AttachDB enables persistence and restores surviving entries. Restored open
// entries are reopened as closed/undefined: their expiry timers died with the
// previous process.
func (s *Store) AttachDB(db *DB) error {
	entries, maxID, err := db.LoadAll()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = db
	for _, loaded := range entries {
		e := loaded
		if !e.Closed {
			e.Closed = true
			e.Reason = notify.ReasonUndefined
			e.ClosedAt = time.Now().UTC()
		}
		s.entries = append(s.entries, &e)
		s.byID[e.Notification.ID] = &e
	}
	if maxID > s.nextID {
		s.nextID = maxID
	}
	s.evictLocked()
	return nil
}

// Changed returns the coalesced change channel. Every logical mutation posts
// at most one pending signal; a burst of inserts collapses into one wakeup.
func (s *Store) Changed() <-chan struct{} {
	return s.changed
}

func (s *Store) signalLocked() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// ApplyLimits swaps the retention policy and re-enforces it immediately.
func (s *Store) ApplyLimits(limits Limits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = limits
	s.evictLocked()
	s.signalLocked()
}

// AllocateID burns and returns the next identifier without inserting
// anything. Used for suppressed notifications, which answer with a valid id
// but leave no record.
func (s *Store) AllocateID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocateIDLocked()
}

// allocateIDLocked returns the next identifier, skipping zero and any id
// still present in the store, so a wrapped counter can never collide with a
// live entry.
func (s *Store) allocateIDLocked() uint32 {
	for {
		s.nextID++
		if s.nextID == 0 {
			s.nextID = 1
		}
		if _, taken := s.byID[s.nextID]; !taken {
			return s.nextID
		}
	}
}

// InsertOrReplace records a notification and returns its identifier.
// A matching open ReplacesID mutates that entry in place and keeps its id.
// A repeat of an open entry's message inside the dedup window bumps its
// counter instead of inserting. open=false stores the entry directly as
// closed (reason undefined), which is how DND-muted notifications are
// retained without ever being active.
func (s *Store) InsertOrReplace(n *notify.Notification, open bool) (uint32, InsertOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ReplacesID != 0 {
		if prev, ok := s.byID[n.ReplacesID]; ok && !prev.Closed {
			n.ID = n.ReplacesID
			n.Count = prev.Notification.Count
			prev.Notification = n
			prev.Closed = !open
			if !open {
				prev.Reason = notify.ReasonUndefined
				prev.ClosedAt = time.Now().UTC()
			}
			s.touchLocked(prev)
			s.persistLocked(prev)
			s.signalLocked()
			return n.ID, OutcomeReplaced
		}
	}

	if open && s.limits.DedupWindow > 0 {
		key := n.DedupKey()
		cutoff := time.Now().Add(-s.limits.DedupWindow)
		for i := len(s.entries) - 1; i >= 0; i-- {
			e := s.entries[i]
			if e.Closed || e.Notification.DedupKey() != key {
				continue
			}
			if e.Notification.CreatedAt.Before(cutoff) {
				break
			}
			e.Notification.Count++
			e.Notification.CreatedAt = time.Now().UTC()
			s.touchLocked(e)
			s.persistLocked(e)
			s.signalLocked()
			return e.Notification.ID, OutcomeDeduped
		}
	}

	n.ID = s.allocateIDLocked()
	e := &Entry{Notification: n, Closed: !open}
	if !open {
		e.Reason = notify.ReasonUndefined
		e.ClosedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, e)
	s.byID[n.ID] = e
	s.evictLocked()
	s.persistLocked(e)
	s.signalLocked()
	return n.ID, OutcomeInserted
}

// Close transitions an open entry to closed. Unknown or already-closed ids
// return ErrNotFound, which callers racing against expiry treat as success.
func (s *Store) Close(id uint32, reason notify.CloseReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked(id, reason)
}

func (s *Store) closeLocked(id uint32, reason notify.CloseReason) error {
	e, ok := s.byID[id]
	if !ok || e.Closed {
		return ErrNotFound
	}
	if s.cancelTimer != nil {
		s.cancelTimer(id)
	}
	e.Closed = true
	e.Reason = reason
	e.ClosedAt = time.Now().UTC()

	if e.Notification.Transient && !s.limits.TransientToHistory {
		s.removeLocked(id)
	} else {
		s.persistLocked(e)
	}
	s.signalLocked()
	return nil
}

// CloseAll closes every open entry with the given reason.
func (s *Store) CloseAll(reason notify.CloseReason) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var closed []uint32
	for _, e := range append([]*Entry(nil), s.entries...) {
		if e.Closed {
			continue
		}
		id := e.Notification.ID
		if s.closeLocked(id, reason) == nil {
			closed = append(closed, id)
		}
	}
	return closed
}

// Get returns a snapshot of one entry.
func (s *Store) Get(id uint32) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// ListActive returns open entries, newest first.
func (s *Store) ListActive() []*notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*notify.Notification
	for i := len(s.entries) - 1; i >= 0; i-- {
		if e := s.entries[i]; !e.Closed {
			out = append(out, e.Notification.Clone())
		}
	}
	return out
}

// List returns all entries newest first, up to limit (0 = no limit).
func (s *Store) List(limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.entries[i].clone())
	}
	return out
}

// ClearClosed drops every closed entry.
func (s *Store) ClearClosed() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Closed {
			delete(s.byID, e.Notification.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	if s.db != nil && removed > 0 {
		if err := s.db.DeleteClosed(); err != nil {
			s.warnPersist(err)
		}
	}
	if removed > 0 {
		s.signalLocked()
	}
	return removed
}

// Stats returns the aggregate counts.
func (s *Store) Stats() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c Counts
	c.Total = len(s.entries)
	for _, e := range s.entries {
		if e.Closed {
			c.Closed++
			continue
		}
		c.Open++
		if e.Notification.Urgency == notify.UrgencyCritical {
			c.CriticalOpen++
		}
	}
	return c
}

// evictLocked enforces the caps: oldest closed entries are dropped first,
// then oldest overall, each with its timer cancelled before removal.
func (s *Store) evictLocked() {
	if s.limits.MaxOpen > 0 {
		// closeLocked can remove transient entries and compact s.entries,
		// so collect the open ids before closing any.
		var openIDs []uint32
		for _, e := range s.entries {
			if !e.Closed {
				openIDs = append(openIDs, e.Notification.ID)
			}
		}
		for i := 0; len(openIDs)-i > s.limits.MaxOpen; i++ {
			_ = s.closeLocked(openIDs[i], notify.ReasonUndefined)
		}
	}

	if s.limits.Capacity <= 0 {
		return
	}
	for len(s.entries) > s.limits.Capacity {
		victim := -1
		for i, e := range s.entries {
			if e.Closed {
				victim = i
				break
			}
		}
		if victim < 0 {
			victim = 0
		}
		id := s.entries[victim].Notification.ID
		if !s.entries[victim].Closed && s.cancelTimer != nil {
			s.cancelTimer(id)
		}
		s.removeLocked(id)
		s.logger.Debug("evicted entry", logging.Uint64(logging.FieldNotificationID, uint64(id)))
	}
}

func (s *Store) removeLocked(id uint32) {
	for i, e := range s.entries {
		if e.Notification.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	delete(s.byID, id)
	if s.db != nil {
		if err := s.db.Delete(id); err != nil {
			s.warnPersist(err)
		}
	}
}

// touchLocked moves an entry to the newest position.
func (s *Store) touchLocked(target *Entry) {
	for i, e := range s.entries {
		if e == target {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			s.entries = append(s.entries, target)
			return
		}
	}
}

func (s *Store) persistLocked(e *Entry) {
	if s.db == nil {
		return
	}
	if err := s.db.Save(e); err != nil {
		s.warnPersist(err)
	}
}

func (s *Store) warnPersist(err error) {
	logging.WarnWithContext(s.logger, "history persistence failed", "history_persist_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the state directory and disk space"),
		logging.String(logging.FieldImpact, "entry will not survive a restart"))
}
