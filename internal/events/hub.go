// Package events is the daemon's change feed: history mutations, DND flips,
// watcher updates, and config reloads, published as coalesce-friendly typed
// events consumed by the panel/popup collaborators over the event socket.
package events

import (
	"context"
	"sync"
	"time"
)

// Type discriminates event payloads.
type Type string

const (
	TypeNotificationPosted Type = "notification_posted"
	TypeNotificationClosed Type = "notification_closed"
	TypeActionInvoked      Type = "action_invoked"
	TypeHistoryChanged     Type = "history_changed"
	TypeDNDChanged         Type = "dnd_changed"
	TypeWatcherUpdated     Type = "watcher_updated"
	TypeConfigReloaded     Type = "config_reloaded"
	TypePanelVisibility    Type = "panel_visibility"
)

// Event is one feed entry. Payload fields are populated per type; consumers
// ignore what they do not know.
type Event struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Type      Type      `json:"type"`

	NotificationID uint32 `json:"notification_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	ActionKey      string `json:"action_key,omitempty"`
	DNDActive      bool   `json:"dnd_active,omitempty"`
	DNDMode        string `json:"dnd_mode,omitempty"`
	Watcher        string `json:"watcher,omitempty"`
	Value          string `json:"value,omitempty"`
	Stale          bool   `json:"stale,omitempty"`
	Visible        bool   `json:"visible,omitempty"`
}

// Hub stores recent events in a bounded ring and wakes blocked fetchers on
// publish. Slow consumers lose the oldest events rather than stalling the
// daemon.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
}

// NewHub constructs a hub retaining up to capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish appends an event, assigning its sequence and timestamp.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Fetch returns events with sequence greater than since, up to limit. When
// wait is true and nothing is pending, Fetch blocks until an event arrives
// or ctx ends.
func (h *Hub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		events, next := h.snapshotLocked(since, limit)
		if len(events) > 0 || !wait {
			return events, next, ctxErr(ctx)
		}
		if err := ctxErr(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := ctxErr(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Tail returns the most recent limit events without blocking.
func (h *Hub) Tail(limit int) ([]Event, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	start := len(h.buffer) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Event, len(h.buffer)-start)
	copy(out, h.buffer[start:])
	return out, h.nextSeq
}

func (h *Hub) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	startIdx := -1
	for i, evt := range h.buffer {
		if evt.Sequence > since {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil, h.nextSeq
	}
	end := startIdx + limit
	if end > len(h.buffer) {
		end = len(h.buffer)
	}
	out := make([]Event, end-startIdx)
	copy(out, h.buffer[startIdx:end])
	return out, h.nextSeq
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
