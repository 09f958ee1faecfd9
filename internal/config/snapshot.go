package config

import (
	"sync"
	"sync/atomic"
)

// Store holds the live config snapshot. Replace swaps the pointer atomically,
// so readers holding an old snapshot keep a consistent view until they drop
// it. Subscribers are invoked after each successful swap.
type Store struct {
	current atomic.Pointer[Config]

	mu   sync.Mutex
	subs map[int]func(*Config)
	next int
}

// NewStore creates a snapshot store seeded with the given config.
func NewStore(cfg *Config) *Store {
	s := &Store{subs: make(map[int]func(*Config))}
	s.current.Store(cfg)
	return s
}

// Current returns the live snapshot. The returned value must be treated as
// immutable.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Replace publishes a new snapshot and notifies subscribers in registration
// order.
func (s *Store) Replace(cfg *Config) {
	if cfg == nil {
		return
	}
	s.current.Store(cfg)

	s.mu.Lock()
	subs := make([]func(*Config), 0, len(s.subs))
	for i := 0; i < s.next; i++ {
		if fn, ok := s.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}
}

// Subscribe registers a callback for snapshot replacements and returns a
// cancel function.
func (s *Store) Subscribe(fn func(*Config)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
