// Package cache provides a byte-budgeted LRU keyed by content fingerprint.
// Concurrent misses on the same key share one computation, and failed
// computations are cached negatively with bounded backoff so a bad asset
// cannot trigger a retry storm.
package cache

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"notisd/internal/logging"
)

// ErrComputeFailed wraps compute errors, including ones replayed from the
// negative cache.
var ErrComputeFailed = errors.New("cache compute failed")

const (
	negativeBaseTTL = 2 * time.Second
	negativeMaxTTL  = 2 * time.Minute
)

type entry[V any] struct {
	key      string
	value    V
	size     int64
	err      error // non-nil marks a negative entry
	expires  time.Time
	failures int
}

type call[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Cache is an LRU bounded by total value bytes rather than entry count.
type Cache[V any] struct {
	logger *slog.Logger

	mu       sync.Mutex
	budget   int64
	used     int64
	ll       *list.List // front = most recently used
	items    map[string]*list.Element
	inflight map[string]*call[V]
}

// New builds a cache. name tags log lines; budget is the resident byte limit.
func New[V any](name string, budget int64, logger *slog.Logger) *Cache[V] {
	return &Cache[V]{
		logger:   logging.NewComponentLogger(logger, "cache-"+name),
		budget:   budget,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		inflight: make(map[string]*call[V]),
	}
}

// GetOrCompute returns the cached value for key, computing it at most once
// across concurrent callers. compute reports the value's resident size in
// bytes. A compute failure is remembered and replayed until its backoff
// window lapses.
func (c *Cache[V]) GetOrCompute(key string, compute func() (V, int64, error)) (V, error) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		if e.err == nil {
			c.ll.MoveToFront(el)
			v := e.value
			c.mu.Unlock()
			return v, nil
		}
		if time.Now().Before(e.expires) {
			err := e.err
			c.mu.Unlock()
			var zero V
			return zero, err
		}
		// Backoff lapsed: retry, keeping the failure count for the next
		// backoff step.
	}

	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-cl.done
		return cl.value, cl.err
	}

	cl := &call[V]{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	value, size, err := compute()

	c.mu.Lock()
	delete(c.inflight, key)
	if err != nil {
		wrapped := fmt.Errorf("%w: %s: %w", ErrComputeFailed, key, err)
		cl.err = wrapped
		c.storeNegativeLocked(key, wrapped)
		c.mu.Unlock()
		close(cl.done)
		var zero V
		return zero, wrapped
	}
	cl.value = value
	c.storeLocked(key, value, size)
	c.mu.Unlock()
	close(cl.done)
	return value, nil
}

// Get returns a cached value without computing.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		if e.err == nil {
			c.ll.MoveToFront(el)
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

// Remove drops one key.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Purge drops everything, including negative entries.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.used = 0
}

// SetBudget replaces the byte budget and evicts down to it.
func (c *Cache[V]) SetBudget(budget int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budget = budget
	c.evictLocked()
}

// Used reports resident bytes.
func (c *Cache[V]) Used() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Len reports entry count, negative entries included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache[V]) storeLocked(key string, value V, size int64) {
	if size < 0 {
		size = 0
	}
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
	if c.budget > 0 && size > c.budget {
		// Larger than the whole budget: hand it to the caller uncached.
		c.logger.Debug("value exceeds cache budget, not cached",
			logging.String("key", key),
			logging.Int64("size", size))
		return
	}
	e := &entry[V]{key: key, value: value, size: size}
	c.items[key] = c.ll.PushFront(e)
	c.used += size
	c.evictLocked()
}

func (c *Cache[V]) storeNegativeLocked(key string, err error) {
	failures := 1
	if el, ok := c.items[key]; ok {
		prev := el.Value.(*entry[V])
		if prev.err != nil {
			failures = prev.failures + 1
		}
		c.removeLocked(el)
	}
	ttl := negativeBaseTTL << (failures - 1)
	if ttl > negativeMaxTTL || ttl <= 0 {
		ttl = negativeMaxTTL
	}
	e := &entry[V]{key: key, err: err, expires: time.Now().Add(ttl), failures: failures}
	c.items[key] = c.ll.PushFront(e)
}

func (c *Cache[V]) evictLocked() {
	if c.budget <= 0 {
		return
	}
	for c.used > c.budget {
		el := c.ll.Back()
		if el == nil {
			return
		}
		c.removeLocked(el)
	}
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	e := el.Value.(*entry[V])
	c.ll.Remove(el)
	delete(c.items, e.key)
	c.used -= e.size
}
