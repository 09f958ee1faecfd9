package watchers

import (
	"sort"
	"sync"
	"time"
)

// Result is the last-known value of one watcher. The manager is the only
// writer; the panel and CLI read snapshots.
type Result struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	ExitCode  int       `json:"exit_code"`
	UpdatedAt time.Time `json:"updated_at"`
	// Stale marks a value whose refresh failed or timed out. The value
	// itself is the last good one, never cleared.
	Stale bool `json:"stale"`
}

// Board holds watcher results, single-writer/multi-reader.
type Board struct {
	mu       sync.RWMutex
	results  map[string]Result
	onUpdate func(Result)
}

// NewBoard builds an empty board. onUpdate fires after every write; it may be
// nil.
func NewBoard(onUpdate func(Result)) *Board {
	return &Board{
		results:  make(map[string]Result),
		onUpdate: onUpdate,
	}
}

// Set records a fresh value.
func (b *Board) Set(name, value string, exitCode int) {
	b.mu.Lock()
	res := Result{
		Name:      name,
		Value:     value,
		ExitCode:  exitCode,
		UpdatedAt: time.Now().UTC(),
	}
	b.results[name] = res
	b.mu.Unlock()
	if b.onUpdate != nil {
		b.onUpdate(res)
	}
}

// MarkStale flags a watcher's last value as stale without clearing it. A
// watcher that has never produced a value gets an empty stale placeholder.
func (b *Board) MarkStale(name string) {
	b.mu.Lock()
	res, ok := b.results[name]
	if !ok {
		res = Result{Name: name, UpdatedAt: time.Now().UTC()}
	}
	res.Stale = true
	b.results[name] = res
	b.mu.Unlock()
	if b.onUpdate != nil {
		b.onUpdate(res)
	}
}

// Remove drops a watcher's result entirely.
func (b *Board) Remove(name string) {
	b.mu.Lock()
	delete(b.results, name)
	b.mu.Unlock()
}

// Get returns one result.
func (b *Board) Get(name string) (Result, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	res, ok := b.results[name]
	return res, ok
}

// Snapshot returns all results sorted by name.
func (b *Board) Snapshot() []Result {
	b.mu.RLock()
	out := make([]Result, 0, len(b.results))
	for _, res := range b.results {
		out = append(out, res)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
