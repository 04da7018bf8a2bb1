package hitcounter

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/hitcounter/core"
)

// Registry holds one SlidingWindowCounter per key, all sharing the same
// window policy. Counters are created on first use and evicted once idle for
// longer than the cleanup age. It is safe for concurrent use.
type Registry struct {
	window     *core.SlidingWindow
	logger     *zap.Logger
	cleanupAge time.Duration // 0 disables eviction
	now        func() time.Time

	mu          sync.RWMutex
	counters    map[string]*counterEntry
	lastCleanup time.Time
}

// counterEntry wraps a counter with metadata for cleanup.
type counterEntry struct {
	counter      *SlidingWindowCounter
	mu           sync.Mutex // Protects lastAccessed
	lastAccessed time.Time
}

func (e *counterEntry) touch(now time.Time) {
	e.mu.Lock()
	e.lastAccessed = now
	e.mu.Unlock()
}

func (e *counterEntry) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAccessed
}

// NewRegistry creates a registry whose counters use the default policy of
// the resolved configuration.
func NewRegistry(opts ...Option) (*Registry, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	window, err := newWindow(s.config.Defaults)
	if err != nil {
		return nil, err
	}
	cleanupAge, err := s.resolveCleanupAge()
	if err != nil {
		return nil, err
	}
	return newRegistry(window, cleanupAge, s.logger), nil
}

func newRegistry(window *core.SlidingWindow, cleanupAge time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		window:     window,
		logger:     logger,
		cleanupAge: cleanupAge,
		now:        time.Now,
		counters:   make(map[string]*counterEntry),
	}
}

// Counter returns the counter for key, creating it if needed.
func (r *Registry) Counter(key string) (*SlidingWindowCounter, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	// fast path, counter exists. Touched under the read lock so a concurrent
	// Cleanup cannot evict it in between.
	r.mu.RLock()
	entry, exists := r.counters[key]
	if exists {
		entry.touch(r.now())
	}
	r.mu.RUnlock()
	if exists {
		return entry.counter, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// another goroutine might have created it
	if entry, exists = r.counters[key]; exists {
		entry.touch(r.now())
		return entry.counter, nil
	}

	entry = &counterEntry{
		counter:      newCounter(r.window, r.logger.With(zap.String("key", key))),
		lastAccessed: r.now(),
	}
	r.counters[key] = entry
	return entry.counter, nil
}

// Lookup returns the counter for key without creating one.
func (r *Registry) Lookup(key string) (*SlidingWindowCounter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, exists := r.counters[key]
	if !exists {
		return nil, false
	}
	entry.touch(r.now())
	return entry.counter, true
}

// Remove deletes the counter for key. Reports whether it existed.
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.counters[key]
	delete(r.counters, key)
	return exists
}

// Cleanup removes counters that haven't been accessed within the cleanup
// age. Returns the number of counters removed.
func (r *Registry) Cleanup() int {
	if r.cleanupAge == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.cleanupAge)
	removed := 0
	for key, entry := range r.counters {
		if entry.idleSince().Before(cutoff) {
			delete(r.counters, key)
			removed++
		}
	}
	r.lastCleanup = now

	if removed > 0 {
		r.logger.Debug("idle counters removed", zap.Int("removed", removed), zap.Int("remaining", len(r.counters)))
	}
	return removed
}

// LastCleanup returns when Cleanup last ran, zero if it never has.
func (r *Registry) LastCleanup() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastCleanup
}

// Count returns the number of counters in the registry.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.counters)
}

// Keys returns the keys currently held.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.counters))
	for key := range r.counters {
		keys = append(keys, key)
	}
	return keys
}

// Window returns the window policy shared by the registry's counters.
func (r *Registry) Window() *core.SlidingWindow {
	return r.window
}

// StartBackgroundCleanup starts a goroutine that periodically removes idle
// counters. The returned function stops it and waits for it to exit; calling
// it more than once is safe.
func (r *Registry) StartBackgroundCleanup(interval time.Duration) func() {
	if r.cleanupAge == 0 || interval == 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Cleanup()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}
