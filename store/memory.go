package store

import (
	"context"
	"sync"

	"github.com/yourusername/hitcounter/core"
)

// MemoryStore provides thread-safe in-memory storage for hit logs.
// Updates to different keys do not block each other.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string]*memoryEntry
}

type memoryEntry struct {
	mu  sync.Mutex
	log *core.HitLog
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) entry(key string) *memoryEntry {
	s.mu.RLock()
	e, ok := s.logs[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.logs[key]; !ok {
		e = &memoryEntry{log: &core.HitLog{}}
		s.logs[key] = e
	}
	return e
}

// Get returns a copy of the log for key.
func (s *MemoryStore) Get(_ context.Context, key string) (*core.HitLog, error) {
	s.mu.RLock()
	e, ok := s.logs[key]
	s.mu.RUnlock()
	if !ok {
		return &core.HitLog{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.Clone(), nil
}

// Update runs fn on a copy of the log for key under the key's lock.
func (s *MemoryStore) Update(ctx context.Context, key string, fn UpdateFunc) (*core.HitLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	updated, err := fn(e.log.Clone())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = &core.HitLog{}
	}
	e.log = updated
	return updated.Clone(), nil
}

// Delete removes the log for key
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.logs, key)
	s.mu.Unlock()
	return nil
}

// Clear removes all logs
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.logs = make(map[string]*memoryEntry)
	s.mu.Unlock()
	return nil
}

// Len returns the number of keys held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs)
}
