package history

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. Entries are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	limit   int
	now     func() time.Time
}

// NewMemoryStore creates a store that keeps at most limit entries.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &MemoryStore{
		entries: make([]Entry, 0, limit),
		limit:   limit,
		now:     time.Now,
	}
}

// Add records entry as the newest one, dropping the oldest beyond the limit.
func (s *MemoryStore) Add(_ context.Context, entry Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry = stamp(entry, s.now())
	s.entries = append([]Entry{entry}, s.entries...)
	if len(s.entries) > s.limit {
		s.entries = s.entries[:s.limit]
	}
	return entry, nil
}

// List returns a copy of the entries, newest first.
func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Get returns the entry with the given ID.
func (s *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

// Clear removes every entry.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.entries = s.entries[:0]
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
