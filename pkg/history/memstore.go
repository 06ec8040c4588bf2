package history

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store for single-process deployments and tests.
// Each session keeps at most maxPerSession entries; older entries are evicted.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
	max      int
}

var _ Store = (*MemStore)(nil)

const defaultMaxPerSession = 256

// NewMemStore creates an empty MemStore. maxPerSession <= 0 selects the
// default of 256 entries.
func NewMemStore(maxPerSession int) *MemStore {
	if maxPerSession <= 0 {
		maxPerSession = defaultMaxPerSession
	}
	return &MemStore{
		sessions: make(map[string][]Entry),
		max:      maxPerSession,
	}
}

// Append implements Store.
func (s *MemStore) Append(ctx context.Context, sessionID string, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.sessions[sessionID], entry)
	if len(entries) > s.max {
		entries = entries[len(entries)-s.max:]
	}
	s.sessions[sessionID] = entries
	return nil
}

// Recent implements Store.
func (s *MemStore) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.sessions[sessionID]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}
