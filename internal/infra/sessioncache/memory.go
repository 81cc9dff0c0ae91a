package sessioncache

import (
	"context"
	"sync"
	"time"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

type sessionEntry struct {
	turns     []ingest.ConversationTurn
	expiresAt time.Time
}

// MemoryStore is an in-process SessionCache used for tests and single-node
// development, following the same bounded-FIFO-plus-TTL contract as ValkeyStore.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
}

// NewMemoryStore constructs a store backed by process memory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]sessionEntry)}
}

// Append implements ingest.SessionCache.
func (s *MemoryStore) Append(_ context.Context, sessionID string, turn ingest.ConversationTurn, windowSize int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.sessions[sessionID]
	if hasExpired(entry.expiresAt) {
		entry = sessionEntry{}
	}
	entry.turns = append(entry.turns, turn)
	if windowSize > 0 && len(entry.turns) > windowSize {
		entry.turns = entry.turns[len(entry.turns)-windowSize:]
	}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.sessions[sessionID] = entry
	return nil
}

// Recent implements ingest.SessionCache.
func (s *MemoryStore) Recent(_ context.Context, sessionID string) ([]ingest.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok || hasExpired(entry.expiresAt) {
		return nil, nil
	}
	out := make([]ingest.ConversationTurn, len(entry.turns))
	copy(out, entry.turns)
	return out, nil
}

// Delete implements ingest.SessionCache.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func hasExpired(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return ts.Before(time.Now())
}

var _ ingest.SessionCache = (*MemoryStore)(nil)
