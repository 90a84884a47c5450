package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	messages  []Message
	expiresAt time.Time
}

// MemoryStore is an in-process Store used by tests and single-node
// deployments without redis. Same cap and TTL semantics as RedisStore.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
	now      func() time.Time
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memoryEntry), now: time.Now}
}

func (s *MemoryStore) History(ctx context.Context, projectID, sessionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.live(projectID, sessionID)
	if entry == nil {
		return nil
	}
	out := make([]Message, len(entry.messages))
	copy(out, entry.messages)
	return out
}

func (s *MemoryStore) Append(ctx context.Context, projectID, sessionID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(projectID, sessionID)
	entry := s.live(projectID, sessionID)
	if entry == nil {
		entry = &memoryEntry{}
		s.sessions[key] = entry
	}
	entry.messages = append(entry.messages, Message{Role: role, Content: content})
	if len(entry.messages) > MaxHistory {
		entry.messages = entry.messages[len(entry.messages)-MaxHistory:]
	}
	entry.expiresAt = s.now().Add(TTL)
}

func (s *MemoryStore) Clear(ctx context.Context, projectID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(projectID, sessionID))
	return nil
}

// live returns the entry if present and not expired; expired entries are
// reaped on access. Callers must hold the lock.
func (s *MemoryStore) live(projectID, sessionID string) *memoryEntry {
	key := sessionKey(projectID, sessionID)
	entry, ok := s.sessions[key]
	if !ok {
		return nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.sessions, key)
		return nil
	}
	return entry
}
