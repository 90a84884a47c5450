package tools

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown actions or connections.
var ErrNotFound = errors.New("tools: not found")

// Store is the admin-side persistence interface. The execution path only
// uses the read side (ListActions, GetConnection).
type Store interface {
	CreateAction(ctx context.Context, action Action) (Action, error)
	ListActions(ctx context.Context, projectID string) ([]Action, error)
	CreateConnection(ctx context.Context, conn Connection) (Connection, error)
	ListConnections(ctx context.Context, projectID string) ([]Connection, error)
	GetConnection(ctx context.Context, projectID, connectionID string) (Connection, error)
}

// MemoryStore keeps actions and connections in process memory, preserving
// insertion order per project. Used by tests and local development.
type MemoryStore struct {
	mu          sync.RWMutex
	actions     map[string][]Action     // projectID -> insertion order
	connections map[string][]Connection // projectID -> insertion order
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actions:     make(map[string][]Action),
		connections: make(map[string][]Connection),
	}
}

func (s *MemoryStore) CreateAction(ctx context.Context, action Action) (Action, error) {
	if err := action.Validate(); err != nil {
		return Action{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.actions[action.ProjectID] {
		if existing.Name == action.Name {
			return Action{}, errors.New("tools: action name already exists for project")
		}
	}
	action.ID = uuid.NewString()
	action.CreatedAt = time.Now().UTC()
	s.actions[action.ProjectID] = append(s.actions[action.ProjectID], action)
	return action, nil
}

func (s *MemoryStore) ListActions(ctx context.Context, projectID string) ([]Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Action, len(s.actions[projectID]))
	copy(out, s.actions[projectID])
	return out, nil
}

func (s *MemoryStore) CreateConnection(ctx context.Context, conn Connection) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn.ID = uuid.NewString()
	conn.CreatedAt = time.Now().UTC()
	s.connections[conn.ProjectID] = append(s.connections[conn.ProjectID], conn)
	return conn, nil
}

func (s *MemoryStore) ListConnections(ctx context.Context, projectID string) ([]Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Connection, len(s.connections[projectID]))
	copy(out, s.connections[projectID])
	return out, nil
}

func (s *MemoryStore) GetConnection(ctx context.Context, projectID, connectionID string) (Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conn := range s.connections[projectID] {
		if conn.ID == connectionID {
			return conn, nil
		}
	}
	return Connection{}, ErrNotFound
}
