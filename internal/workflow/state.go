package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateTTL is how long an idle workflow survives. Every save resets it.
const StateTTL = 24 * time.Hour

// State is the per-session execution position, persisted between turns.
// Field names are part of the wire format shared with workflow clients.
type State struct {
	CurrentNodeID    string         `json:"currentNodeId"`
	Variables        map[string]any `json:"variables"`
	ExecutionHistory []string       `json:"executionHistory"`
	UserInput        string         `json:"userInput,omitempty"`
}

// StateStore persists workflow state keyed by (project, session).
type StateStore interface {
	// Load returns the stored state, or nil when absent or expired.
	Load(ctx context.Context, projectID, sessionID string) (*State, error)
	// Save writes the state with a fresh TTL.
	Save(ctx context.Context, projectID, sessionID string, state *State) error
	// Reset deletes the state so the next turn starts the workflow over.
	Reset(ctx context.Context, projectID, sessionID string) error
}

// RedisStateStore keeps state in redis under workflow:{project}:{session}.
type RedisStateStore struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisStateStore wraps an existing redis client.
func NewRedisStateStore(client *redis.Client, logger *log.Logger) *RedisStateStore {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKFLOW] ", log.LstdFlags)
	}
	return &RedisStateStore{client: client, logger: logger}
}

func stateKey(projectID, sessionID string) string {
	return fmt.Sprintf("workflow:%s:%s", projectID, sessionID)
}

func (s *RedisStateStore) Load(ctx context.Context, projectID, sessionID string) (*State, error) {
	raw, err := s.client.Get(ctx, stateKey(projectID, sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load workflow state: %w", err)
	}
	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode workflow state: %w", err)
	}
	return &state, nil
}

func (s *RedisStateStore) Save(ctx context.Context, projectID, sessionID string, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode workflow state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(projectID, sessionID), data, StateTTL).Err(); err != nil {
		return fmt.Errorf("save workflow state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Reset(ctx context.Context, projectID, sessionID string) error {
	return s.client.Del(ctx, stateKey(projectID, sessionID)).Err()
}

// MemoryStateStore is the in-process StateStore used by tests and
// single-node deployments without redis. Entries never expire.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewMemoryStateStore builds an empty in-memory store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*State)}
}

func (s *MemoryStateStore) Load(ctx context.Context, projectID, sessionID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[stateKey(projectID, sessionID)]
	if !ok {
		return nil, nil
	}
	clone := *state
	return &clone, nil
}

func (s *MemoryStateStore) Save(ctx context.Context, projectID, sessionID string, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *state
	s.states[stateKey(projectID, sessionID)] = &clone
	return nil
}

func (s *MemoryStateStore) Reset(ctx context.Context, projectID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, stateKey(projectID, sessionID))
	return nil
}
