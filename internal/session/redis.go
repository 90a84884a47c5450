package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL is how long an idle session survives. Every append resets it.
const TTL = 24 * time.Hour

// RedisStore keeps conversation history in redis under
// chat_session:{project}:{session}, one JSON array per session.
type RedisStore struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client, logger *log.Logger) *RedisStore {
	if logger == nil {
		logger = log.New(log.Writer(), "[SESSION] ", log.LstdFlags)
	}
	return &RedisStore{client: client, logger: logger}
}

func sessionKey(projectID, sessionID string) string {
	return fmt.Sprintf("chat_session:%s:%s", projectID, sessionID)
}

// History returns the stored history, treating every failure as an empty
// session so the caller degrades to stateless mode.
func (s *RedisStore) History(ctx context.Context, projectID, sessionID string) []Message {
	raw, err := s.client.Get(ctx, sessionKey(projectID, sessionID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Printf("history read failed for %s/%s: %v", projectID, sessionID, err)
		}
		return nil
	}
	var history []Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		s.logger.Printf("history decode failed for %s/%s: %v", projectID, sessionID, err)
		return nil
	}
	return history
}

// Append performs the read-modify-write cycle: load, append, truncate to
// MaxHistory, write back with a fresh TTL.
func (s *RedisStore) Append(ctx context.Context, projectID, sessionID, role, content string) {
	history := s.History(ctx, projectID, sessionID)
	history = append(history, Message{Role: role, Content: content})
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	data, err := json.Marshal(history)
	if err != nil {
		s.logger.Printf("history encode failed for %s/%s: %v", projectID, sessionID, err)
		return
	}
	if err := s.client.Set(ctx, sessionKey(projectID, sessionID), data, TTL).Err(); err != nil {
		s.logger.Printf("history write failed for %s/%s: %v", projectID, sessionID, err)
	}
}

// Clear drops the session.
func (s *RedisStore) Clear(ctx context.Context, projectID, sessionID string) error {
	return s.client.Del(ctx, sessionKey(projectID, sessionID)).Err()
}
