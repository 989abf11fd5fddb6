// Package redissession implements session.Store backed by Redis. Each
// session's message log is stored as a Redis list of JSON-encoded
// session.Message values under "raaf:session:<id>:messages"; metadata is a
// Redis hash under "raaf:session:<id>:meta".
package redissession

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/raaf-ai/raaf-go/session"
)

// Store implements session.Store over a *redis.Client.
type Store struct {
	client    *redis.Client
	sessionID string
}

// New constructs a Store scoped to a single session id. Construct one
// instance per session (they are cheap; the underlying client is shared).
func New(client *redis.Client, sessionID string) *Store {
	return &Store{client: client, sessionID: sessionID}
}

func (s *Store) messagesKey() string { return fmt.Sprintf("raaf:session:%s:messages", s.sessionID) }
func (s *Store) metaKey() string     { return fmt.Sprintf("raaf:session:%s:meta", s.sessionID) }

// Messages returns the persisted conversation, oldest first.
func (s *Store) Messages(ctx context.Context) ([]session.Message, error) {
	raw, err := s.client.LRange(ctx, s.messagesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redissession: LRANGE %s: %w", s.messagesKey(), err)
	}
	out := make([]session.Message, 0, len(raw))
	for _, r := range raw {
		var msg session.Message
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			return nil, fmt.Errorf("redissession: decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// AddMessage appends one message to the session's Redis list.
func (s *Store) AddMessage(ctx context.Context, msg session.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redissession: encode message: %w", err)
	}
	if err := s.client.RPush(ctx, s.messagesKey(), b).Err(); err != nil {
		return fmt.Errorf("redissession: RPUSH %s: %w", s.messagesKey(), err)
	}
	return nil
}

// UpdateMetadata merges kv into the session's Redis hash, JSON-encoding
// non-string values.
func (s *Store) UpdateMetadata(ctx context.Context, kv map[string]any) error {
	if len(kv) == 0 {
		return nil
	}
	fields := make(map[string]any, len(kv))
	for k, v := range kv {
		if str, ok := v.(string); ok {
			fields[k] = str
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("redissession: encode metadata field %q: %w", k, err)
		}
		fields[k] = string(b)
	}
	if err := s.client.HSet(ctx, s.metaKey(), fields).Err(); err != nil {
		return fmt.Errorf("redissession: HSET %s: %w", s.metaKey(), err)
	}
	return nil
}
