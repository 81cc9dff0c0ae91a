// Package sessioncache implements ingest.SessionCache (C8): a bounded FIFO
// of recent conversation turns per session, with TTL-based expiry.
package sessioncache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// ValkeyStore persists session turn history in a Valkey-compatible database.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore constructs a store backed by Valkey.
func NewValkeyStore(client valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = "session"
	}
	return &ValkeyStore{client: client, prefix: prefix}
}

// Append pushes a turn onto the session's list, trims it to windowSize, and
// refreshes the TTL.
func (s *ValkeyStore) Append(ctx context.Context, sessionID string, turn ingest.ConversationTurn, windowSize int, ttl time.Duration) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	key := s.key(sessionID)
	if err := s.client.Do(ctx, s.client.B().Rpush().Key(key).Element(string(payload)).Build()).Error(); err != nil {
		return err
	}
	if windowSize > 0 {
		if err := s.client.Do(ctx, s.client.B().Ltrim().Key(key).Start(int64(-windowSize)).Stop(-1).Build()).Error(); err != nil {
			return err
		}
	}
	if ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		return s.client.Do(ctx, s.client.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build()).Error()
	}
	return nil
}

// Recent returns the session's stored turns, oldest first.
func (s *ValkeyStore) Recent(ctx context.Context, sessionID string) ([]ingest.ConversationTurn, error) {
	resp := s.client.Do(ctx, s.client.B().Lrange().Key(s.key(sessionID)).Start(0).Stop(-1).Build())
	raw, err := resp.ToArray()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	turns := make([]ingest.ConversationTurn, 0, len(raw))
	for _, item := range raw {
		payload, err := item.ToString()
		if err != nil {
			return nil, err
		}
		var turn ingest.ConversationTurn
		if err := json.Unmarshal([]byte(payload), &turn); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Delete clears a session's stored history.
func (s *ValkeyStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(s.key(sessionID)).Build()).Error()
}

func (s *ValkeyStore) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, sessionID)
}

var _ ingest.SessionCache = (*ValkeyStore)(nil)
