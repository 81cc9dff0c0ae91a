package metadatastore

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// ChatLogStore appends one row per conversational turn. Rows are never
// updated or deleted; history is rebuilt by replaying session_id order.
type ChatLogStore struct {
	pool *pgxpool.Pool
}

// NewChatLogStore constructs the repository.
func NewChatLogStore(pool *pgxpool.Pool) *ChatLogStore {
	return &ChatLogStore{pool: pool}
}

// Append inserts a chat log row.
func (s *ChatLogStore) Append(ctx context.Context, log ingest.ChatLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	retrievedChunks, err := json.Marshal(log.RetrievedChunks)
	if err != nil {
		return err
	}
	citations, err := json.Marshal(log.Citations)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO chat_logs (
			id, session_id, user_level, raw_query, rewritten_query, assistant_response,
			retrieved_chunks, citations, turn_index, retrieval_latency_ms, generation_latency_ms,
			total_latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
	`, log.ID, log.SessionID, log.UserLevel, log.RawQuery, nullIfEmpty(log.RewrittenQuery), log.AssistantResponse,
		retrievedChunks, citations, log.TurnIndex, log.RetrievalLatencyMs, log.GenerationLatencyMs, log.TotalLatencyMs)
	return err
}

var _ ingest.ChatLogStore = (*ChatLogStore)(nil)
