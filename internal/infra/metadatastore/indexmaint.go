package metadatastore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RebuildHNSWIndex drops and recreates the HNSW index backing C7's cosine
// search, picking up the latest m/ef_construction tuning values. It runs the
// rebuild outside a transaction (CONCURRENTLY) so search traffic keeps
// working off the old index until the new one is ready.
func RebuildHNSWIndex(ctx context.Context, pool *pgxpool.Pool, m, efConstruction int) error {
	if m <= 0 {
		m = 16
	}
	if efConstruction <= 0 {
		efConstruction = 64
	}

	if _, err := pool.Exec(ctx, `DROP INDEX CONCURRENTLY IF EXISTS idx_document_chunks_embedding_hnsw_next`); err != nil {
		return fmt.Errorf("drop stale hnsw index: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE INDEX CONCURRENTLY idx_document_chunks_embedding_hnsw_next
			ON document_chunks
			USING hnsw (embedding vector_cosine_ops)
			WITH (m = %d, ef_construction = %d)
			WHERE is_parent = false
	`, m, efConstruction)
	if _, err := pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create hnsw index: %w", err)
	}

	if _, err := pool.Exec(ctx, `DROP INDEX CONCURRENTLY IF EXISTS idx_document_chunks_embedding_hnsw`); err != nil {
		return fmt.Errorf("drop hnsw index: %w", err)
	}
	if _, err := pool.Exec(ctx, `ALTER INDEX idx_document_chunks_embedding_hnsw_next RENAME TO idx_document_chunks_embedding_hnsw`); err != nil {
		return fmt.Errorf("rename hnsw index: %w", err)
	}
	return nil
}
