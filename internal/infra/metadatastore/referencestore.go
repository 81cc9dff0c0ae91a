package metadatastore

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// ReferenceStore persists link-only Reference rows for sensitive or
// non-parseable sources.
type ReferenceStore struct {
	pool *pgxpool.Pool
}

// NewReferenceStore constructs the repository.
func NewReferenceStore(pool *pgxpool.Pool) *ReferenceStore {
	return &ReferenceStore{pool: pool}
}

// Create inserts a reference record.
func (s *ReferenceStore) Create(ctx context.Context, ref *ingest.Reference) error {
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO references_ (id, description, url, file_type, file_name, access_level, event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at
	`, ref.ID, nullIfEmpty(ref.Description), ref.URL, nullIfEmpty(ref.FileType), nullIfEmpty(ref.FileName), ref.AccessLevel, ref.EventID)
	return row.Scan(&ref.CreatedAt)
}

var _ ingest.ReferenceStore = (*ReferenceStore)(nil)
