package metadatastore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// ChunkStore persists DocumentChunk rows and runs pgvector similarity search.
type ChunkStore struct {
	pool *pgxpool.Pool
}

// NewChunkStore constructs the repository.
func NewChunkStore(pool *pgxpool.Pool) *ChunkStore {
	return &ChunkStore{pool: pool}
}

// InsertParentsAndChildren writes both chunk generations for a document in a
// single batch. Parents carry no embedding; children always do once Stage 7
// has run, and never before.
func (s *ChunkStore) InsertParentsAndChildren(ctx context.Context, parents, children []ingest.DocumentChunk) error {
	batch := &pgx.Batch{}
	for _, c := range parents {
		queueChunkInsert(batch, c)
	}
	for _, c := range children {
		queueChunkInsert(batch, c)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func queueChunkInsert(batch *pgx.Batch, c ingest.DocumentChunk) {
	metadata, _ := json.Marshal(c.Metadata)
	var embedding any
	if len(c.Embedding) > 0 {
		embedding = pgvector.NewVector(c.Embedding)
	}
	batch.Queue(`
		INSERT INTO document_chunks (
			id, document_id, parent_chunk_id, related_event_id, inferred_event_title, is_parent,
			chunk_index, chunk_type, content, parent_content, section_header, embedding,
			access_level, metadata, token_count, start_char, end_char, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now()
		)
	`, c.ID, c.DocumentID, c.ParentChunkID, c.RelatedEventID, nullIfEmpty(c.InferredEventTitle), c.IsParent,
		c.ChunkIndex, c.ChunkType, c.Content, nullIfEmpty(c.ParentContent), nullIfEmpty(c.SectionHeader), embedding,
		c.AccessLevel, metadata, c.TokenCount, c.StartChar, c.EndChar)
}

const chunkColumns = `
	id, document_id, parent_chunk_id, related_event_id, inferred_event_title, is_parent,
	chunk_index, chunk_type, content, parent_content, section_header, embedding,
	access_level, metadata, token_count, start_char, end_char, created_at
`

func scanChunk(row pgx.Row) (ingest.DocumentChunk, error) {
	var (
		c            ingest.DocumentChunk
		metadata     []byte
		embeddingRaw any
	)
	if err := row.Scan(
		&c.ID, &c.DocumentID, &c.ParentChunkID, &c.RelatedEventID, &c.InferredEventTitle, &c.IsParent,
		&c.ChunkIndex, &c.ChunkType, &c.Content, &c.ParentContent, &c.SectionHeader, &embeddingRaw,
		&c.AccessLevel, &metadata, &c.TokenCount, &c.StartChar, &c.EndChar, &c.CreatedAt,
	); err != nil {
		return ingest.DocumentChunk{}, err
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &c.Metadata)
	}
	if embeddingRaw != nil {
		embedding, err := normalizeEmbedding(embeddingRaw)
		if err != nil {
			return ingest.DocumentChunk{}, err
		}
		c.Embedding = embedding
	}
	return c, nil
}

// ListByDocument returns every chunk belonging to a document, split by generation.
func (s *ChunkStore) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]ingest.DocumentChunk, []ingest.DocumentChunk, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+chunkColumns+` FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var parents, children []ingest.DocumentChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, nil, err
		}
		if c.IsParent {
			parents = append(parents, c)
		} else {
			children = append(children, c)
		}
	}
	return parents, children, rows.Err()
}

// UpdateEnrichment writes Stage 6 enrichment output back onto existing rows:
// related event, inferred title and, for parents, the section header their
// children inherit.
func (s *ChunkStore) UpdateEnrichment(ctx context.Context, chunks []ingest.DocumentChunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		metadata, _ := json.Marshal(c.Metadata)
		batch.Queue(`
			UPDATE document_chunks SET
				related_event_id = $1, inferred_event_title = $2, section_header = $3, metadata = $4
			WHERE id = $5
		`, c.RelatedEventID, nullIfEmpty(c.InferredEventTitle), nullIfEmpty(c.SectionHeader), metadata, c.ID)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// EmbedBatch writes the embedding vector computed for a batch of child chunks.
func (s *ChunkStore) EmbedBatch(ctx context.Context, chunks []ingest.DocumentChunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`UPDATE document_chunks SET embedding = $1 WHERE id = $2`, pgvector.NewVector(c.Embedding), c.ID)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// CountWithoutEmbedding reports how many embeddable children still lack a
// vector, used to decide whether Stage 7 (embed) has finished for a document.
func (s *ChunkStore) CountWithoutEmbedding(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM document_chunks
		WHERE document_id = $1 AND is_parent = false AND embedding IS NULL
	`, documentID).Scan(&count)
	return count, err
}

// ListUnembeddedChildren pages through a document's embeddable children in
// fixed-size batches so Stage 7 can call the embedder in bounded-size requests.
func (s *ChunkStore) ListUnembeddedChildren(ctx context.Context, documentID uuid.UUID, batchSize int) ([][]ingest.DocumentChunk, error) {
	if batchSize <= 0 {
		batchSize = 64
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkColumns+` FROM document_chunks
		WHERE document_id = $1 AND is_parent = false AND embedding IS NULL
		ORDER BY chunk_index ASC
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []ingest.DocumentChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var batches [][]ingest.DocumentChunk
	for i := 0; i < len(all); i += batchSize {
		end := i + batchSize
		if end > len(all) {
			end = len(all)
		}
		batches = append(batches, all[i:end])
	}
	return batches, nil
}

// DeleteForDocument removes every chunk of a document, used by ReprocessDocument
// before Stage 5 (chunk) reruns.
func (s *ChunkStore) DeleteForDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

// Search runs pgvector cosine-distance similarity search against embeddable
// children only (is_parent = false), joined back to their owning document for
// filtering and to their parent for full context.
func (s *ChunkStore) Search(ctx context.Context, embedding []float32, filter ingest.SearchFilter) ([]ingest.SearchHit, error) {
	query := `
		SELECT ` + prefixColumns("c", chunkColumns) + `, ` + prefixColumns("d", documentColumns) + `,
			(c.embedding <=> $1) AS cosine_distance
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.is_parent = false AND c.embedding IS NOT NULL AND c.access_level >= $2
	`
	args := []any{pgvector.NewVector(embedding), filter.MinAccessLevel}
	pos := 3
	if filter.Year != nil {
		query += " AND d.year = $" + strconv.Itoa(pos)
		args = append(args, *filter.Year)
		pos++
	}
	if filter.Department != "" {
		query += " AND d.department = $" + strconv.Itoa(pos)
		args = append(args, filter.Department)
		pos++
	}
	if filter.DocType != nil {
		query += " AND d.doc_type = $" + strconv.Itoa(pos)
		args = append(args, *filter.DocType)
		pos++
	}
	query += " ORDER BY cosine_distance ASC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 64
	}
	query += " LIMIT $" + strconv.Itoa(pos)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chunk similarity search: %w", err)
	}
	defer rows.Close()

	var hits []ingest.SearchHit
	for rows.Next() {
		var (
			c              ingest.DocumentChunk
			doc            ingest.Document
			chunkMeta      []byte
			docMeta        []byte
			embeddingRaw   any
			cosineDistance float64
		)
		if err := rows.Scan(
			&c.ID, &c.DocumentID, &c.ParentChunkID, &c.RelatedEventID, &c.InferredEventTitle, &c.IsParent,
			&c.ChunkIndex, &c.ChunkType, &c.Content, &c.ParentContent, &c.SectionHeader, &embeddingRaw,
			&c.AccessLevel, &chunkMeta, &c.TokenCount, &c.StartChar, &c.EndChar, &c.CreatedAt,
			&doc.ID, &doc.EventID, &doc.DriveID, &doc.DriveName, &doc.Path, &doc.MimeType, &doc.BlobURL, &doc.DocType, &doc.Category,
			&doc.MeetingSubtype, &doc.AccessLevel, &doc.StandardizedName, &doc.TimeDecayDate, &doc.Department, &doc.Year,
			&doc.Status, &doc.RawContent, &doc.ParsedContent, &doc.PreprocessedContent, &docMeta, &doc.ErrorMessage,
			&doc.ProcessedAt, &doc.CurrentStep, &doc.CreatedAt, &doc.UpdatedAt,
			&cosineDistance,
		); err != nil {
			return nil, err
		}
		if len(chunkMeta) > 0 {
			_ = json.Unmarshal(chunkMeta, &c.Metadata)
		}
		if len(docMeta) > 0 {
			_ = json.Unmarshal(docMeta, &doc.Metadata)
		}
		if embeddingRaw != nil {
			if v, err := normalizeEmbedding(embeddingRaw); err == nil {
				c.Embedding = v
			}
		}
		hits = append(hits, ingest.SearchHit{
			Chunk:          c,
			Document:       doc,
			CosineDistance: cosineDistance,
			Score:          1.0 / (1.0 + cosineDistance),
		})
	}
	return hits, rows.Err()
}

// prefixColumns rewrites a bare column list into "alias.col, alias.col, ..."
// so the same constant can be reused across single- and joined-table queries.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// normalizeEmbedding decodes whatever shape the pgvector text codec handed
// back: pgvector's own Vector type, a float slice, or the raw "[0.1,0.2]"
// textual encoding depending on driver path taken.
func normalizeEmbedding(raw any) ([]float32, error) {
	switch v := raw.(type) {
	case pgvector.Vector:
		return append([]float32(nil), v.Slice()...), nil
	case []float32:
		return append([]float32(nil), v...), nil
	case []float64:
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out, nil
	case string:
		trimmed := strings.TrimSpace(v)
		trimmed = strings.TrimPrefix(trimmed, "[")
		trimmed = strings.TrimSuffix(trimmed, "]")
		if trimmed == "" {
			return nil, nil
		}
		parts := strings.Split(trimmed, ",")
		out := make([]float32, 0, len(parts))
		for _, p := range parts {
			numStr := strings.TrimSpace(p)
			if numStr == "" {
				continue
			}
			f, err := strconv.ParseFloat(numStr, 32)
			if err != nil {
				return nil, err
			}
			out = append(out, float32(f))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported embedding type %T", raw)
	}
}

var _ ingest.ChunkStore = (*ChunkStore)(nil)
