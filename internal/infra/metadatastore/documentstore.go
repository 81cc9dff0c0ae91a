package metadatastore

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// DocumentStore persists Document rows in Postgres.
type DocumentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore constructs the repository.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// Upsert inserts a new document or updates an existing one matched by drive id.
func (s *DocumentStore) Upsert(ctx context.Context, doc *ingest.Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return err
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO documents (
			id, event_id, drive_id, drive_name, path, mime_type, blob_url, doc_type, category,
			meeting_subtype, access_level, standardized_name, time_decay_date, department, year,
			status, raw_content, parsed_content, preprocessed_content, metadata, error_message,
			processed_at, current_step, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, now(), now()
		)
		ON CONFLICT (drive_id) DO UPDATE SET
			drive_name = EXCLUDED.drive_name,
			path = EXCLUDED.path,
			mime_type = EXCLUDED.mime_type,
			doc_type = EXCLUDED.doc_type,
			updated_at = now()
		RETURNING id, created_at, updated_at
	`,
		doc.ID, doc.EventID, doc.DriveID, doc.DriveName, doc.Path, doc.MimeType, nullIfEmpty(doc.BlobURL), doc.DocType, doc.Category,
		doc.MeetingSubtype, doc.AccessLevel, doc.StandardizedName, doc.TimeDecayDate, nullIfEmpty(doc.Department), doc.Year,
		doc.Status, doc.RawContent, doc.ParsedContent, doc.PreprocessedContent, metadata, doc.ErrorMessage,
		doc.ProcessedAt, doc.CurrentStep,
	)
	return row.Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
}

func (s *DocumentStore) scanRow(row pgx.Row) (ingest.Document, error) {
	var (
		doc      ingest.Document
		metadata []byte
	)
	if err := row.Scan(
		&doc.ID, &doc.EventID, &doc.DriveID, &doc.DriveName, &doc.Path, &doc.MimeType, &doc.BlobURL, &doc.DocType, &doc.Category,
		&doc.MeetingSubtype, &doc.AccessLevel, &doc.StandardizedName, &doc.TimeDecayDate, &doc.Department, &doc.Year,
		&doc.Status, &doc.RawContent, &doc.ParsedContent, &doc.PreprocessedContent, &metadata, &doc.ErrorMessage,
		&doc.ProcessedAt, &doc.CurrentStep, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return ingest.Document{}, err
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &doc.Metadata)
	}
	return doc, nil
}

const documentColumns = `
	id, event_id, drive_id, drive_name, path, mime_type, blob_url, doc_type, category,
	meeting_subtype, access_level, standardized_name, time_decay_date, department, year,
	status, raw_content, parsed_content, preprocessed_content, metadata, error_message,
	processed_at, current_step, created_at, updated_at
`

// Get fetches a document by id.
func (s *DocumentStore) Get(ctx context.Context, id uuid.UUID) (ingest.Document, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := s.scanRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ingest.Document{}, false, nil
		}
		return ingest.Document{}, false, err
	}
	return doc, true, nil
}

// GetByDriveID fetches a document by its originating drive file id.
func (s *DocumentStore) GetByDriveID(ctx context.Context, driveID string) (ingest.Document, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE drive_id = $1`, driveID)
	doc, err := s.scanRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ingest.Document{}, false, nil
		}
		return ingest.Document{}, false, err
	}
	return doc, true, nil
}

// UpdateStage persists the document's state after a pipeline stage runs.
func (s *DocumentStore) UpdateStage(ctx context.Context, doc ingest.Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE documents SET
			event_id = $1, category = $2, meeting_subtype = $3, standardized_name = $4,
			access_level = $5, time_decay_date = $6, department = $7, year = $8, status = $9,
			parsed_content = $10, preprocessed_content = $11, metadata = $12, error_message = $13,
			processed_at = $14, current_step = $15, updated_at = now()
		WHERE id = $16
	`, doc.EventID, doc.Category, doc.MeetingSubtype, doc.StandardizedName,
		doc.AccessLevel, doc.TimeDecayDate, nullIfEmpty(doc.Department), doc.Year, doc.Status,
		doc.ParsedContent, doc.PreprocessedContent, metadata, doc.ErrorMessage,
		doc.ProcessedAt, doc.CurrentStep, doc.ID)
	return err
}

// MarkFailed records a pipeline failure.
func (s *DocumentStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = 'failed', error_message = $1, updated_at = now() WHERE id = $2
	`, reason, id)
	return err
}

// ClearDownstream rewinds current_step to before fromStep, sets the status
// back to processing, clears error_message and processed_at, and nulls
// parsed_content (fromStep <= 3) and preprocessed_content (fromStep <= 4).
// Other fields keep their values until the rerun stages overwrite them.
func (s *DocumentStore) ClearDownstream(ctx context.Context, id uuid.UUID, fromStep int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET
			current_step = LEAST(current_step, $1 - 1),
			status = 'processing',
			error_message = NULL,
			processed_at = NULL,
			parsed_content = CASE WHEN $1 <= 3 THEN NULL ELSE parsed_content END,
			preprocessed_content = CASE WHEN $1 <= 4 THEN NULL ELSE preprocessed_content END,
			updated_at = now()
		WHERE id = $2
	`, fromStep, id)
	return err
}

// List returns documents matching filter, along with the total match count.
func (s *DocumentStore) List(ctx context.Context, filter ingest.DocumentFilter) ([]ingest.Document, int, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	countQuery := `SELECT count(*) FROM documents WHERE 1=1`
	var args []any
	pos := 1

	addFilter := func(clause string, value any) {
		query += clause + strconv.Itoa(pos)
		countQuery += clause + strconv.Itoa(pos)
		args = append(args, value)
		pos++
	}
	if filter.Year != nil {
		addFilter(" AND year = $", *filter.Year)
	}
	if filter.Department != "" {
		addFilter(" AND department = $", filter.Department)
	}
	if filter.DocType != nil {
		addFilter(" AND doc_type = $", *filter.DocType)
	}
	if filter.Status != nil {
		addFilter(" AND status = $", *filter.Status)
	}

	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT $" + strconv.Itoa(pos)
	args = append(args, limit)
	pos++
	query += " OFFSET $" + strconv.Itoa(pos)
	args = append(args, filter.Skip)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []ingest.Document
	for rows.Next() {
		doc, err := s.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ ingest.DocumentStore = (*DocumentStore)(nil)
