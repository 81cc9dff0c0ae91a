package metadatastore

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// EventStore persists Event rows and resolves the fuzzy title matches Stage 6
// uses to reconcile a chunk against an existing event rather than minting a
// duplicate.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore constructs the repository.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventColumns = `
	id, title, normalized_title, year, start_date, end_date, category, department, status,
	decision_summaries, action_items, created_at, updated_at
`

func scanEvent(row pgx.Row) (ingest.Event, error) {
	var (
		ev                ingest.Event
		decisionSummaries []byte
		actionItems       []byte
		normalizedTitle   string
	)
	if err := row.Scan(
		&ev.ID, &ev.Title, &normalizedTitle, &ev.Year, &ev.StartDate, &ev.EndDate, &ev.Category, &ev.Department, &ev.Status,
		&decisionSummaries, &actionItems, &ev.CreatedAt, &ev.UpdatedAt,
	); err != nil {
		return ingest.Event{}, err
	}
	_ = json.Unmarshal(decisionSummaries, &ev.DecisionSummaries)
	_ = json.Unmarshal(actionItems, &ev.ActionItems)
	return ev, nil
}

// FindByNormalizedTitle looks up an exact match on the normalized title whose
// year equals the given year or is unset.
func (s *EventStore) FindByNormalizedTitle(ctx context.Context, normalizedTitle string, year *int) (ingest.Event, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+eventColumns+` FROM events WHERE normalized_title = $1 AND (year IS NOT DISTINCT FROM $2 OR year IS NULL)
	`, normalizedTitle, year)
	ev, err := scanEvent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ingest.Event{}, false, nil
		}
		return ingest.Event{}, false, err
	}
	return ev, true, nil
}

// FindFuzzy scans candidate events sharing the same year and picks the one
// whose normalized title is closest by Levenshtein ratio, accepting it only
// if that ratio clears minRatio.
func (s *EventStore) FindFuzzy(ctx context.Context, normalizedTitle string, year *int, minRatio float64) (ingest.Event, bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM events WHERE year IS NOT DISTINCT FROM $1
	`, year)
	if err != nil {
		return ingest.Event{}, false, err
	}
	defer rows.Close()

	var (
		best      ingest.Event
		bestRatio float64
		found     bool
	)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return ingest.Event{}, false, err
		}
		ratio := titleSimilarity(normalizedTitle, normalizeTitle(ev.Title))
		if ratio > bestRatio {
			bestRatio = ratio
			best = ev
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return ingest.Event{}, false, err
	}
	if !found || bestRatio < minRatio {
		return ingest.Event{}, false, nil
	}
	return best, true, nil
}

// titleSimilarity converts Levenshtein edit distance into a 0..1 ratio, the
// same shape a %-match confidence score takes elsewhere in the system.
func titleSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}

// Create inserts a new event.
func (s *EventStore) Create(ctx context.Context, ev *ingest.Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	decisionSummaries, err := json.Marshal(ev.DecisionSummaries)
	if err != nil {
		return err
	}
	actionItems, err := json.Marshal(ev.ActionItems)
	if err != nil {
		return err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO events (
			id, title, normalized_title, year, start_date, end_date, category, department, status,
			decision_summaries, action_items, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING created_at, updated_at
	`, ev.ID, ev.Title, normalizeTitle(ev.Title), ev.Year, ev.StartDate, ev.EndDate, ev.Category, ev.Department, ev.Status,
		decisionSummaries, actionItems)
	return row.Scan(&ev.CreatedAt, &ev.UpdatedAt)
}

func normalizeTitle(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ' || r == '\t' || r == '\n':
			continue
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// ReconcileParentChunks recomputes an event's decision summaries and action
// items from its currently linked parent chunks. The events table has no
// chunk timeline or chunk-id columns, so neither is recorded. Called after
// every enrichment pass that attaches a new chunk to the event.
func (s *EventStore) ReconcileParentChunks(ctx context.Context, eventID uuid.UUID) error {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.metadata
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.related_event_id = $1 AND c.is_parent = true
		ORDER BY d.processed_at ASC NULLS LAST
	`, eventID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var (
		decisionSummaries []string
		actionItems       []string
	)
	for rows.Next() {
		var (
			chunkID, documentID uuid.UUID
			metaRaw             []byte
		)
		if err := rows.Scan(&chunkID, &documentID, &metaRaw); err != nil {
			return err
		}
		var meta struct {
			Summary     string   `json:"summary"`
			HasDecision bool     `json:"hasDecision"`
			ActionItems []string `json:"actionItems"`
		}
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &meta)
		}
		if meta.HasDecision && meta.Summary != "" {
			decisionSummaries = append(decisionSummaries, meta.Summary)
		}
		actionItems = append(actionItems, meta.ActionItems...)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	decisionJSON, err := json.Marshal(decisionSummaries)
	if err != nil {
		return err
	}
	actionJSON, err := json.Marshal(actionItems)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE events SET decision_summaries = $1, action_items = $2, updated_at = now() WHERE id = $3
	`, decisionJSON, actionJSON, eventID)
	return err
}

var _ ingest.EventStore = (*EventStore)(nil)
