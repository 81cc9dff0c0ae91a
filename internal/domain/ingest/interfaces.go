package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ObjectStore abstracts the blob store's two namespaces (C1): a per-run
// scratch directory and a durable object-storage bucket. Both namespaces
// satisfy the same contract so stage workers stay agnostic of which one
// backs a given key.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) (StoredObject, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// StoredObject captures persisted blob metadata.
type StoredObject struct {
	Key      string
	URL      string
	Size     int64
	MimeType string
}

// DriveFile is one file materialized by a folder sync.
type DriveFile struct {
	LocalPath string
	DriveID   string
	Name      string
	MimeType  string
	Size      int64
	EditedAt  time.Time
	// Reference is set when the file matched an exclude pattern or an
	// ignore-listed export type (online forms); such files are written to
	// Reference rows and never become Documents.
	Reference bool
	LinkURL   string
}

// DriveSync mirrors a remote folder to local scratch storage (C3).
type DriveSync interface {
	Sync(ctx context.Context, folderID, localDir string, includePatterns, excludePatterns []string, exportFormats map[string]string) ([]DriveFile, error)
}

// ParsedAsset is an inline image or table extracted by the document parser.
type ParsedAsset struct {
	ID        string
	Kind      string // "image" | "table"
	Page      int
	Bytes     []byte
}

// ParseResult is the normalized output of DocParser.Parse regardless of the
// adapter response shape observed upstream.
type ParseResult struct {
	Markdown string
	HTML     string
	Assets   []ParsedAsset
}

// DocParser converts a local file into markdown plus inline asset bytes (C3).
type DocParser interface {
	Parse(ctx context.Context, localPath string) (ParseResult, error)
}

// ClassifyResult is the LLM fallback classification for Stage 2.
type ClassifyResult struct {
	Category         DocCategory
	MeetingSubtype   *MeetingSubtype
	StandardizedName string
}

// SummarizeResult is the structured summary VisionLLM.SummarizeSection
// returns for one section.
type SummarizeResult struct {
	Summary     string
	HasDecision bool
	ActionItems []string
}

// InferredEvent is the LLM's best-effort read of which event a chunk belongs to.
type InferredEvent struct {
	Title      string
	Year       *int
	Department string
	Date       *time.Time
}

// VisionLLM is the narrow contract for every captioning/classification/
// generation call the pipeline and chat surface make against the vision+text
// model (C3). Every method degrades to a structured "unknown" response
// (soft_fallback) rather than erroring the caller when the upstream model
// refuses or returns malformed output; only transport-level failures surface
// as errors.
type VisionLLM interface {
	Caption(ctx context.Context, imageBytes []byte, hint string) (string, error)
	Classify(ctx context.Context, fileName, path string) (ClassifyResult, error)
	SummarizeSection(ctx context.Context, sectionText string, kind ChunkType) (SummarizeResult, error)
	RewriteQuery(ctx context.Context, history []ConversationTurn, newQuery string) (string, error)
	GenerateAnswer(ctx context.Context, query string, contextChunks []string) (string, error)
	InferEvent(ctx context.Context, chunkText string) (InferredEvent, error)
	RestructureSections(ctx context.Context, text string) (string, error)
}

// Embedder produces fixed-dimension embeddings for free-form text (C3).
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// DocumentStore persists Document rows (C2).
type DocumentStore interface {
	Upsert(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id uuid.UUID) (Document, bool, error)
	GetByDriveID(ctx context.Context, driveID string) (Document, bool, error)
	UpdateStage(ctx context.Context, doc Document) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ClearDownstream(ctx context.Context, id uuid.UUID, fromStep int) error
	List(ctx context.Context, filter DocumentFilter) ([]Document, int, error)
}

// ChunkStore persists DocumentChunk rows and supports pgvector similarity
// search (C2/C7).
type ChunkStore interface {
	InsertParentsAndChildren(ctx context.Context, parents, children []DocumentChunk) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) (parents, children []DocumentChunk, err error)
	UpdateEnrichment(ctx context.Context, chunks []DocumentChunk) error
	EmbedBatch(ctx context.Context, chunks []DocumentChunk) error
	CountWithoutEmbedding(ctx context.Context, documentID uuid.UUID) (int, error)
	ListUnembeddedChildren(ctx context.Context, documentID uuid.UUID, batchSize int) ([][]DocumentChunk, error)
	DeleteForDocument(ctx context.Context, documentID uuid.UUID) error
	Search(ctx context.Context, embedding []float32, filter SearchFilter) ([]SearchHit, error)
}

// SearchFilter restricts a C7 search. MinAccessLevel is a floor: only chunks
// whose own access_level is at or above the caller's user_level are eligible
// (smaller access_level means more restricted).
type SearchFilter struct {
	Year           *int
	Department     string
	DocType        *DocType
	MinAccessLevel int
	Limit          int
	SemanticWeight float64
}

// SearchHit is a single ranked result from ChunkStore.Search.
type SearchHit struct {
	Chunk          DocumentChunk
	Document       Document
	CosineDistance float64
	Score          float64
}

// EventStore persists Event rows (C2).
type EventStore interface {
	FindByNormalizedTitle(ctx context.Context, normalizedTitle string, year *int) (Event, bool, error)
	FindFuzzy(ctx context.Context, normalizedTitle string, year *int, minRatio float64) (Event, bool, error)
	Create(ctx context.Context, ev *Event) error
	ReconcileParentChunks(ctx context.Context, eventID uuid.UUID) error
}

// ReferenceStore persists Reference rows (C2).
type ReferenceStore interface {
	Create(ctx context.Context, ref *Reference) error
}

// ChatLogStore persists append-only ChatLog rows (C2).
type ChatLogStore interface {
	Append(ctx context.Context, log ChatLog) error
}

// SessionCache is the external key-value store backing C8's conversational
// memory: a bounded FIFO of recent turns per session, with TTL.
type SessionCache interface {
	Append(ctx context.Context, sessionID string, turn ConversationTurn, windowSize int, ttl time.Duration) error
	Recent(ctx context.Context, sessionID string) ([]ConversationTurn, error)
	Delete(ctx context.Context, sessionID string) error
}

// TaskStore is C6's single authority for task state; callers poll by id.
type TaskStore interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id uuid.UUID) (Task, bool, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, state TaskState, progress int, step string) error
	Complete(ctx context.Context, id uuid.UUID, result map[string]any) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
	Revoke(ctx context.Context, id uuid.UUID) error
}

// TaskQueue enqueues durable work for background execution (C6).
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
}

// CancelSignal reports whether a task has been revoked. Neither the
// orchestrator nor the embed stage consults it: a revoked task keeps running
// its stages to the end.
type CancelSignal interface {
	Cancelled(ctx context.Context, taskID uuid.UUID) bool
}
