package ingest

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus tracks the lifecycle of a logical happening.
type EventStatus string

const (
	EventStatusPlanned    EventStatus = "planned"
	EventStatusInProgress EventStatus = "in_progress"
	EventStatusCompleted  EventStatus = "completed"
	EventStatusCancelled  EventStatus = "cancelled"
)

// Event is a logical happening (a festival, a council meeting series) that
// chunks are mapped to N:M, reconciled on each enrichment pass.
type Event struct {
	ID                uuid.UUID       `json:"id"`
	Title             string          `json:"title"`
	Year              *int            `json:"year,omitempty"`
	StartDate         *time.Time      `json:"startDate,omitempty"`
	EndDate           *time.Time      `json:"endDate,omitempty"`
	Category          string          `json:"category,omitempty"`
	Department        string          `json:"department,omitempty"`
	Status            EventStatus     `json:"status"`
	ChunkTimeline      []TimelineEntry `json:"chunkTimeline,omitempty"`
	DecisionSummaries []string        `json:"decisionSummaries,omitempty"`
	ActionItems       []string        `json:"actionItems,omitempty"`
	ParentChunkIDs    []uuid.UUID     `json:"parentChunkIds,omitempty"`
	ChildChunkIDs     []uuid.UUID     `json:"childChunkIds,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// TimelineEntry records one meeting's contribution to an event's history.
type TimelineEntry struct {
	DocumentID uuid.UUID `json:"documentId"`
	ChunkID    uuid.UUID `json:"chunkId"`
	Date       time.Time `json:"date"`
	Summary    string    `json:"summary"`
}

// DocType enumerates the recognized file kinds a document can resolve to.
type DocType string

const (
	DocTypeWordProcessor DocType = "word_processor"
	DocTypeSpreadsheet   DocType = "spreadsheet"
	DocTypeSlides        DocType = "slides"
	DocTypePDF           DocType = "pdf"
	DocTypeHWP           DocType = "hwp"
	DocTypeText          DocType = "text"
	DocTypeCSV           DocType = "csv"
	DocTypeImage         DocType = "image"
	DocTypeOther         DocType = "other"
)

// DocCategory classifies a document's administrative role.
type DocCategory string

const (
	DocCategoryMeeting DocCategory = "meeting_document"
	DocCategoryWork    DocCategory = "work_document"
	DocCategoryOther   DocCategory = "other_document"
)

// MeetingSubtype distinguishes agenda-cycle documents, ordered by reliability.
type MeetingSubtype string

const (
	MeetingSubtypeAgenda  MeetingSubtype = "agenda"
	MeetingSubtypeMinutes MeetingSubtype = "minutes"
	MeetingSubtypeResult  MeetingSubtype = "result"
)

// SubtypeConfidence implements the result(3) > minutes(2) > agenda(1) ordering
// used by retrieval as a tie-breaker between otherwise equally scored chunks.
func SubtypeConfidence(s *MeetingSubtype) int {
	if s == nil {
		return 0
	}
	switch *s {
	case MeetingSubtypeResult:
		return 3
	case MeetingSubtypeMinutes:
		return 2
	case MeetingSubtypeAgenda:
		return 1
	default:
		return 0
	}
}

// DocumentStatus tracks the document's position in the seven-stage pipeline.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is a single file known to the system, identified by its drive id
// when one exists.
type Document struct {
	ID                   uuid.UUID       `json:"id"`
	EventID              *uuid.UUID      `json:"eventId,omitempty"`
	DriveID              *string         `json:"driveId,omitempty"`
	DriveName            string          `json:"driveName"`
	Path                 string          `json:"path"`
	MimeType             string          `json:"mimeType"`
	BlobURL              string          `json:"blobUrl,omitempty"`
	DocType              DocType         `json:"docType"`
	Category             DocCategory     `json:"category"`
	MeetingSubtype       *MeetingSubtype `json:"meetingSubtype,omitempty"`
	AccessLevel          int             `json:"accessLevel"`
	StandardizedName     string          `json:"standardizedName"`
	TimeDecayDate        time.Time       `json:"timeDecayDate"`
	Department           string          `json:"department,omitempty"`
	Year                 *int            `json:"year,omitempty"`
	Status               DocumentStatus  `json:"status"`
	RawContent           string          `json:"-"`
	ParsedContent        string          `json:"-"`
	PreprocessedContent  string          `json:"-"`
	Metadata             map[string]any  `json:"metadata,omitempty"`
	ErrorMessage         *string         `json:"errorMessage,omitempty"`
	ProcessedAt          *time.Time      `json:"processedAt,omitempty"`
	CurrentStep          int             `json:"currentStep"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// ChunkType distinguishes how a chunk's content should be rendered/retrieved.
type ChunkType string

const (
	ChunkTypeText         ChunkType = "text"
	ChunkTypeTable        ChunkType = "table"
	ChunkTypeImageCaption ChunkType = "image_caption"
)

// DocumentChunk is a unit of retrieval, either a parent (one per agenda item)
// or an embeddable child window.
//
// Invariant: IsParent <=> ParentChunkID == nil. Children copy ParentContent
// from their parent at insert time and are the only rows that carry an
// embedding.
type DocumentChunk struct {
	ID                  uuid.UUID  `json:"id"`
	DocumentID          uuid.UUID  `json:"documentId"`
	ParentChunkID       *uuid.UUID `json:"parentChunkId,omitempty"`
	RelatedEventID      *uuid.UUID `json:"relatedEventId,omitempty"`
	InferredEventTitle  string     `json:"inferredEventTitle,omitempty"`
	IsParent            bool       `json:"isParent"`
	ChunkIndex          int        `json:"chunkIndex"`
	ChunkType           ChunkType  `json:"chunkType"`
	Content             string     `json:"content"`
	ParentContent       string     `json:"parentContent,omitempty"`
	SectionHeader       string     `json:"sectionHeader,omitempty"`
	Embedding           []float32  `json:"-"`
	AccessLevel         int        `json:"accessLevel"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	TokenCount          int        `json:"tokenCount"`
	StartChar           int        `json:"startChar"`
	EndChar             int        `json:"endChar"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// Reference is a link-only record for sensitive or non-parseable sources.
// Never embedded, never parsed.
type Reference struct {
	ID          uuid.UUID  `json:"id"`
	Description string     `json:"description"`
	URL         string      `json:"url"`
	FileType    string      `json:"fileType"`
	FileName    string      `json:"fileName"`
	AccessLevel int         `json:"accessLevel"`
	EventID     *uuid.UUID  `json:"eventId,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// ChunkSnapshot captures a retrieved chunk as returned to a chat/search caller.
type ChunkSnapshot struct {
	ChunkID       uuid.UUID `json:"chunkId"`
	DocumentID    uuid.UUID `json:"documentId"`
	SectionHeader string    `json:"sectionHeader,omitempty"`
	Score         float64   `json:"score"`
}

// Citation references a document/chunk pair surfaced to an end user.
type Citation struct {
	DocumentID    uuid.UUID `json:"documentId"`
	DocumentTitle string    `json:"documentTitle"`
	ChunkID       uuid.UUID `json:"chunkId"`
	SectionHeader string    `json:"sectionHeader,omitempty"`
	Score         float64   `json:"relevanceScore"`
	DriveLink     string    `json:"driveLink,omitempty"`
	EventTitle    string    `json:"eventTitle,omitempty"`
}

// ChatLog is one append-only row per conversational turn.
type ChatLog struct {
	ID                 uuid.UUID       `json:"id"`
	SessionID          string          `json:"sessionId"`
	UserLevel           int            `json:"userLevel"`
	RawQuery           string          `json:"rawQuery"`
	RewrittenQuery     string          `json:"rewrittenQuery"`
	AssistantResponse  string          `json:"assistantResponse"`
	RetrievedChunks    []ChunkSnapshot `json:"retrievedChunks,omitempty"`
	Citations          []Citation      `json:"citations,omitempty"`
	TurnIndex          int             `json:"turnIndex"`
	RetrievalLatencyMs int64           `json:"retrievalLatencyMs"`
	GenerationLatencyMs int64          `json:"generationLatencyMs"`
	TotalLatencyMs     int64           `json:"totalLatencyMs"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// ConversationTurn is one half of a chat exchange kept in the session cache.
type ConversationTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskState enumerates the lifecycle of a durable queue task.
type TaskState string

const (
	TaskStatePending  TaskState = "PENDING"
	TaskStateStarted  TaskState = "STARTED"
	TaskStateProgress TaskState = "PROGRESS"
	TaskStateSuccess  TaskState = "SUCCESS"
	TaskStateFailure  TaskState = "FAILURE"
	TaskStateRevoked  TaskState = "REVOKED"
)

// TaskKind enumerates the four task kinds C6 accepts.
type TaskKind string

const (
	TaskKindIngestFolder     TaskKind = "ingest_folder"
	TaskKindRunFullPipeline  TaskKind = "run_full_pipeline"
	TaskKindReprocessDocument TaskKind = "reprocess_document"
	TaskKindRebuildHNSWIndex TaskKind = "rebuild_hnsw_index"
)

// Task is the durable record a caller polls by id.
type Task struct {
	ID        uuid.UUID      `json:"taskId"`
	Kind      TaskKind       `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	State     TaskState      `json:"state"`
	Progress  int            `json:"progress"`
	Step      string         `json:"step,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// DocumentFilter narrows ListDocuments/search queries.
type DocumentFilter struct {
	Year       *int
	Department string
	DocType    *DocType
	Status     *DocumentStatus
	Skip       int
	Limit      int
}
