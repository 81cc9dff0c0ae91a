package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanqian/meridian/internal/domain/chat"
	"github.com/yanqian/meridian/internal/domain/ingest"
	"github.com/yanqian/meridian/internal/domain/retrieval"
	apperrors "github.com/yanqian/meridian/pkg/errors"
)

// Handler wires the HTTP transport to the C5/C6/C7/C8 domain services.
type Handler struct {
	chatSvc               *chat.Service
	retrieval             *retrieval.Service
	documents             ingest.DocumentStore
	tasks                 ingest.TaskStore
	queue                 ingest.TaskQueue
	logger                *slog.Logger
	defaultK              int
	defaultMinAccessLevel int
}

// NewHandler constructs the root HTTP handler.
func NewHandler(chatSvc *chat.Service, retrievalSvc *retrieval.Service, documents ingest.DocumentStore, tasks ingest.TaskStore, queue ingest.TaskQueue, logger *slog.Logger, defaultK, defaultMinAccessLevel int) *Handler {
	if defaultK <= 0 {
		defaultK = 8
	}
	if defaultMinAccessLevel <= 0 {
		defaultMinAccessLevel = 1
	}
	return &Handler{
		chatSvc:               chatSvc,
		retrieval:             retrievalSvc,
		documents:             documents,
		tasks:                 tasks,
		queue:                 queue,
		logger:                logger.With("component", "http.handler"),
		defaultK:              defaultK,
		defaultMinAccessLevel: defaultMinAccessLevel,
	}
}

// ingestFolderRequest mirrors POST /ingest/folder's body.
type ingestFolderRequest struct {
	FolderID string `json:"folder_id" binding:"required"`
	Options  struct {
		LocalDir         string            `json:"local_dir"`
		IncludePatterns  []string          `json:"include_patterns"`
		ExcludePatterns  []string          `json:"exclude_patterns"`
		ExportFormats    map[string]string `json:"export_formats"`
		ReconcileDeletes bool              `json:"reconcile_deletes"`
	} `json:"options"`
	UserLevel int `json:"user_level"`
}

// IngestFolder enqueues an ingest_folder task and returns its id immediately.
func (h *Handler) IngestFolder(c *gin.Context) {
	var req ingestFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	task := ingest.Task{
		Kind: ingest.TaskKindIngestFolder,
		Payload: map[string]any{
			"folder_id":         req.FolderID,
			"local_dir":         req.Options.LocalDir,
			"include_patterns":  req.Options.IncludePatterns,
			"exclude_patterns":  req.Options.ExcludePatterns,
			"export_formats":    req.Options.ExportFormats,
			"reconcile_deletes": req.Options.ReconcileDeletes,
			"user_level":        req.UserLevel,
		},
	}
	if err := h.tasks.Create(c.Request.Context(), &task); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "task_create_failed", errMessage(err), err))
		return
	}
	if err := h.queue.Enqueue(c.Request.Context(), task); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "task_enqueue_failed", errMessage(err), err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID})
}

// GetTask returns a task's current state.
func (h *Handler) GetTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid task id", err))
		return
	}
	task, found, err := h.tasks.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "task_lookup_failed", errMessage(err), err))
		return
	}
	if !found {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "task not found", nil))
		return
	}
	c.JSON(http.StatusOK, task)
}

// RevokeTask cancels a task. Idempotent: revoking an already-finished or
// already-revoked task still returns 204.
func (h *Handler) RevokeTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "invalid task id", err))
		return
	}
	if err := h.tasks.Revoke(c.Request.Context(), id); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "task_revoke_failed", errMessage(err), err))
		return
	}
	c.Status(http.StatusNoContent)
}

// searchRequest mirrors POST /search's body.
type searchRequest struct {
	Query   string `json:"query" binding:"required"`
	TopK    int    `json:"top_k"`
	Filters struct {
		Year           *int            `json:"year"`
		Department     string          `json:"department"`
		DocType        *ingest.DocType `json:"doc_type"`
		MinAccessLevel int             `json:"max_access_level"`
		SemanticWeight float64         `json:"semantic_weight"`
	} `json:"filters"`
}

// Search runs C7 retrieval synchronously and returns ranked hits.
func (h *Handler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	k := req.TopK
	if k <= 0 {
		k = h.defaultK
	}
	minAccess := req.Filters.MinAccessLevel
	if minAccess <= 0 {
		minAccess = h.defaultMinAccessLevel
	}

	hits, err := h.retrieval.Search(c.Request.Context(), req.Query, k, retrieval.Options{
		Year:           req.Filters.Year,
		Department:     req.Filters.Department,
		DocType:        req.Filters.DocType,
		MinAccessLevel: minAccess,
		SemanticWeight: req.Filters.SemanticWeight,
	})
	if err != nil {
		status := http.StatusInternalServerError
		code := "search_failed"
		if apperrors.IsCode(err, ingest.CodeInputInvalid) {
			status = http.StatusBadRequest
			code = "invalid_request"
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": hits})
}

// chatRequest mirrors POST /chat's body.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query" binding:"required"`
	UserLevel int    `json:"user_level"`
	Options   struct {
		Year           *int          `json:"year"`
		Department     string        `json:"department"`
		DocType        *ingest.DocType `json:"doc_type"`
		SemanticWeight float64       `json:"semantic_weight"`
	} `json:"options"`
}

// Chat answers one conversational turn.
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	answer, err := h.chatSvc.Chat(c.Request.Context(), sessionID, req.Query, req.UserLevel, chat.Options{
		Year:           req.Options.Year,
		Department:     req.Options.Department,
		DocType:        req.Options.DocType,
		SemanticWeight: req.Options.SemanticWeight,
	})
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "chat_failed", errMessage(err), err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":       sessionID,
		"rewritten_query":  answer.RewrittenQuery,
		"answer":           answer.Answer,
		"sources":          answer.Sources,
		"metadata": gin.H{
			"latency_ms":           answer.LatencyMs,
			"retrieval_latency_ms": answer.RetrievalLatency,
			"generation_latency_ms": answer.GenerationLatency,
		},
	})
}

// ChatHistory returns a session's cached conversation turns.
func (h *Handler) ChatHistory(c *gin.Context) {
	sessionID := c.Param("id")
	turns, err := h.chatSvc.History(c.Request.Context(), sessionID)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "history_lookup_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"turns": turns, "turn_count": len(turns)})
}

// DeleteChatHistory clears a session's cached conversation turns.
func (h *Handler) DeleteChatHistory(c *gin.Context) {
	sessionID := c.Param("id")
	if err := h.chatSvc.DeleteHistory(c.Request.Context(), sessionID); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "history_delete_failed", errMessage(err), err))
		return
	}
	c.Status(http.StatusNoContent)
}

// ListDocuments returns a page of documents, optionally filtered by status.
func (h *Handler) ListDocuments(c *gin.Context) {
	skip, _ := strconv.Atoi(c.Query("skip"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	filter := ingest.DocumentFilter{Skip: skip, Limit: limit}
	if status := c.Query("status"); status != "" {
		s := ingest.DocumentStatus(status)
		filter.Status = &s
	}

	docs, total, err := h.documents.List(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "document_list_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "documents": docs})
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
