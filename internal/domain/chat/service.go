// Package chat implements the conversational glue (C8): session memory,
// query rewriting, delegation to retrieval, and answer generation.
package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/meridian/internal/domain/ingest"
	"github.com/yanqian/meridian/internal/domain/retrieval"
)

// defaultSessionWindow is the FIFO size (R) of recent turns kept per session.
const defaultSessionWindow = 6

// defaultSessionTTL matches the session cache's idle eviction window.
const defaultSessionTTL = time.Hour

// Config holds the tunables the service needs beyond its collaborators.
type Config struct {
	SessionWindow int
	SessionTTL    time.Duration
	DefaultK      int
}

func (c Config) window() int {
	if c.SessionWindow <= 0 {
		return defaultSessionWindow
	}
	return c.SessionWindow
}

func (c Config) ttl() time.Duration {
	if c.SessionTTL <= 0 {
		return defaultSessionTTL
	}
	return c.SessionTTL
}

func (c Config) k() int {
	if c.DefaultK <= 0 {
		return 8
	}
	return c.DefaultK
}

// Options narrows a chat turn's retrieval, mirroring retrieval.Options minus
// the fields the service itself derives (semantic weight, access level).
type Options struct {
	Year           *int
	Department     string
	DocType        *ingest.DocType
	SemanticWeight float64
}

// Answer is what Service.Chat returns to an HTTP caller. Answer is nil when
// generation failed; the caller still gets RewrittenQuery and Sources.
type Answer struct {
	Answer            *string
	RewrittenQuery    string
	Sources           []ingest.Citation
	LatencyMs         int64
	RetrievalLatency  int64
	GenerationLatency int64
}

// Service is the C8 conversational surface over C7 search.
type Service struct {
	Retrieval *retrieval.Service
	Vision    ingest.VisionLLM
	Sessions  ingest.SessionCache
	ChatLogs  ingest.ChatLogStore
	Logger    *slog.Logger
	Config    Config
}

func New(r *retrieval.Service, vision ingest.VisionLLM, sessions ingest.SessionCache, chatLogs ingest.ChatLogStore, logger *slog.Logger, cfg Config) *Service {
	return &Service{Retrieval: r, Vision: vision, Sessions: sessions, ChatLogs: chatLogs, Logger: logger, Config: cfg}
}

// accessLevelFromUserLevel maps a caller's clearance to the minimum
// chunk access_level the search may surface; a user's level is itself the
// floor (access_level >= user_level), so higher clearance unlocks more
// restricted chunks, not fewer.
func accessLevelFromUserLevel(userLevel int) int {
	if userLevel <= 0 {
		return 1
	}
	return userLevel
}

// Chat answers one conversational turn: rewrite with history, search,
// generate, persist. Query rewrite and answer generation both degrade
// gracefully — a rewrite failure falls back to the raw query, and nothing
// here fails the turn outright except a search adapter error.
func (s *Service) Chat(ctx context.Context, sessionID, query string, userLevel int, opts Options) (Answer, error) {
	turnStart := time.Now()

	history, err := s.Sessions.Recent(ctx, sessionID)
	if err != nil {
		s.Logger.Warn("session history lookup failed, starting fresh", "session_id", sessionID, "error", err)
		history = nil
	}

	rewritten := query
	if rw, err := s.Vision.RewriteQuery(ctx, history, query); err == nil && rw != "" {
		rewritten = rw
	}

	retrievalStart := time.Now()
	hits, err := s.Retrieval.Search(ctx, rewritten, s.Config.k(), retrieval.Options{
		Year:           opts.Year,
		Department:     opts.Department,
		DocType:        opts.DocType,
		MinAccessLevel: accessLevelFromUserLevel(userLevel),
		SemanticWeight: opts.SemanticWeight,
	})
	if err != nil {
		return Answer{}, err
	}
	retrievalLatency := time.Since(retrievalStart).Milliseconds()

	contextTexts := make([]string, len(hits))
	for i, h := range hits {
		contextTexts[i] = h.Chunk.ParentContent
	}

	generationStart := time.Now()
	answerText, genErr := s.Vision.GenerateAnswer(ctx, query, contextTexts)
	var answerPtr *string
	if genErr != nil {
		answerText = ""
		s.Logger.Error("answer generation failed", "session_id", sessionID, "error", genErr)
	} else {
		answerPtr = &answerText
	}
	generationLatency := time.Since(generationStart).Milliseconds()

	sources := make([]ingest.Citation, len(hits))
	snapshots := make([]ingest.ChunkSnapshot, len(hits))
	for i, h := range hits {
		sources[i] = ingest.Citation{
			DocumentID:    h.Document.ID,
			DocumentTitle: h.Document.StandardizedName,
			ChunkID:       h.Chunk.ID,
			SectionHeader: h.Chunk.SectionHeader,
			Score:         h.Score,
			DriveLink:     h.Document.BlobURL,
			EventTitle:    h.Chunk.InferredEventTitle,
		}
		snapshots[i] = ingest.ChunkSnapshot{
			ChunkID:       h.Chunk.ID,
			DocumentID:    h.Document.ID,
			SectionHeader: h.Chunk.SectionHeader,
			Score:         h.Score,
		}
	}

	now := time.Now()
	userTurn := ingest.ConversationTurn{Role: "user", Content: query, CreatedAt: now}
	assistantTurn := ingest.ConversationTurn{Role: "assistant", Content: answerText, CreatedAt: now}
	if err := s.Sessions.Append(ctx, sessionID, userTurn, s.Config.window(), s.Config.ttl()); err != nil {
		s.Logger.Warn("session append failed", "session_id", sessionID, "error", err)
	}
	if err := s.Sessions.Append(ctx, sessionID, assistantTurn, s.Config.window(), s.Config.ttl()); err != nil {
		s.Logger.Warn("session append failed", "session_id", sessionID, "error", err)
	}

	totalLatency := time.Since(turnStart).Milliseconds()
	go s.persistChatLog(sessionID, userLevel, query, rewritten, answerText, snapshots, sources, len(history)/2, retrievalLatency, generationLatency, totalLatency)

	return Answer{
		Answer:            answerPtr,
		RewrittenQuery:    rewritten,
		Sources:           sources,
		LatencyMs:         totalLatency,
		RetrievalLatency:  retrievalLatency,
		GenerationLatency: generationLatency,
	}, nil
}

// persistChatLog writes the append-only analytics row asynchronously so a
// slow store write never adds to a caller's perceived latency.
func (s *Service) persistChatLog(sessionID string, userLevel int, rawQuery, rewrittenQuery, answer string, chunks []ingest.ChunkSnapshot, citations []ingest.Citation, turnIndex int, retrievalLatency, generationLatency, totalLatency int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log := ingest.ChatLog{
		ID:                  uuid.New(),
		SessionID:           sessionID,
		UserLevel:           userLevel,
		RawQuery:            rawQuery,
		RewrittenQuery:      rewrittenQuery,
		AssistantResponse:   answer,
		RetrievedChunks:     chunks,
		Citations:           citations,
		TurnIndex:           turnIndex,
		RetrievalLatencyMs:  retrievalLatency,
		GenerationLatencyMs: generationLatency,
		TotalLatencyMs:      totalLatency,
		CreatedAt:           time.Now(),
	}
	if err := s.ChatLogs.Append(ctx, log); err != nil {
		s.Logger.Error("chat log persist failed", "session_id", sessionID, "error", err)
	}
}

// History returns the session cache's FIFO verbatim; it never touches ChatLog.
func (s *Service) History(ctx context.Context, sessionID string) ([]ingest.ConversationTurn, error) {
	return s.Sessions.Recent(ctx, sessionID)
}

// DeleteHistory clears a session's cache entry only; ChatLog rows persist
// for analytics regardless.
func (s *Service) DeleteHistory(ctx context.Context, sessionID string) error {
	return s.Sessions.Delete(ctx, sessionID)
}
