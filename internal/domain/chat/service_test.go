package chat

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/meridian/internal/domain/ingest"
	"github.com/yanqian/meridian/internal/domain/retrieval"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{0.1, 0.2}}, nil
}
func (fakeEmbedder) Dimension() int { return 2 }

type fakeChunkStore struct{ hits []ingest.SearchHit }

func (f fakeChunkStore) InsertParentsAndChildren(context.Context, []ingest.DocumentChunk, []ingest.DocumentChunk) error {
	return nil
}
func (f fakeChunkStore) ListByDocument(context.Context, uuid.UUID) ([]ingest.DocumentChunk, []ingest.DocumentChunk, error) {
	return nil, nil, nil
}
func (f fakeChunkStore) UpdateEnrichment(context.Context, []ingest.DocumentChunk) error { return nil }
func (f fakeChunkStore) EmbedBatch(context.Context, []ingest.DocumentChunk) error       { return nil }
func (f fakeChunkStore) CountWithoutEmbedding(context.Context, uuid.UUID) (int, error)  { return 0, nil }
func (f fakeChunkStore) ListUnembeddedChildren(context.Context, uuid.UUID, int) ([][]ingest.DocumentChunk, error) {
	return nil, nil
}
func (f fakeChunkStore) DeleteForDocument(context.Context, uuid.UUID) error { return nil }
func (f fakeChunkStore) Search(context.Context, []float32, ingest.SearchFilter) ([]ingest.SearchHit, error) {
	return f.hits, nil
}

type fakeVision struct {
	rewriteErr error
	genErr     error
}

func (f fakeVision) Caption(context.Context, []byte, string) (string, error) { return "", nil }
func (f fakeVision) Classify(context.Context, string, string) (ingest.ClassifyResult, error) {
	return ingest.ClassifyResult{}, nil
}
func (f fakeVision) SummarizeSection(context.Context, string, ingest.ChunkType) (ingest.SummarizeResult, error) {
	return ingest.SummarizeResult{}, nil
}
func (f fakeVision) RewriteQuery(ctx context.Context, history []ingest.ConversationTurn, newQuery string) (string, error) {
	if f.rewriteErr != nil {
		return "", f.rewriteErr
	}
	return "rewritten: " + newQuery, nil
}
func (f fakeVision) GenerateAnswer(ctx context.Context, query string, contextChunks []string) (string, error) {
	if f.genErr != nil {
		return "", f.genErr
	}
	return "final answer", nil
}
func (f fakeVision) InferEvent(context.Context, string) (ingest.InferredEvent, error) {
	return ingest.InferredEvent{}, nil
}
func (f fakeVision) RestructureSections(context.Context, string) (string, error) { return "", nil }

type fakeSessionCache struct {
	turns   []ingest.ConversationTurn
	deleted bool
}

func (f *fakeSessionCache) Append(ctx context.Context, sessionID string, turn ingest.ConversationTurn, windowSize int, ttl time.Duration) error {
	f.turns = append(f.turns, turn)
	if len(f.turns) > windowSize {
		f.turns = f.turns[len(f.turns)-windowSize:]
	}
	return nil
}
func (f *fakeSessionCache) Recent(ctx context.Context, sessionID string) ([]ingest.ConversationTurn, error) {
	return f.turns, nil
}
func (f *fakeSessionCache) Delete(ctx context.Context, sessionID string) error {
	f.deleted = true
	f.turns = nil
	return nil
}

type fakeChatLogStore struct {
	appended chan ingest.ChatLog
}

func newFakeChatLogStore() *fakeChatLogStore {
	return &fakeChatLogStore{appended: make(chan ingest.ChatLog, 1)}
}

func (f *fakeChatLogStore) Append(ctx context.Context, log ingest.ChatLog) error {
	f.appended <- log
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestChatReturnsAnswerAndSources(t *testing.T) {
	docID := uuid.New()
	chunkID := uuid.New()
	store := fakeChunkStore{hits: []ingest.SearchHit{{
		Chunk:    ingest.DocumentChunk{ID: chunkID, ParentContent: "맥락 내용", SectionHeader: "논의안건 1"},
		Document: ingest.Document{ID: docID, StandardizedName: "회의록", TimeDecayDate: time.Now()},
	}}}
	retrievalSvc := retrieval.New(fakeEmbedder{}, store)
	sessions := &fakeSessionCache{}
	logs := newFakeChatLogStore()

	svc := New(retrievalSvc, fakeVision{}, sessions, logs, testLogger(), Config{})

	answer, err := svc.Chat(context.Background(), "session-1", "예산안이 뭐였나요?", 2, Options{})
	require.NoError(t, err)
	require.NotNil(t, answer.Answer)
	require.Equal(t, "final answer", *answer.Answer)
	require.Contains(t, answer.RewrittenQuery, "rewritten:")
	require.Len(t, answer.Sources, 1)
	require.Equal(t, docID, answer.Sources[0].DocumentID)

	require.Len(t, sessions.turns, 2)

	select {
	case log := <-logs.appended:
		require.Equal(t, "session-1", log.SessionID)
		require.Equal(t, "final answer", log.AssistantResponse)
	case <-time.After(time.Second):
		t.Fatal("expected chat log to be persisted asynchronously")
	}
}

func TestChatFallsBackToRawQueryOnRewriteFailure(t *testing.T) {
	store := fakeChunkStore{}
	retrievalSvc := retrieval.New(fakeEmbedder{}, store)
	sessions := &fakeSessionCache{}
	logs := newFakeChatLogStore()

	svc := New(retrievalSvc, fakeVision{rewriteErr: context.DeadlineExceeded}, sessions, logs, testLogger(), Config{})

	answer, err := svc.Chat(context.Background(), "session-2", "raw query", 1, Options{})
	require.NoError(t, err)
	require.Equal(t, "raw query", answer.RewrittenQuery)
	<-logs.appended
}

func TestChatReturnsNilAnswerOnGenerationFailure(t *testing.T) {
	docID := uuid.New()
	chunkID := uuid.New()
	store := fakeChunkStore{hits: []ingest.SearchHit{{
		Chunk:    ingest.DocumentChunk{ID: chunkID, ParentContent: "맥락 내용"},
		Document: ingest.Document{ID: docID, TimeDecayDate: time.Now()},
	}}}
	retrievalSvc := retrieval.New(fakeEmbedder{}, store)
	sessions := &fakeSessionCache{}
	logs := newFakeChatLogStore()

	svc := New(retrievalSvc, fakeVision{genErr: context.DeadlineExceeded}, sessions, logs, testLogger(), Config{})

	answer, err := svc.Chat(context.Background(), "session-4", "query", 1, Options{})
	require.NoError(t, err)
	require.Nil(t, answer.Answer)
	require.Len(t, answer.Sources, 1)
	<-logs.appended
}

func TestDeleteHistoryClearsSessionOnly(t *testing.T) {
	sessions := &fakeSessionCache{turns: []ingest.ConversationTurn{{Role: "user", Content: "hi"}}}
	svc := New(nil, fakeVision{}, sessions, newFakeChatLogStore(), testLogger(), Config{})

	require.NoError(t, svc.DeleteHistory(context.Background(), "session-3"))
	require.True(t, sessions.deleted)
}
