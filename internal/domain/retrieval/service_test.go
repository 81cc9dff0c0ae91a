package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{0.1, 0.2, 0.3}}, nil
}
func (fakeEmbedder) Dimension() int { return 3 }

type fakeChunkStore struct {
	hits []ingest.SearchHit
}

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

func subtype(s ingest.MeetingSubtype) *ingest.MeetingSubtype { return &s }

func TestSearchOrdersByWeightedScore(t *testing.T) {
	now := time.Now()
	store := fakeChunkStore{hits: []ingest.SearchHit{
		{
			Chunk:          ingest.DocumentChunk{ID: uuid.New()},
			Document:       ingest.Document{TimeDecayDate: now.AddDate(-2, 0, 0)},
			CosineDistance: 0.1,
		},
		{
			Chunk:          ingest.DocumentChunk{ID: uuid.New()},
			Document:       ingest.Document{TimeDecayDate: now},
			CosineDistance: 0.3,
		},
	}}

	svc := New(fakeEmbedder{}, store)
	hits, err := svc.Search(context.Background(), "query", 5, Options{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// the recent, slightly-less-similar chunk should outrank the old,
	// highly-similar one once recency decay is blended in.
	require.Equal(t, now, hits[0].Document.TimeDecayDate)
}

func TestSearchBreaksTiesBySubtypeConfidence(t *testing.T) {
	now := time.Now()
	agenda := subtype(ingest.MeetingSubtypeAgenda)
	result := subtype(ingest.MeetingSubtypeResult)

	store := fakeChunkStore{hits: []ingest.SearchHit{
		{
			Chunk:          ingest.DocumentChunk{ID: uuid.New()},
			Document:       ingest.Document{TimeDecayDate: now, MeetingSubtype: agenda},
			CosineDistance: 0.2,
		},
		{
			Chunk:          ingest.DocumentChunk{ID: uuid.New()},
			Document:       ingest.Document{TimeDecayDate: now, MeetingSubtype: result},
			CosineDistance: 0.2,
		},
	}}

	svc := New(fakeEmbedder{}, store)
	hits, err := svc.Search(context.Background(), "query", 5, Options{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, ingest.MeetingSubtypeResult, *hits[0].Document.MeetingSubtype)
}

func TestSearchTruncatesToK(t *testing.T) {
	store := fakeChunkStore{}
	for i := 0; i < 10; i++ {
		store.hits = append(store.hits, ingest.SearchHit{
			Chunk:          ingest.DocumentChunk{ID: uuid.New()},
			Document:       ingest.Document{TimeDecayDate: time.Now()},
			CosineDistance: float64(i) / 10,
		})
	}
	svc := New(fakeEmbedder{}, store)
	hits, err := svc.Search(context.Background(), "query", 3, Options{})
	require.NoError(t, err)
	require.Len(t, hits, 3)
}
