// Package retrieval implements the hybrid search engine (semantic similarity
// blended with recency decay) over embedded document chunks.
package retrieval

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// decayLambda is the shipped time-decay calibration: roughly 0.7 recency at
// one year, chosen over the 1/365 ≈ 0.0027/day constant (≈0.37 recency at
// one year) because it keeps year-old meeting minutes from falling out of
// the top results entirely.
const decayLambda = 0.001

const defaultSemanticWeight = 0.7

// candidatePoolMultiplier widens the store query beyond k so the in-process
// weighted re-rank has enough candidates to reorder; the store itself only
// orders by cosine distance.
const candidatePoolMultiplier = 4

// Options narrows and weights one search call.
type Options struct {
	Year           *int
	Department     string
	DocType        *ingest.DocType
	MinAccessLevel int
	SemanticWeight float64
}

// Service is the C7 hybrid retrieval engine: embed once, fetch a candidate
// pool from the store, re-rank by a semantic/recency blend.
type Service struct {
	Embedder ingest.Embedder
	Chunks   ingest.ChunkStore
}

func New(embedder ingest.Embedder, chunks ingest.ChunkStore) *Service {
	return &Service{Embedder: embedder, Chunks: chunks}
}

// Search embeds queryText once and returns up to k hits ordered by the
// weighted semantic/recency score, ties broken by meeting-subtype
// confidence (result > minutes > agenda). A single store round-trip
// follows the embedding call; the call makes no writes.
func (s *Service) Search(ctx context.Context, queryText string, k int, opts Options) ([]ingest.SearchHit, error) {
	weight := opts.SemanticWeight
	if weight <= 0 {
		weight = defaultSemanticWeight
	}

	vectors, err := s.Embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, ingest.Temporary("query embedding failed", err)
	}
	if len(vectors) == 0 {
		return nil, ingest.StageFailed("embedder returned no vector for query", nil)
	}

	filter := ingest.SearchFilter{
		Year:           opts.Year,
		Department:     opts.Department,
		DocType:        opts.DocType,
		MinAccessLevel: opts.MinAccessLevel,
		Limit:          k * candidatePoolMultiplier,
		SemanticWeight: weight,
	}

	hits, err := s.Chunks.Search(ctx, vectors[0], filter)
	if err != nil {
		return nil, ingest.Temporary("chunk search failed", err)
	}

	now := time.Now()
	for i := range hits {
		hits[i].Score = weightedScore(hits[i], weight, now)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return ingest.SubtypeConfidence(hits[i].Document.MeetingSubtype) > ingest.SubtypeConfidence(hits[j].Document.MeetingSubtype)
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// weightedScore blends cosine similarity with exponential recency decay,
// anchored on the document's time_decay_date.
func weightedScore(hit ingest.SearchHit, semanticWeight float64, now time.Time) float64 {
	similarity := 1 - hit.CosineDistance
	days := now.Sub(hit.Document.TimeDecayDate).Hours() / 24
	if days < 0 {
		days = 0
	}
	recency := math.Exp(-decayLambda * days)
	return semanticWeight*similarity + (1-semanticWeight)*recency
}

