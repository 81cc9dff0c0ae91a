package ingest

import (
	"context"
	"time"
)

// embedInput is what actually gets embedded: the section header followed by
// the chunk's own content, so the vector captures which section it's from.
func embedInput(c DocumentChunk) string {
	if c.SectionHeader == "" {
		return c.Content
	}
	return c.SectionHeader + "\n" + c.Content
}

// runEmbedStage embeds every child chunk of a document that doesn't already
// carry a vector, batching calls to the adapter and writing each batch back
// in one transaction. A batch failure aborts the stage; batches already
// written keep their vectors, and a retry (one layer up in the orchestrator
// via ExternalTemporary classification) embeds only the children still
// without one.
//
// Returns the number of chunks newly embedded.
func runEmbedStage(ctx context.Context, deps Dependencies, doc *Document) (int, error) {
	batchSize := deps.embedBatchSize()
	embedded := 0

	for {
		batches, err := deps.Chunks.ListUnembeddedChildren(ctx, doc.ID, batchSize)
		if err != nil {
			return embedded, Temporary("list unembedded children failed", err)
		}
		if len(batches) == 0 {
			break
		}

		for _, batch := range batches {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = embedInput(c)
			}

			vectors, err := deps.Embedder.Embed(ctx, texts)
			if err != nil {
				return embedded, Temporary("embedding call failed", err)
			}
			if len(vectors) != len(batch) {
				return embedded, StageFailed("embedder returned mismatched vector count", nil)
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}

			if err := deps.Chunks.EmbedBatch(ctx, batch); err != nil {
				return embedded, Temporary("embedding batch write failed", err)
			}
			embedded += len(batch)
		}

		remaining, err := deps.Chunks.CountWithoutEmbedding(ctx, doc.ID)
		if err != nil {
			return embedded, Temporary("count unembedded children failed", err)
		}
		if remaining == 0 {
			break
		}
	}

	now := time.Now()
	doc.Status = DocumentStatusCompleted
	doc.CurrentStep = 7
	doc.ProcessedAt = &now
	return embedded, nil
}
