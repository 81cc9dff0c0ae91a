package adapters

import (
	"context"
	"fmt"

	"github.com/yanqian/meridian/internal/infra/llm/chatgpt"
)

// Embedder implements ingest.Embedder against the ChatGPT-compatible
// embeddings endpoint.
type Embedder struct {
	client    *chatgpt.Client
	model     string
	dimension int
	limiter   *RateLimitedContext
}

// NewEmbedder constructs an Embedder for the given model/dimension pair.
func NewEmbedder(client *chatgpt.Client, model string, dimension int, ratePerSecond float64) *Embedder {
	return &Embedder{
		client:    client,
		model:     model,
		dimension: dimension,
		limiter:   NewRateLimitedContext(ratePerSecond),
	}
}

// Embed returns one embedding vector per input text, in order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	vectors, err := e.client.CreateEmbedding(ctx, e.model, texts)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	return vectors, nil
}

// Dimension reports the fixed embedding width this model produces.
func (e *Embedder) Dimension() int {
	return e.dimension
}
