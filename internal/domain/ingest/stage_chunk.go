package ingest

import "context"

// runChunkStage splits preprocessed_content into parent/child chunks and
// persists them. Before insertion it enforces the invariant that every
// child's parent_content is byte-identical to its parent's content.
func runChunkStage(ctx context.Context, deps Dependencies, doc *Document) ([]DocumentChunk, []DocumentChunk, error) {
	cfg := deps.Chunker
	if cfg.ChildWindowChars == 0 {
		cfg = defaultChunkerConfig()
	}

	parents, children, err := chunkDocument(doc.ID, doc.PreprocessedContent, doc.AccessLevel, cfg)
	if err != nil {
		return nil, nil, err
	}
	if len(parents) == 0 {
		return nil, nil, StageFailed("preprocessed_content produced no chunks", nil)
	}

	parentContent := make(map[string]string, len(parents))
	for _, p := range parents {
		parentContent[p.ID.String()] = p.Content
	}
	for _, c := range children {
		if c.ParentChunkID == nil {
			return nil, nil, StageFailed("child chunk missing parent id", nil)
		}
		if parentContent[c.ParentChunkID.String()] != c.ParentContent {
			return nil, nil, StageFailed("parent_content does not match parent chunk content", nil)
		}
	}

	if err := deps.Chunks.InsertParentsAndChildren(ctx, parents, children); err != nil {
		return nil, nil, Temporary("chunk insert failed", err)
	}
	doc.CurrentStep = 5
	return parents, children, nil
}
