package ingest

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type fakeDocumentStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]Document
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: map[uuid.UUID]Document{}}
}

func (f *fakeDocumentStore) Upsert(ctx context.Context, doc *Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	f.docs[doc.ID] = *doc
	return nil
}

func (f *fakeDocumentStore) Get(ctx context.Context, id uuid.UUID) (Document, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	return d, ok, nil
}

func (f *fakeDocumentStore) GetByDriveID(ctx context.Context, driveID string) (Document, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.DriveID != nil && *d.DriveID == driveID {
			return d, true, nil
		}
	}
	return Document{}, false, nil
}

func (f *fakeDocumentStore) UpdateStage(ctx context.Context, doc Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocumentStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.docs[id]
	d.Status = DocumentStatusFailed
	d.ErrorMessage = &reason
	f.docs[id] = d
	return nil
}

func (f *fakeDocumentStore) ClearDownstream(ctx context.Context, id uuid.UUID, fromStep int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.docs[id]
	d.CurrentStep = fromStep - 1
	f.docs[id] = d
	return nil
}

func (f *fakeDocumentStore) List(ctx context.Context, filter DocumentFilter) ([]Document, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Document
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, len(out), nil
}

type fakeChunkStore struct {
	mu       sync.Mutex
	parents  map[uuid.UUID][]DocumentChunk
	children map[uuid.UUID][]DocumentChunk
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{parents: map[uuid.UUID][]DocumentChunk{}, children: map[uuid.UUID][]DocumentChunk{}}
}

func (f *fakeChunkStore) InsertParentsAndChildren(ctx context.Context, parents, children []DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(parents) > 0 {
		f.parents[parents[0].DocumentID] = append(f.parents[parents[0].DocumentID], parents...)
	}
	if len(children) > 0 {
		f.children[children[0].DocumentID] = append(f.children[children[0].DocumentID], children...)
	}
	return nil
}

func (f *fakeChunkStore) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]DocumentChunk, []DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parents[documentID], f.children[documentID], nil
}

func (f *fakeChunkStore) UpdateEnrichment(ctx context.Context, chunks []DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		replaceChunk(f.parents[c.DocumentID], c)
		replaceChunk(f.children[c.DocumentID], c)
	}
	return nil
}

func replaceChunk(list []DocumentChunk, updated DocumentChunk) {
	for i := range list {
		if list[i].ID == updated.ID {
			list[i] = updated
		}
	}
}

func (f *fakeChunkStore) EmbedBatch(ctx context.Context, chunks []DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		list := f.children[c.DocumentID]
		for i := range list {
			if list[i].ID == c.ID {
				list[i].Embedding = c.Embedding
			}
		}
	}
	return nil
}

func (f *fakeChunkStore) CountWithoutEmbedding(ctx context.Context, documentID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, c := range f.children[documentID] {
		if c.Embedding == nil {
			count++
		}
	}
	return count, nil
}

func (f *fakeChunkStore) ListUnembeddedChildren(ctx context.Context, documentID uuid.UUID, batchSize int) ([][]DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []DocumentChunk
	for _, c := range f.children[documentID] {
		if c.Embedding == nil {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	var batches [][]DocumentChunk
	for len(pending) > 0 {
		n := batchSize
		if n > len(pending) {
			n = len(pending)
		}
		batches = append(batches, pending[:n])
		pending = pending[n:]
	}
	return batches, nil
}

func (f *fakeChunkStore) DeleteForDocument(ctx context.Context, documentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.parents, documentID)
	delete(f.children, documentID)
	return nil
}

func (f *fakeChunkStore) Search(ctx context.Context, embedding []float32, filter SearchFilter) ([]SearchHit, error) {
	return nil, nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeEventStore) FindByNormalizedTitle(ctx context.Context, normalizedTitle string, year *int) (Event, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if normalizeEventTitle(e.Title) == normalizedTitle {
			return e, true, nil
		}
	}
	return Event{}, false, nil
}

func (f *fakeEventStore) FindFuzzy(ctx context.Context, normalizedTitle string, year *int, minRatio float64) (Event, bool, error) {
	return Event{}, false, nil
}

func (f *fakeEventStore) Create(ctx context.Context, ev *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakeEventStore) ReconcileParentChunks(ctx context.Context, eventID uuid.UUID) error {
	return nil
}

type fakeReferenceStore struct {
	refs []Reference
}

func (f *fakeReferenceStore) Create(ctx context.Context, ref *Reference) error {
	f.refs = append(f.refs, *ref)
	return nil
}

type fakeDriveSync struct {
	files []DriveFile
	err   error
}

func (f fakeDriveSync) Sync(ctx context.Context, folderID, localDir string, includePatterns, excludePatterns []string, exportFormats map[string]string) ([]DriveFile, error) {
	return f.files, f.err
}

type fakeParser struct {
	result ParseResult
	err    error
}

func (f fakeParser) Parse(ctx context.Context, localPath string) (ParseResult, error) {
	return f.result, f.err
}

type fakeVision struct{}

func (fakeVision) Caption(ctx context.Context, imageBytes []byte, hint string) (string, error) {
	return "a caption", nil
}
func (fakeVision) Classify(ctx context.Context, fileName, path string) (ClassifyResult, error) {
	return ClassifyResult{Category: DocCategoryOther}, nil
}
func (fakeVision) SummarizeSection(ctx context.Context, sectionText string, kind ChunkType) (SummarizeResult, error) {
	return SummarizeResult{Summary: "summary"}, nil
}
func (fakeVision) RewriteQuery(ctx context.Context, history []ConversationTurn, newQuery string) (string, error) {
	return newQuery, nil
}
func (fakeVision) GenerateAnswer(ctx context.Context, query string, contextChunks []string) (string, error) {
	return "an answer", nil
}
func (fakeVision) InferEvent(ctx context.Context, chunkText string) (InferredEvent, error) {
	return InferredEvent{Title: "정기 회의"}, nil
}
func (fakeVision) RestructureSections(ctx context.Context, text string) (string, error) {
	return "# 안건\n" + text, nil
}

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.Dimension())
	}
	return out, nil
}
func (f fakeEmbedder) Dimension() int {
	if f.dim == 0 {
		return 8
	}
	return f.dim
}

type fakeObjectStore struct{}

func (fakeObjectStore) Put(ctx context.Context, key string, data []byte, mimeType string) (StoredObject, error) {
	return StoredObject{Key: key, URL: "mem://" + key, Size: int64(len(data)), MimeType: mimeType}, nil
}
func (fakeObjectStore) Get(ctx context.Context, key string) ([]byte, error) { return nil, nil }
func (fakeObjectStore) Delete(ctx context.Context, key string) error       { return nil }
func (fakeObjectStore) List(ctx context.Context, prefix string) ([]string, error) { return nil, nil }

func testDeps() Dependencies {
	return Dependencies{
		Objects:    fakeObjectStore{},
		Drive:      fakeDriveSync{},
		Parser:     fakeParser{},
		Vision:     fakeVision{},
		Embedder:   fakeEmbedder{},
		Documents:  newFakeDocumentStore(),
		Chunks:     newFakeChunkStore(),
		Events:     &fakeEventStore{},
		References: &fakeReferenceStore{},
		Logger:     testLogger(),
	}
}
