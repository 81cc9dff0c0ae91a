package ingest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRunFullPipelineAdvancesDocumentToCompleted(t *testing.T) {
	deps := testDeps()
	deps.Parser = fakeParser{result: ParseResult{Markdown: "# 논의안건 1. 예산안\n본문 내용입니다."}}

	doc := Document{ID: uuid.New(), DriveName: "5차 회의 속기록.docx", Path: "/scratch/5차.docx", Status: DocumentStatusPending, CurrentStep: 1}
	require.NoError(t, deps.Documents.Upsert(context.Background(), &doc))

	var progressed []string
	err := RunFullPipeline(context.Background(), deps, doc.ID, func(step string, progress int) {
		progressed = append(progressed, step)
	})
	require.NoError(t, err)

	final, found, err := deps.Documents.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, DocumentStatusCompleted, final.Status)
	require.Equal(t, 7, final.CurrentStep)
	require.NotNil(t, final.ProcessedAt)
	require.Contains(t, progressed, "embed")
}

func TestRunFullPipelineSkipsAlreadyCompletedSteps(t *testing.T) {
	deps := testDeps()
	doc := Document{ID: uuid.New(), DriveName: "note.txt", Path: "/scratch/note.txt", Status: DocumentStatusProcessing, CurrentStep: 7}
	require.NoError(t, deps.Documents.Upsert(context.Background(), &doc))

	calls := 0
	err := RunFullPipeline(context.Background(), deps, doc.ID, func(string, int) { calls++ })
	require.NoError(t, err)
	require.Zero(t, calls)
}

func TestRunFullPipelineMarksFailedOnParseEmpty(t *testing.T) {
	deps := testDeps()
	deps.Parser = fakeParser{result: ParseResult{}}

	doc := Document{ID: uuid.New(), DriveName: "blank.docx", Path: "/scratch/blank.docx", Status: DocumentStatusPending, CurrentStep: 1}
	require.NoError(t, deps.Documents.Upsert(context.Background(), &doc))

	err := RunFullPipeline(context.Background(), deps, doc.ID, nil)
	require.Error(t, err)

	final, _, _ := deps.Documents.Get(context.Background(), doc.ID)
	require.Equal(t, DocumentStatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
}

func TestRunFullPipelineMarksFailedOnEmptyPreprocessedContent(t *testing.T) {
	deps := testDeps()

	doc := Document{
		ID:                  uuid.New(),
		DriveName:           "empty.docx",
		Path:                "/scratch/empty.docx",
		Status:              DocumentStatusProcessing,
		CurrentStep:         4,
		PreprocessedContent: "   \n\t  ",
	}
	require.NoError(t, deps.Documents.Upsert(context.Background(), &doc))

	err := RunFullPipeline(context.Background(), deps, doc.ID, nil)
	require.Error(t, err)

	final, _, _ := deps.Documents.Get(context.Background(), doc.ID)
	require.Equal(t, DocumentStatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)

	parents, children, _ := deps.Chunks.ListByDocument(context.Background(), doc.ID)
	require.Empty(t, parents)
	require.Empty(t, children)
}

func TestReprocessDocumentClearsChunksFromStep(t *testing.T) {
	deps := testDeps()
	deps.Parser = fakeParser{result: ParseResult{Markdown: "# 논의안건 1. 예산안\n본문 내용입니다."}}

	doc := Document{ID: uuid.New(), DriveName: "doc.docx", Path: "/scratch/doc.docx", Status: DocumentStatusPending, CurrentStep: 1}
	require.NoError(t, deps.Documents.Upsert(context.Background(), &doc))
	require.NoError(t, RunFullPipeline(context.Background(), deps, doc.ID, nil))

	err := ReprocessDocument(context.Background(), deps, doc.ID, 5, nil)
	require.NoError(t, err)

	final, _, _ := deps.Documents.Get(context.Background(), doc.ID)
	require.Equal(t, DocumentStatusCompleted, final.Status)
}
