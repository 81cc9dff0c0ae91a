package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	stageRetryAttempts = 3
	stageRetryBaseWait = 500 * time.Millisecond
)

// ProgressReporter is an optional sink the orchestrator calls at each stage
// boundary; a nil reporter is a no-op. Task-queue wiring supplies one that
// updates the owning Task's progress/step fields.
type ProgressReporter func(step string, progress int)

func noopProgress(string, int) {}

// stageStep pairs the step number a stage's success advances a document to
// with the function that performs it. Stage 1 (folder ingest) runs before a
// Document exists and is not part of this table; RunFullPipeline resumes
// from whatever current_step the document is already at.
type stageStep struct {
	targetStep int
	name       string
	run        func(ctx context.Context, deps Dependencies, doc *Document) error
}

func stageTable(deps Dependencies) []stageStep {
	return []stageStep{
		{targetStep: 2, name: "classify", run: runClassifyStage},
		{targetStep: 3, name: "parse", run: runParseStage},
		{targetStep: 4, name: "preprocess", run: runPreprocessStage},
		{
			targetStep: 5, name: "chunk",
			run: func(ctx context.Context, deps Dependencies, doc *Document) error {
				_, _, err := runChunkStage(ctx, deps, doc)
				return err
			},
		},
		{
			targetStep: 6, name: "enrich",
			run: func(ctx context.Context, deps Dependencies, doc *Document) error {
				parents, children, err := deps.Chunks.ListByDocument(ctx, doc.ID)
				if err != nil {
					return Temporary("load chunks for enrichment failed", err)
				}
				return runEnrichStage(ctx, deps, doc, parents, children)
			},
		},
		{
			targetStep: 7, name: "embed",
			run: func(ctx context.Context, deps Dependencies, doc *Document) error {
				_, err := runEmbedStage(ctx, deps, doc)
				return err
			},
		},
	}
}

// IngestFolder runs Stage 1 for one folder sync. The caller (the task queue's
// ingest_folder handler) is responsible for enqueuing one run_full_pipeline
// task per document returned in the result's Documents slice.
func IngestFolder(ctx context.Context, deps Dependencies, opts IngestOptions) (IngestResult, error) {
	return runIngestStage(ctx, deps, opts)
}

// RunFullPipeline advances one document through stages classify..embed,
// skipping stages it has already cleared and stopping at the first
// unretryable failure. On success the document's status is completed by the
// embed stage itself; on failure it is marked failed with error_message set.
func RunFullPipeline(ctx context.Context, deps Dependencies, documentID uuid.UUID, report ProgressReporter) error {
	if report == nil {
		report = noopProgress
	}

	doc, found, err := deps.Documents.Get(ctx, documentID)
	if !found || err != nil {
		return InputInvalid("document not found", err)
	}
	if doc.Status == DocumentStatusFailed {
		return StageFailed("document already in failed state", nil)
	}
	doc.Status = DocumentStatusProcessing

	for _, stage := range stageTable(deps) {
		if doc.CurrentStep >= stage.targetStep {
			continue
		}

		report(stage.name, (stage.targetStep-1)*100/7)

		stageErr := retryBackoff(ctx, stageRetryAttempts, stageRetryBaseWait, func() error {
			return stage.run(ctx, deps, &doc)
		})
		if stageErr != nil {
			reason := stageErr.Error()
			doc.Status = DocumentStatusFailed
			doc.ErrorMessage = &reason
			if err := deps.Documents.MarkFailed(ctx, doc.ID, reason); err != nil {
				deps.Logger.Error("mark failed write failed", "document_id", doc.ID, "error", err)
			}
			return stageErr
		}

		if err := deps.Documents.UpdateStage(ctx, doc); err != nil {
			return Temporary("document stage update failed", err)
		}
		report(stage.name, stage.targetStep*100/7)
	}

	return nil
}

// ReprocessDocument clears the document's parsed/preprocessed content
// downstream of fromStep (see DocumentStore.ClearDownstream) and resumes the
// pipeline from there. fromStep follows the same numbering as the
// stage table (2=classify .. 7=embed); clearing step 5 also drops the
// document's chunks and their embeddings since children depend on them.
func ReprocessDocument(ctx context.Context, deps Dependencies, documentID uuid.UUID, fromStep int, report ProgressReporter) error {
	if err := deps.Documents.ClearDownstream(ctx, documentID, fromStep); err != nil {
		return Temporary("clear downstream fields failed", err)
	}
	if fromStep <= 5 {
		if err := deps.Chunks.DeleteForDocument(ctx, documentID); err != nil {
			return Temporary("chunk cleanup failed", err)
		}
	}
	return RunFullPipeline(ctx, deps, documentID, report)
}
