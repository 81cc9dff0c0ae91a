package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/meridian/internal/domain/ingest"
	"github.com/yanqian/meridian/internal/infra/blobstore"
	"github.com/yanqian/meridian/internal/infra/config"
	"github.com/yanqian/meridian/internal/infra/metadatastore"
	"github.com/yanqian/meridian/internal/infra/queue"
)

// registerTaskHandlers binds the four task kinds C6 accepts to the
// orchestrator entry points in the ingest domain. ingest_folder's handler
// is the only one that fans out: it runs Stage 1 synchronously, then
// enqueues one run_full_pipeline task per document the sync touched.
func registerTaskHandlers(pool *queue.WorkerPool, q *queue.ValkeyQueue, tasks ingest.TaskStore, pgPool *pgxpool.Pool, scratch *blobstore.Scratch, deps ingest.Dependencies, chunks ingest.ChunkStore, cfg *config.Config, logger *slog.Logger) {
	pool.RegisterHandler(ingest.TaskKindIngestFolder, func(ctx context.Context, task ingest.Task, report func(string, int)) (map[string]any, error) {
		opts, err := decodeIngestOptions(task.Payload)
		if err != nil {
			return nil, ingest.InputInvalid("invalid ingest_folder payload", err)
		}
		if err := scratch.Purge(); err != nil {
			logger.Warn("scratch purge before sync failed", "error", err)
		}

		report("sync", 10)
		result, err := ingest.IngestFolder(ctx, deps, opts)
		if err != nil {
			return nil, err
		}
		report("sync", 60)

		for _, doc := range result.Documents {
			child := ingest.Task{Kind: ingest.TaskKindRunFullPipeline, Payload: map[string]any{"document_id": doc.ID.String()}}
			if _, err := enqueueTask(ctx, q, tasks, child); err != nil {
				logger.Error("enqueue run_full_pipeline failed", "document_id", doc.ID, "error", err)
			}
		}
		report("sync", 100)

		return map[string]any{
			"documents_synced":   len(result.Documents),
			"references_created": len(result.References),
		}, nil
	})

	pool.RegisterHandler(ingest.TaskKindRunFullPipeline, func(ctx context.Context, task ingest.Task, report func(string, int)) (map[string]any, error) {
		documentID, err := payloadUUID(task.Payload, "document_id")
		if err != nil {
			return nil, ingest.InputInvalid("invalid run_full_pipeline payload", err)
		}
		if err := ingest.RunFullPipeline(ctx, deps, documentID, ingest.ProgressReporter(report)); err != nil {
			return nil, err
		}
		maybeSignalHNSWRebuild(ctx, q, tasks, chunks, documentID, cfg, logger)
		return map[string]any{"document_id": documentID.String()}, nil
	})

	pool.RegisterHandler(ingest.TaskKindReprocessDocument, func(ctx context.Context, task ingest.Task, report func(string, int)) (map[string]any, error) {
		documentID, err := payloadUUID(task.Payload, "document_id")
		if err != nil {
			return nil, ingest.InputInvalid("invalid reprocess_document payload", err)
		}
		fromStep := payloadInt(task.Payload, "from_step", 2)
		if err := ingest.ReprocessDocument(ctx, deps, documentID, fromStep, ingest.ProgressReporter(report)); err != nil {
			return nil, err
		}
		return map[string]any{"document_id": documentID.String(), "from_step": fromStep}, nil
	})

	pool.RegisterHandler(ingest.TaskKindRebuildHNSWIndex, func(ctx context.Context, task ingest.Task, report func(string, int)) (map[string]any, error) {
		report("rebuild", 10)
		if err := metadatastore.RebuildHNSWIndex(ctx, pgPool, cfg.Retrieval.HNSWM, cfg.Retrieval.HNSWEfConstruction); err != nil {
			return nil, ingest.Temporary("hnsw index rebuild failed", err)
		}
		report("rebuild", 100)
		return map[string]any{"m": cfg.Retrieval.HNSWM, "ef_construction": cfg.Retrieval.HNSWEfConstruction}, nil
	})
}

// maybeSignalHNSWRebuild enqueues a rebuild_hnsw_index task once a document's
// children have all been embedded and their number reaches the configured
// threshold. It checks the single document just processed, which is a
// reasonable proxy since run_full_pipeline only ever embeds one document's
// children at a time.
func maybeSignalHNSWRebuild(ctx context.Context, q *queue.ValkeyQueue, tasks ingest.TaskStore, chunks ingest.ChunkStore, documentID uuid.UUID, cfg *config.Config, logger *slog.Logger) {
	if cfg.Retrieval.HNSWRebuildThreshold <= 0 {
		return
	}
	remaining, err := chunks.CountWithoutEmbedding(ctx, documentID)
	if err != nil {
		logger.Warn("count without embedding failed", "document_id", documentID, "error", err)
		return
	}
	if remaining > 0 {
		return
	}
	_, children, err := chunks.ListByDocument(ctx, documentID)
	if err != nil {
		logger.Warn("list chunks failed", "document_id", documentID, "error", err)
		return
	}
	if len(children) < cfg.Retrieval.HNSWRebuildThreshold {
		return
	}
	task := ingest.Task{Kind: ingest.TaskKindRebuildHNSWIndex, Payload: map[string]any{"triggered_by": documentID.String()}}
	if _, err := enqueueTask(ctx, q, tasks, task); err != nil {
		logger.Warn("enqueue rebuild_hnsw_index failed", "error", err)
	}
}

func enqueueTask(ctx context.Context, q *queue.ValkeyQueue, tasks ingest.TaskStore, task ingest.Task) (ingest.Task, error) {
	if err := tasks.Create(ctx, &task); err != nil {
		return task, err
	}
	if err := q.Enqueue(ctx, task); err != nil {
		return task, err
	}
	return task, nil
}

func decodeIngestOptions(payload map[string]any) (ingest.IngestOptions, error) {
	folderID, _ := payload["folder_id"].(string)
	if folderID == "" {
		return ingest.IngestOptions{}, fmt.Errorf("folder_id is required")
	}
	opts := ingest.IngestOptions{
		FolderID:         folderID,
		LocalDir:         stringField(payload, "local_dir"),
		ReconcileDeletes: boolField(payload, "reconcile_deletes"),
	}
	opts.IncludePatterns = stringSliceField(payload, "include_patterns")
	opts.ExcludePatterns = stringSliceField(payload, "exclude_patterns")
	if raw, ok := payload["export_formats"].(map[string]any); ok {
		opts.ExportFormats = make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				opts.ExportFormats[k] = s
			}
		}
	}
	return opts, nil
}

func payloadUUID(payload map[string]any, key string) (uuid.UUID, error) {
	raw, _ := payload[key].(string)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%s is required", key)
	}
	return uuid.Parse(raw)
}

func payloadInt(payload map[string]any, key string, fallback int) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func boolField(payload map[string]any, key string) bool {
	b, _ := payload[key].(bool)
	return b
}

func stringSliceField(payload map[string]any, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
