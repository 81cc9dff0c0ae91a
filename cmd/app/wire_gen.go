// Code generated by Wire would normally live here. The teacher's wire.go
// graph (see wire.go, gated by the wireinject build tag) never shipped a
// committed wire_gen.go, so this file hand-assembles the same provider graph
// in plain sequential Go.

package main

import (
	"context"

	"github.com/yanqian/meridian/internal/bootstrap"
	httpiface "github.com/yanqian/meridian/internal/interface/http"
	"github.com/yanqian/meridian/internal/infra/config"
	"github.com/yanqian/meridian/internal/infra/metadatastore"
	"github.com/yanqian/meridian/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New()

	ctx := context.Background()

	chatGPTClient, err := provideChatGPTClient(cfg)
	if err != nil {
		return nil, err
	}
	vision := provideVisionLLM(chatGPTClient, cfg, log)
	embedder := provideEmbedder(chatGPTClient, cfg)
	parser := provideDocParser()
	drive := provideDriveSync()

	bucket, err := provideBucket(cfg, log)
	if err != nil {
		return nil, err
	}
	scratch, err := provideScratch(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := providePostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	documents := metadatastore.NewDocumentStore(pool)
	chunks := metadatastore.NewChunkStore(pool)
	events := metadatastore.NewEventStore(pool)
	references := metadatastore.NewReferenceStore(pool)
	chatLogs := metadatastore.NewChatLogStore(pool)
	tasks := metadatastore.NewTaskStore(pool)

	sessions := provideSessionCache(cfg, log)

	taskQueue, err := provideTaskQueue(cfg, log)
	if err != nil {
		return nil, err
	}

	deps := provideIngestDependencies(cfg, bucket, drive, parser, vision, embedder, documents, chunks, events, references, log)

	retrievalSvc := provideRetrievalService(embedder, chunks)
	chatCfg := provideChatConfig(cfg)
	chatSvc := provideChatService(retrievalSvc, vision, sessions, chatLogs, log, chatCfg)

	workerPool := provideWorkerPool(deps, taskQueue, pool, scratch, chunks, tasks, cfg, log)

	handler := provideHandler(chatSvc, retrievalSvc, documents, tasks, taskQueue, log, cfg)
	server := httpiface.NewRouter(cfg, handler)

	return bootstrap.NewApp(cfg, log, server, workerPool), nil
}
