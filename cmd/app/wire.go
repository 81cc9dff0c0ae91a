//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/meridian/internal/bootstrap"
	"github.com/yanqian/meridian/internal/domain/chat"
	"github.com/yanqian/meridian/internal/domain/retrieval"
	"github.com/yanqian/meridian/internal/infra/config"
	httpiface "github.com/yanqian/meridian/internal/interface/http"
	"github.com/yanqian/meridian/internal/infra/metadatastore"
	"github.com/yanqian/meridian/pkg/logger"
)

// This file documents the provider graph wire.Build would assemble. No
// wire_gen.go is generated from it (see wire_gen.go for the hand-written
// equivalent); keep the two in sync when adding a provider.
func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		provideChatGPTClient,
		provideVisionLLM,
		provideEmbedder,
		provideDocParser,
		provideDriveSync,
		provideBucket,
		provideScratch,
		providePostgresPool,
		metadatastore.NewDocumentStore,
		metadatastore.NewChunkStore,
		metadatastore.NewEventStore,
		metadatastore.NewReferenceStore,
		metadatastore.NewChatLogStore,
		metadatastore.NewTaskStore,
		provideSessionCache,
		provideTaskQueue,
		provideIngestDependencies,
		provideRetrievalService,
		provideChatConfig,
		provideChatService,
		provideWorkerPool,
		provideHandler,
		retrieval.New,
		chat.New,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
