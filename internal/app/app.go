package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/vchaoxi/execteam/internal/config"
	"github.com/vchaoxi/execteam/internal/core"
	db "github.com/vchaoxi/execteam/internal/core/database"
	"github.com/vchaoxi/execteam/internal/core/llm"
	objectclient "github.com/vchaoxi/execteam/internal/core/object-client"
	"github.com/vchaoxi/execteam/internal/knowledge"
	"github.com/vchaoxi/execteam/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Store        *knowledge.Store
	Server       *Server

	embedder *llm.GeminiEmbedder
	llm      *llm.GeminiLLM
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm provider, %w", err)
	}

	statusCache := knowledge.NewStatusCache()
	store := knowledge.NewStore(knowledge.Config{
		DatabaseURL:  cfg.VectorDatabaseURL,
		Table:        cfg.VectorTable,
		EmbedDim:     cfg.EmbedDim,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	}, statusCache)

	if store.Configured() {
		if err := store.EnsureIndex(appCtx, false); err != nil {
			// Startup proceeds degraded; ingestion and search recover via the
			// retry path once the vector database comes back.
			log.Printf("WARN: vector index init failed, continuing degraded: %v", err)
		} else {
			log.Println("Vector index initialized and ready.")
		}
	}

	processor := knowledge.NewProcessor(store, geminiEmbedder, knowledge.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	retriever := knowledge.NewRetriever(store, geminiEmbedder)

	userSvc := services.NewUserService(dbClient)
	docSvc := services.NewDocumentService(dbClient, objClient, cfg.BucketName, processor, store, cfg.Namespace)

	server := NewServer(cfg, userSvc, docSvc, retriever, store, llmProvider)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Store:        store,
		Server:       server,
		embedder:     geminiEmbedder,
		llm:          llmProvider,
	}, nil
}

func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
