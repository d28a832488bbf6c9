package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/54b3r/docchat-go/internal/chat"
	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/provider"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/session"
	"github.com/54b3r/docchat-go/internal/store"
)

// archiveDisabled is the DOCCHAT_ARCHIVE_DB value that turns the archive off.
const archiveDisabled = "disabled"

// stack is the wired chat engine with the components commands report on.
type stack struct {
	engine      *chat.Engine
	embedder    *embedder.Provider
	providerCfg *provider.Config
}

// buildPipeline wires the embedder, index factory and ingestor into an
// upload pipeline.
func buildPipeline(log *slog.Logger) (*ingestion.Pipeline, *embedder.Provider, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, nil, err
	}
	emb, err := embedder.NewFromEnv(log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	indexes, err := index.NewFactoryFromEnv()
	if err != nil {
		return nil, nil, err
	}
	ingestor, err := ingestion.New(ingestion.ConfigFromEnv())
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := ingestion.NewPipeline(ingestor, emb, indexes, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("upload pipeline ready",
		slog.String("embedding_model", emb.ModelName()),
		slog.String("index_backend", string(indexes.Backend())),
	)
	return pipeline, emb, nil
}

// buildStack wires the chat backend, the upload pipeline and retrieval into
// an engine. obs may be nil.
func buildStack(ctx context.Context, log *slog.Logger, obs chat.Observer) (*stack, error) {
	chatModel, providerCfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	pipeline, emb, err := buildPipeline(log)
	if err != nil {
		return nil, err
	}

	coordinator, err := rag.NewCoordinator(emb, rag.ConfigFromEnv())
	if err != nil {
		return nil, err
	}

	opts := []chat.Option{chat.WithRetriever(coordinator)}
	if obs != nil {
		opts = append(opts, chat.WithObserver(obs))
	}
	sessions := session.NewRegistry()
	orch, err := chat.New(chatModel, sessions, chat.ConfigFromEnv(), opts...)
	if err != nil {
		return nil, err
	}
	engine, err := chat.NewEngine(sessions, orch, pipeline)
	if err != nil {
		return nil, err
	}
	return &stack{engine: engine, embedder: emb, providerCfg: providerCfg}, nil
}

// openArchive opens the snapshot archive named by DOCCHAT_ARCHIVE_DB, or
// the default path. It returns nil when the archive is disabled.
func openArchive(log *slog.Logger) (*store.SQLiteStore, error) {
	dbPath := os.Getenv("DOCCHAT_ARCHIVE_DB")
	if dbPath == archiveDisabled {
		log.Info("archive: disabled via DOCCHAT_ARCHIVE_DB=disabled")
		return nil, nil
	}
	if dbPath == "" {
		var err error
		if dbPath, err = store.DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	archive, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	log.Info("archive: store opened", slog.String("path", dbPath))
	return archive, nil
}
