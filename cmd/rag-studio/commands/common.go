package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/rag-studio/internal/core/chat"
	"github.com/jinford/rag-studio/internal/core/collection"
	"github.com/jinford/rag-studio/internal/core/ingestion"
	"github.com/jinford/rag-studio/internal/core/vectorstore"
	"github.com/jinford/rag-studio/internal/infra/loader"
	"github.com/jinford/rag-studio/internal/infra/memstore"
	"github.com/jinford/rag-studio/internal/infra/openai"
	"github.com/jinford/rag-studio/internal/infra/postgres"
	"github.com/jinford/rag-studio/internal/infra/qdrant"
	"github.com/jinford/rag-studio/internal/platform/logger"
	"github.com/jinford/rag-studio/pkg/config"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config      *config.Config
	Logger      *slog.Logger
	Store       vectorstore.Store
	Ingest      *ingestion.IngestService
	Chat        *chat.Service
	Collections *collection.Service

	closers []func()
}

// NewAppContext は設定を読み込み、ベクトルストアと各サービスを組み立てる
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})

	ac := &AppContext{
		Config: cfg,
		Logger: appLogger,
	}

	store, err := ac.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	ac.Store = store

	if cfg.OpenAI.APIKey == "" {
		return nil, openai.ErrAPIKeyNotSet
	}

	embedder, err := openai.NewEmbedder(cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	chatClient, err := openai.NewChatClient(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}

	ac.Ingest = ingestion.NewIngestService(
		embedder,
		store,
		loader.NewPDFLoader(),
		loader.NewCSVLoader(),
		loader.NewWebLoader(appLogger),
		appLogger,
	)
	ac.Chat = chat.NewService(embedder, store, chatClient, appLogger)
	ac.Collections = collection.NewService(store, appLogger)

	return ac, nil
}

// buildStore は設定されたバックエンドのベクトルストアを構築する
func (ac *AppContext) buildStore(ctx context.Context) (vectorstore.Store, error) {
	cfg := ac.Config
	switch cfg.VectorBackend {
	case "qdrant":
		return qdrant.NewStore(qdrant.Config{
			URL:               cfg.Qdrant.URL,
			APIKey:            cfg.Qdrant.APIKey,
			DefaultVectorSize: cfg.OpenAI.EmbeddingDimension,
		}), nil

	case "postgres":
		store, err := postgres.NewStore(ctx, postgres.ConnectionParams{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, cfg.OpenAI.EmbeddingDimension)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		ac.closers = append(ac.closers, store.Close)
		return store, nil

	case "memory":
		// 永続化なし: ローカル開発・動作確認用
		return memstore.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND: %q (use qdrant, postgres, or memory)", cfg.VectorBackend)
	}
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	for _, close := range ac.closers {
		close()
	}
}
