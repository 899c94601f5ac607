// Package app wires configuration into the adapters and use cases shared by
// the CLI commands, the HTTP server and the benchmark tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"recipechat/config"
	"recipechat/internal/adapter/corpus"
	"recipechat/internal/adapter/embedding"
	"recipechat/internal/adapter/llm"
	"recipechat/internal/adapter/store"
	"recipechat/internal/domain"
	"recipechat/internal/port"
	"recipechat/internal/usecase"
)

// App holds the opened index and embedder for one process.
type App struct {
	Config   *config.Config
	RootDir  string
	Logger   *slog.Logger
	Embedder port.Embedder
	Index    port.VectorIndex
	Metric   domain.Metric

	closers []func() error
}

// Open validates cfg, builds the embedder and opens the configured index.
// The index is not loaded.
func Open(ctx context.Context, cfg *config.Config, rootDir string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metric, err := domain.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	if embedder.Dimension() != cfg.Index.Dimension {
		return nil, &domain.ConfigurationError{
			Field:  "embedding.model",
			Reason: fmt.Sprintf("%s produces %d dimensions, index expects %d", embedder.ModelName(), embedder.Dimension(), cfg.Index.Dimension),
		}
	}

	a := &App{
		Config:   cfg,
		RootDir:  rootDir,
		Logger:   logger,
		Embedder: embedder,
		Metric:   metric,
	}

	switch cfg.Index.Backend {
	case "postgres":
		err = a.openPostgres(ctx)
	default:
		err = a.openBolt()
	}
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openBolt() error {
	if err := a.Config.EnsureIndexDir(a.RootDir); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	path := a.Config.IndexDBPath(a.RootDir)
	st, err := store.NewBoltStore(path)
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}
	a.closers = append(a.closers, st.Close)

	idx, err := store.NewBoltVectorIndex(st.DB(), store.IndexOptions{
		Metric:    a.Metric,
		Dimension: a.Config.Index.Dimension,
		NList:     a.Config.Index.NList,
		NProbe:    a.Config.Index.NProbe,
		Model:     a.Embedder.ModelName(),
		Logger:    a.Logger,
	})
	if err != nil {
		return err
	}
	a.Index = idx
	a.Logger.Debug("opened bolt index", "path", path)
	return nil
}

func (a *App) openPostgres(ctx context.Context) error {
	dsn := a.Config.PostgresDSN()
	if dsn == "" {
		return &domain.ConfigurationError{
			Field:  "index.dsn",
			Reason: fmt.Sprintf("no dsn configured and %s is not set", a.Config.Index.DSNEnv),
		}
	}
	db, err := store.OpenPostgres(ctx, dsn)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)

	idx, err := store.NewPostgresVectorIndex(db, store.PostgresOptions{
		Table:     a.Config.Index.Table,
		Metric:    a.Metric,
		Dimension: a.Config.Index.Dimension,
		NList:     a.Config.Index.NList,
		NProbe:    a.Config.Index.NProbe,
		Logger:    a.Logger,
	})
	if err != nil {
		return err
	}
	a.Index = idx
	return nil
}

// Close releases the index and closes its storage.
func (a *App) Close() error {
	var errs []error
	if a.Index != nil {
		errs = append(errs, a.Index.Release(context.Background()))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// LoadIndex makes the index searchable. A missing or empty index is logged
// and not returned: searches then fail with domain.ErrIndexNotReady.
func (a *App) LoadIndex(ctx context.Context) error {
	err := a.Index.Load(ctx)
	if errors.Is(err, domain.ErrIndexNotReady) {
		a.Logger.Warn("index not ready, run 'recipechat ingest' first", "error", err)
		return nil
	}
	return err
}

// NewEmbedder builds the configured embedding backend.
func NewEmbedder(cfg *config.Config) (port.Embedder, error) {
	ec := embedding.OpenAIConfig{
		Model:             cfg.Embedding.Model,
		BaseURL:           cfg.Embedding.BaseURL,
		Dimension:         cfg.Embedding.Dimension,
		BatchSize:         cfg.Embedding.BatchSize,
		MaxTokens:         cfg.Embedding.MaxTokens,
		Timeout:           cfg.Embedding.Timeout,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	}

	switch cfg.Embedding.Provider {
	case "openai":
		e, err := embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, ec)
		if err != nil {
			return nil, &domain.ConfigurationError{Field: "embedding.api_key_env", Reason: err.Error()}
		}
		return e, nil
	case "ollama":
		return embedding.NewOllamaEmbedder(ec), nil
	case "hash":
		return embedding.NewHashEmbedder(cfg.Embedding.Dimension, cfg.Embedding.MaxTokens), nil
	}
	return nil, &domain.ConfigurationError{Field: "embedding.provider", Reason: fmt.Sprintf("unsupported provider %q", cfg.Embedding.Provider)}
}

// NewGenerator builds the configured text-generation backend.
func NewGenerator(cfg *config.Config) (port.Generator, error) {
	return llm.NewChatGenerator(cfg.LLM.APIKeyEnv, llm.Config{
		Provider:    cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})
}

// Retriever returns the query-time retrieval use case. Query embeddings
// are cached.
func (a *App) Retriever() *usecase.RetrieveUseCase {
	cache := embedding.NewCache(a.Config.Embedding.CacheSize, a.Config.Embedding.CacheTTL)
	return usecase.NewRetrieveUseCase(
		embedding.NewCachedEmbedder(a.Embedder, cache),
		a.Index,
		a.Config.Embedding.MaxTokens,
		a.Config.Embedding.Timeout,
		a.Logger,
	)
}

// Pipeline builds the conversation pipeline over gen. Use NewGenerator for
// the configured backend.
func (a *App) Pipeline(gen port.Generator, opts ...usecase.ClassifyOption) *usecase.Pipeline {
	opts = append([]usecase.ClassifyOption{usecase.WithClassifyLogger(a.Logger)}, opts...)
	return usecase.NewPipeline(
		usecase.NewClassifyUseCase(gen, a.Config.LLM.Timeout, opts...),
		a.Retriever(),
		usecase.NewSynthesizeUseCase(gen, a.Config.LLM.ContextTokens, a.Config.LLM.Timeout, a.Logger),
		usecase.PipelineConfig{
			TopK:          a.Config.Retrieve.TopK,
			Metric:        a.Metric,
			Greeting:      a.Config.Chat.Greeting,
			FallbackReply: a.Config.Chat.FallbackReply,
		},
		a.Logger,
	)
}

// Ingest returns the ingestion use case.
func (a *App) Ingest() *usecase.IngestUseCase {
	return usecase.NewIngestUseCase(
		a.Embedder,
		a.Index,
		a.Config.Ingest.BatchSize,
		a.Config.Ingest.Workers,
		a.Config.Embedding.MaxTokens,
		a.Logger,
	)
}

// Corpus returns a loader for dir, or for the configured corpus directory
// when dir is empty.
func (a *App) Corpus(dir string) *corpus.Loader {
	if dir == "" {
		dir = a.Config.Ingest.Corpus
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(a.RootDir, dir)
	}
	return corpus.NewLoader(dir, a.Config.Ingest.Includes, a.Config.Ingest.Excludes, a.Logger)
}
