package embedding

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"recipechat/internal/adapter/analyzer"
	"recipechat/internal/domain"
	"recipechat/internal/port"
)

var _ port.Embedder = (*OpenAIEmbedder)(nil)

// OpenAIConfig configures an OpenAI-compatible /embeddings client.
type OpenAIConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	Dimension         int
	BatchSize         int
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint
// (OpenAI, Ollama, Jina, DeepSeek).
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
	maxTokens int
	timeout   time.Duration
	limiter   *rate.Limiter
	tokenizer *analyzer.Tokenizer
}

// NewOpenAIEmbedder creates an embedder for the OpenAI API, reading the key
// from apiKeyEnv.
func NewOpenAIEmbedder(apiKeyEnv string, cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	cfg.APIKey = apiKey
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return NewOpenAICompatibleEmbedder(cfg), nil
}

// NewOllamaEmbedder creates an embedder for a local Ollama server.
func NewOllamaEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	cfg.APIKey = "ollama"
	return NewOpenAICompatibleEmbedder(cfg)
}

// NewOpenAICompatibleEmbedder creates an embedder from an explicit config.
func NewOpenAICompatibleEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.Dimension <= 0 {
		cfg.Dimension = dimensionForModel(cfg.Model)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		limiter:   limiter,
		tokenizer: analyzer.NewTokenizer(false),
	}
}

func dimensionForModel(model string) int {
	switch model {
	case "all-minilm", "all-MiniLM-L6-v2", "sentence-transformers/all-MiniLM-L6-v2":
		return 384
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large", "jina-embeddings-v3":
		return 1024
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	}
	return domain.EmbeddingDimension
}

// Embed generates the embedding of a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany embeds texts in sub-batches, preserving input order.
func (e *OpenAIEmbedder) EmbedMany(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	for i, text := range texts {
		if e.maxTokens > 0 && e.tokenizer.CountTokens(text) > e.maxTokens {
			return nil, e.wrap(fmt.Errorf("input %d: %w (%d > %d)", i, domain.ErrTokenBudget, e.tokenizer.CountTokens(text), e.maxTokens))
		}
	}

	all := make([]domain.EmbeddingVector, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, e.wrap(err)
		}
		all = append(all, vectors...)
	}

	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	embeddings := make([]domain.EmbeddingVector, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("response index %d out of range", data.Index)
		}
		if len(data.Embedding) != e.dimension {
			return nil, fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, e.dimension, len(data.Embedding))
		}
		embeddings[data.Index] = Normalize(data.Embedding)
	}
	for i, v := range embeddings {
		if v == nil {
			return nil, fmt.Errorf("response missing embedding for input %d", i)
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) wrap(err error) error {
	return &domain.EmbeddingError{Model: e.model, Err: err}
}

// Dimension returns the embedding vector dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
