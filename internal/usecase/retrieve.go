package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"recipechat/internal/adapter/analyzer"
	"recipechat/internal/domain"
	"recipechat/internal/port"
)

var _ port.Retriever = (*RetrieveUseCase)(nil)

// RetrieveUseCase runs normalize, embed and search for one query.
type RetrieveUseCase struct {
	normalizer *analyzer.Normalizer
	tokenizer  *analyzer.Tokenizer
	embedder   port.Embedder
	index      port.VectorIndex
	maxTokens  int
	timeout    time.Duration
	logger     *slog.Logger
}

// NewRetrieveUseCase creates a new retrieve use case. Normalized queries
// longer than maxTokens are truncated before embedding; timeout bounds the
// embedding call.
func NewRetrieveUseCase(
	embedder port.Embedder,
	index port.VectorIndex,
	maxTokens int,
	timeout time.Duration,
	logger *slog.Logger,
) *RetrieveUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrieveUseCase{
		normalizer: analyzer.NewNormalizer(),
		tokenizer:  analyzer.NewTokenizer(false),
		embedder:   embedder,
		index:      index,
		maxTokens:  maxTokens,
		timeout:    timeout,
		logger:     logger.With("component", "retriever"),
	}
}

// Retrieve returns up to topK candidates ordered by ascending distance.
// A query with no searchable words yields no candidates without calling
// the embedder or searching, once the index is ready. Failures are
// *domain.RetrievalError.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, topK int, metric domain.Metric) ([]domain.Candidate, error) {
	normalized := u.normalizer.Normalize(query)
	if normalized == "" {
		if err := u.index.Ready(ctx); err != nil {
			return nil, &domain.RetrievalError{Stage: domain.StageSearch, Err: err}
		}
		u.logger.Debug("query has no searchable words", "query", query)
		return []domain.Candidate{}, nil
	}
	normalized = u.tokenizer.Truncate(normalized, u.maxTokens)

	vector, err := u.embed(ctx, normalized)
	if err != nil {
		return nil, &domain.RetrievalError{Stage: domain.StageEmbed, Err: err}
	}

	candidates, err := u.index.Search(ctx, vector, topK, metric)
	if err != nil {
		return nil, &domain.RetrievalError{Stage: domain.StageSearch, Err: err}
	}

	u.logger.Debug("retrieved", "normalized", normalized, "candidates", len(candidates))
	return candidates, nil
}

func (u *RetrieveUseCase) embed(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	vector, err := u.embedder.Embed(ctx, text)
	if err != nil {
		var embErr *domain.EmbeddingError
		if !errors.As(err, &embErr) {
			err = &domain.EmbeddingError{Model: u.embedder.ModelName(), Err: err}
		}
		return nil, err
	}
	return vector, nil
}
