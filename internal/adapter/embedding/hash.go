package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	"recipechat/internal/adapter/analyzer"
	"recipechat/internal/domain"
	"recipechat/internal/port"
)

var _ port.Embedder = (*HashEmbedder)(nil)

// HashEmbedder is a deterministic, offline embedder. Stemmed unigrams and
// bigrams are hashed into signed buckets and the result is L2-normalised,
// so texts sharing vocabulary have small cosine distance.
type HashEmbedder struct {
	dimension int
	maxTokens int
	tokenizer *analyzer.Tokenizer
}

// NewHashEmbedder creates a hashing embedder. maxTokens <= 0 disables the
// input budget.
func NewHashEmbedder(dimension, maxTokens int) *HashEmbedder {
	if dimension <= 0 {
		dimension = domain.EmbeddingDimension
	}
	return &HashEmbedder{
		dimension: dimension,
		maxTokens: maxTokens,
		tokenizer: analyzer.NewTokenizer(true),
	}
}

// Embed generates the embedding of a single text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.EmbeddingError{Model: e.ModelName(), Err: err}
	}
	if e.maxTokens > 0 && e.tokenizer.CountTokens(text) > e.maxTokens {
		return nil, &domain.EmbeddingError{
			Model: e.ModelName(),
			Err:   fmt.Errorf("%w (%d > %d)", domain.ErrTokenBudget, e.tokenizer.CountTokens(text), e.maxTokens),
		}
	}

	vec := make([]float32, e.dimension)
	tokens := e.tokenizer.Tokenize(text)
	for i, tok := range tokens {
		e.add(vec, tok, 1.0)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return Normalize(vec), nil
}

// EmbedMany embeds each text in order.
func (e *HashEmbedder) EmbedMany(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	out := make([]domain.EmbeddingVector, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *HashEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(e.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Dimension returns the embedding vector dimension.
func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model.
func (e *HashEmbedder) ModelName() string {
	return fmt.Sprintf("hash-%d", e.dimension)
}
