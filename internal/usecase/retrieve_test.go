package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"recipechat/internal/adapter/embedding"
	"recipechat/internal/domain"
)

func ingestSample(t *testing.T, embedder *embedding.HashEmbedder) *RetrieveUseCase {
	t.Helper()
	idx := openIndex(t)
	_, err := NewIngestUseCase(embedder, idx, 4, 2, 256, nil).Ingest(context.Background(), sampleRecipes(), IngestOptions{})
	require.NoError(t, err)
	return NewRetrieveUseCase(embedder, idx, 256, time.Second, nil)
}

func TestRetrieve_FindsChocolateCake(t *testing.T) {
	u := ingestSample(t, embedding.NewHashEmbedder(domain.EmbeddingDimension, 256))

	candidates, err := u.Retrieve(context.Background(), "chocolate dessert", 5, domain.Cosine)
	require.NoError(t, err)
	require.LessOrEqual(t, len(candidates), 5)

	var ids []int64
	for _, c := range candidates {
		ids = append(ids, c.RecipeID)
	}
	assert.Contains(t, ids, int64(38))
	assert.Equal(t, int64(38), candidates[0].RecipeID)
	assert.Equal(t, "Chocolate Cake", candidates[0].Name)

	for i := 1; i < len(candidates); i++ {
		assert.LessOrEqual(t, candidates[i-1].Distance, candidates[i].Distance)
	}
}

func TestRetrieve_StopWordsOnlyQuery(t *testing.T) {
	embedder := embedding.NewHashEmbedder(domain.EmbeddingDimension, 256)
	idx := openIndex(t)
	_, err := NewIngestUseCase(embedder, idx, 4, 2, 256, nil).Ingest(context.Background(), sampleRecipes(), IngestOptions{})
	require.NoError(t, err)
	u := NewRetrieveUseCase(slowEmbedder{dim: domain.EmbeddingDimension}, idx, 256, time.Second, nil)

	// The slow embedder would time out if it were called.
	start := time.Now()
	candidates, err := u.Retrieve(context.Background(), "what is it that you are?", 5, domain.Cosine)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetrieve_StopWordsOnlyQueryIndexNotLoaded(t *testing.T) {
	idx := openIndex(t)
	u := NewRetrieveUseCase(slowEmbedder{dim: domain.EmbeddingDimension}, idx, 256, time.Second, nil)

	_, err := u.Retrieve(context.Background(), "what is it that you are?", 5, domain.Cosine)
	var retErr *domain.RetrievalError
	require.True(t, errors.As(err, &retErr), "got %v", err)
	assert.Equal(t, domain.StageSearch, retErr.Stage)
	assert.ErrorIs(t, err, domain.ErrIndexNotReady)
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	idx := openIndex(t)
	embedder := embedding.NewHashEmbedder(domain.EmbeddingDimension, 256)
	u := NewRetrieveUseCase(embedder, idx, 256, time.Second, nil)

	_, err := u.Retrieve(context.Background(), "chocolate dessert", 5, domain.Cosine)
	var retErr *domain.RetrievalError
	require.True(t, errors.As(err, &retErr), "got %v", err)
	assert.Equal(t, domain.StageSearch, retErr.Stage)
	assert.ErrorIs(t, err, domain.ErrIndexNotReady)
}

func TestRetrieve_EmbedTimeout(t *testing.T) {
	idx := openIndex(t)
	u := NewRetrieveUseCase(slowEmbedder{dim: domain.EmbeddingDimension}, idx, 256, 20*time.Millisecond, nil)

	_, err := u.Retrieve(context.Background(), "chocolate dessert", 5, domain.Cosine)
	var retErr *domain.RetrievalError
	require.True(t, errors.As(err, &retErr), "got %v", err)
	assert.Equal(t, domain.StageEmbed, retErr.Stage)

	var embErr *domain.EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, "slow", embErr.Model)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetrieve_MetricMismatch(t *testing.T) {
	u := ingestSample(t, embedding.NewHashEmbedder(domain.EmbeddingDimension, 256))

	_, err := u.Retrieve(context.Background(), "chocolate dessert", 5, domain.Euclidean)
	var cfgErr *domain.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)
}

func TestRetrieve_TruncatesLongQuery(t *testing.T) {
	embedder := embedding.NewHashEmbedder(domain.EmbeddingDimension, 8)
	idx := openIndex(t)
	_, err := NewIngestUseCase(embedder, idx, 4, 1, 8, nil).Ingest(context.Background(), sampleRecipes(), IngestOptions{})
	require.NoError(t, err)
	u := NewRetrieveUseCase(embedder, idx, 8, time.Second, nil)

	_, err = u.Retrieve(context.Background(), "chocolate cake cocoa flour batter birthday dessert party frosting sprinkles candles", 3, domain.Cosine)
	assert.NoError(t, err)
}
