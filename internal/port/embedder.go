package port

import (
	"context"

	"recipechat/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding of a single text.
	Embed(ctx context.Context, text string) (domain.EmbeddingVector, error)

	// EmbedMany generates embeddings for the given texts.
	// The result has one vector per input, in input order.
	EmbedMany(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorIndex stores one vector per recipe and answers similarity queries.
// Implementations must be safe for concurrent use; a search observes either
// the whole of an upsert batch or none of it.
type VectorIndex interface {
	// Upsert inserts or replaces entries by RecipeID and returns how many were written.
	// A partial failure is reported as *domain.IndexWriteError.
	Upsert(ctx context.Context, entries []domain.IndexEntry) (int, error)

	// Search returns at most topK candidates ordered by non-decreasing distance.
	Search(ctx context.Context, query domain.EmbeddingVector, topK int, metric domain.Metric) ([]domain.Candidate, error)

	// Exists reports whether the index has been created.
	Exists(ctx context.Context) (bool, error)

	// Drop removes the index and all its entries.
	Drop(ctx context.Context) error

	// Load makes the index resident for search.
	Load(ctx context.Context) error

	// Release evicts the resident data; Search fails until the next Load.
	Release(ctx context.Context) error

	// Ready returns a *domain.IndexNotReadyError when Search cannot serve
	// queries: the index is not loaded or holds no entries.
	Ready(ctx context.Context) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Get returns the stored entry for id or domain.ErrEntryNotFound.
	Get(ctx context.Context, id int64) (domain.IndexEntry, error)

	// Metric returns the metric the index was built with.
	Metric() domain.Metric

	// Dimension returns the vector dimension the index accepts.
	Dimension() int
}
