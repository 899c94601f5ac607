package port

import (
	"context"

	"recipechat/internal/domain"
)

// Classifier labels a raw query with an intent.
type Classifier interface {
	Classify(ctx context.Context, query string) (domain.QueryClassification, error)
}

// Retriever returns ranked recipe candidates for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, metric domain.Metric) ([]domain.Candidate, error)
}

// Synthesizer writes the reply for a query, grounded in candidates when
// any are given.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, candidates []domain.Candidate) (string, error)
}

// CorpusSource supplies recipe records for ingestion.
type CorpusSource interface {
	Recipes(ctx context.Context) ([]domain.Recipe, error)
}
