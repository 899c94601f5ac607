package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"recipechat/internal/adapter/analyzer"
	"recipechat/internal/domain"
	"recipechat/internal/port"
)

// IngestUseCase embeds recipes and upserts them into the vector index.
type IngestUseCase struct {
	embedder  port.Embedder
	index     port.VectorIndex
	tokenizer *analyzer.Tokenizer
	batchSize int
	workers   int
	maxTokens int
	logger    *slog.Logger
}

// NewIngestUseCase creates a new ingest use case.
func NewIngestUseCase(
	embedder port.Embedder,
	index port.VectorIndex,
	batchSize, workers, maxTokens int,
	logger *slog.Logger,
) *IngestUseCase {
	if batchSize <= 0 {
		batchSize = 500
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		embedder:  embedder,
		index:     index,
		tokenizer: analyzer.NewTokenizer(false),
		batchSize: batchSize,
		workers:   workers,
		maxTokens: maxTokens,
		logger:    logger.With("component", "ingest"),
	}
}

// IngestOptions controls a single ingestion run.
type IngestOptions struct {
	DropExisting bool
	// Progress is called after each batch with the number of recipes
	// processed so far. Calls are serialized.
	Progress func(done, total int)
}

// IngestResult contains the results of an ingestion run.
type IngestResult struct {
	Recipes    int
	Duplicates int
	Batches    int
	Written    int
	Truncated  int
	Failed     map[int64]error
	Duration   time.Duration
}

// FailedIDs returns the recipe ids that were not written, ascending.
func (r *IngestResult) FailedIDs() []int64 {
	return (&domain.IndexWriteError{Failed: r.Failed}).FailedIDs()
}

// Ingest embeds recipes in batches on a bounded worker pool and upserts
// each batch as it completes. Failed batches do not stop the run: their
// keys are collected and returned in a *domain.IndexWriteError alongside
// the result so the caller can replay just those records. A recipe id
// given more than once is written once, with its last record. The index is
// loaded at the end. Cancelling ctx stops the run; batches already
// upserted stay written.
func (u *IngestUseCase) Ingest(ctx context.Context, recipes []domain.Recipe, opts IngestOptions) (*IngestResult, error) {
	start := time.Now()
	result := &IngestResult{Recipes: len(recipes), Failed: make(map[int64]error)}

	if opts.DropExisting {
		if err := u.index.Drop(ctx); err != nil {
			return nil, fmt.Errorf("failed to drop index: %w", err)
		}
		u.logger.Info("dropped existing index")
	}

	recipes = u.dedupe(recipes, result)

	docs := make([]domain.RecipeDocument, len(recipes))
	for i, r := range recipes {
		doc := r.Document()
		if truncated := u.tokenizer.Truncate(doc.Text, u.maxTokens); truncated != doc.Text {
			doc.Text = truncated
			result.Truncated++
		}
		docs[i] = doc
	}

	var (
		mu   sync.Mutex
		done int
	)
	record := func(batch []domain.RecipeDocument, written int, failed map[int64]error) {
		mu.Lock()
		defer mu.Unlock()
		result.Batches++
		result.Written += written
		for id, err := range failed {
			result.Failed[id] = err
		}
		done += len(batch)
		if opts.Progress != nil {
			opts.Progress(done, len(docs))
		}
	}

	var upsertMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)

	for off := 0; off < len(docs); off += u.batchSize {
		end := off + u.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[off:end]

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			texts := make([]string, len(batch))
			for i, d := range batch {
				texts[i] = d.Text
			}
			vectors, err := u.embedder.EmbedMany(gctx, texts)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				u.logger.Error("embedding batch failed", "size", len(batch), "error", err)
				record(batch, 0, failAll(batch, err))
				return nil
			}

			entries := make([]domain.IndexEntry, len(batch))
			for i, d := range batch {
				entries[i] = domain.IndexEntry{
					RecipeID: d.RecipeID,
					Vector:   vectors[i],
					Metadata: domain.EntryMetadata{Name: d.Name, CreatedAt: d.CreatedAt, Text: d.Text},
				}
			}

			upsertMu.Lock()
			written, err := u.index.Upsert(gctx, entries)
			upsertMu.Unlock()

			var writeErr *domain.IndexWriteError
			switch {
			case err == nil:
				record(batch, written, nil)
			case errors.As(err, &writeErr):
				record(batch, written, writeErr.Failed)
			default:
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				record(batch, 0, failAll(batch, err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	if err := u.index.Load(ctx); err != nil {
		// Nothing written to a missing index leaves nothing to load.
		if !(result.Written == 0 && errors.Is(err, domain.ErrIndexNotReady)) {
			return result, fmt.Errorf("failed to load index: %w", err)
		}
	}

	result.Duration = time.Since(start)
	u.logger.Info("ingest complete",
		"recipes", result.Recipes,
		"written", result.Written,
		"failed", len(result.Failed),
		"truncated", result.Truncated,
		"duplicates", result.Duplicates,
		"duration", result.Duration,
	)

	if len(result.Failed) > 0 {
		return result, &domain.IndexWriteError{Failed: result.Failed}
	}
	return result, nil
}

func failAll(batch []domain.RecipeDocument, err error) map[int64]error {
	failed := make(map[int64]error, len(batch))
	for _, d := range batch {
		failed[d.RecipeID] = err
	}
	return failed
}

// dedupe keeps one record per id: the last one given, in the slot of the
// first. Batches commit in completion order, so two records for one id must
// never reach different batches.
func (u *IngestUseCase) dedupe(recipes []domain.Recipe, result *IngestResult) []domain.Recipe {
	position := make(map[int64]int, len(recipes))
	out := make([]domain.Recipe, 0, len(recipes))
	for _, r := range recipes {
		if i, ok := position[r.ID]; ok {
			u.logger.Warn("duplicate recipe id", "id", r.ID)
			out[i] = r
			result.Duplicates++
			continue
		}
		position[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}
