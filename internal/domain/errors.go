package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrIndexNotReady is returned by searches against an index that is
	// empty, not loaded, or missing.
	ErrIndexNotReady = errors.New("vector index not ready")

	// ErrTokenBudget indicates an embedding input longer than the model accepts.
	ErrTokenBudget = errors.New("input exceeds embedding token budget")

	// ErrEmptyGeneration indicates the text backend produced no usable text.
	ErrEmptyGeneration = errors.New("empty generation")

	// ErrDimensionMismatch indicates a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidRecipeID indicates a non-positive primary key.
	ErrInvalidRecipeID = errors.New("recipe id must be positive")

	// ErrEntryNotFound indicates a recipe id with no index entry.
	ErrEntryNotFound = errors.New("index entry not found")
)

// IndexNotReadyError carries the reason an index refused to search.
type IndexNotReadyError struct {
	Reason string
}

func (e *IndexNotReadyError) Error() string {
	return fmt.Sprintf("vector index not ready: %s", e.Reason)
}

func (e *IndexNotReadyError) Is(target error) bool {
	return target == ErrIndexNotReady
}

// EmbeddingError wraps a failure of the embedding backend.
type EmbeddingError struct {
	Model string
	Err   error
}

func (e *EmbeddingError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("embedding failed: %v", e.Err)
	}
	return fmt.Sprintf("embedding failed (%s): %v", e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexWriteError names the keys of an upsert batch that were not written.
// Keys absent from Failed were written.
type IndexWriteError struct {
	Failed map[int64]error
}

func (e *IndexWriteError) Error() string {
	ids := e.FailedIDs()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d: %v", id, e.Failed[id]))
	}
	return fmt.Sprintf("index write failed for %d key(s): %s", len(ids), strings.Join(parts, "; "))
}

// FailedIDs returns the failed keys in ascending order.
func (e *IndexWriteError) FailedIDs() []int64 {
	ids := make([]int64, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ConfigurationError reports a metric, dimension or settings mismatch.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// RetrievalStage names the sub-call a retrieval failed in.
type RetrievalStage string

const (
	StageEmbed  RetrievalStage = "embed"
	StageSearch RetrievalStage = "search"
)

// RetrievalError wraps the first failing sub-call of a retrieval.
type RetrievalError struct {
	Stage RetrievalStage
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed at %s: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// SynthesisError wraps a failed or degenerate generation of a reply.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// ClassificationError wraps a failed call to the classification backend.
// An invalid label is not an error; see ClassificationFallback.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// ClassificationFallback records a backend label that was coerced to the
// safe default.
type ClassificationFallback struct {
	Query    string
	RawLabel string
	Coerced  QueryClassification
}
