package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"recipechat/internal/domain"
)

// CurrentSchemaVersion is the storage format version of the recipes bucket.
// Increment this when making breaking changes to the record encoding.
const CurrentSchemaVersion = 1

// IndexMeta describes how the vectors in an index were built. It is written
// with the first upsert and checked on every open.
type IndexMeta struct {
	SchemaVersion int           `json:"schema_version"`
	Metric        domain.Metric `json:"metric"`
	Dimension     int           `json:"dimension"`
	Model         string        `json:"model,omitempty"`
}

func readMeta(tx *bbolt.Tx) (*IndexMeta, error) {
	b := tx.Bucket(bucketMeta)
	if b == nil {
		return nil, nil
	}
	data := b.Get(keyIndexMeta)
	if data == nil {
		return nil, nil
	}
	var meta IndexMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode index meta: %w", err)
	}
	return &meta, nil
}

func writeMeta(tx *bbolt.Tx, meta IndexMeta) error {
	b, err := tx.CreateBucketIfNotExists(bucketMeta)
	if err != nil {
		return err
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return b.Put(keyIndexMeta, data)
}

// checkMeta compares stored build settings against the ones the caller
// opened the index with.
func checkMeta(stored *IndexMeta, want IndexMeta) error {
	if stored == nil {
		return nil
	}
	if stored.SchemaVersion > CurrentSchemaVersion {
		return &domain.ConfigurationError{
			Field:  "index.schema_version",
			Reason: fmt.Sprintf("index created by newer version (v%d > v%d)", stored.SchemaVersion, CurrentSchemaVersion),
		}
	}
	if stored.Metric != want.Metric {
		return &domain.ConfigurationError{
			Field:  "index.metric",
			Reason: fmt.Sprintf("index built with %s, opened with %s", stored.Metric, want.Metric),
		}
	}
	if stored.Dimension != want.Dimension {
		return &domain.ConfigurationError{
			Field:  "index.dimension",
			Reason: fmt.Sprintf("index built with %d dimensions, embedder produces %d", stored.Dimension, want.Dimension),
		}
	}
	if stored.Model != "" && want.Model != "" && stored.Model != want.Model {
		return &domain.ConfigurationError{
			Field:  "embedding.model",
			Reason: fmt.Sprintf("index built with %s, embedder is %s", stored.Model, want.Model),
		}
	}
	return nil
}
