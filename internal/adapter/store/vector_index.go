package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"go.etcd.io/bbolt"
	"recipechat/internal/domain"
)

// IndexOptions configures a BoltVectorIndex.
type IndexOptions struct {
	Metric    domain.Metric
	Dimension int
	NList     int // IVF partitions built on Load
	NProbe    int // partitions scanned per query before widening
	Model     string
	Seed      uint64
	Logger    *slog.Logger
}

// BoltVectorIndex persists one vector per recipe in bolt and serves
// approximate nearest-neighbour search from an in-memory IVF snapshot.
//
// Writers are serialized by writeMu. Readers load the current snapshot
// atomically and never block; an upsert publishes a new snapshot only after
// its transaction commits, so a search sees a whole batch or none of it.
type BoltVectorIndex struct {
	db      *bbolt.DB
	opts    IndexOptions
	dist    distanceFunc
	logger  *slog.Logger
	writeMu sync.Mutex
	snap    atomic.Pointer[snapshot]
}

type snapshot struct {
	entries map[int64]domain.IndexEntry
	ivf     *ivfIndex
}

type storedEntry struct {
	Vector   []float32            `json:"v"`
	Metadata domain.EntryMetadata `json:"m"`
}

// NewBoltVectorIndex opens the index stored in db. The index is not
// searchable until Load is called.
func NewBoltVectorIndex(db *bbolt.DB, opts IndexOptions) (*BoltVectorIndex, error) {
	if opts.Metric == "" {
		opts.Metric = domain.Cosine
	}
	if opts.Dimension <= 0 {
		return nil, &domain.ConfigurationError{Field: "index.dimension", Reason: "must be positive"}
	}
	if opts.NList <= 0 {
		opts.NList = defaultIVFLists
	}
	if opts.NProbe <= 0 {
		opts.NProbe = defaultIVFProbes
	}
	if opts.Seed == 0 {
		opts.Seed = defaultIVFSeed
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var stored *IndexMeta
	err := db.View(func(tx *bbolt.Tx) error {
		var err error
		stored, err = readMeta(tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read index meta: %w", err)
	}
	if err := checkMeta(stored, opts.meta()); err != nil {
		return nil, err
	}

	return &BoltVectorIndex{
		db:     db,
		opts:   opts,
		dist:   distanceFor(opts.Metric),
		logger: logger.With("component", "vector_index"),
	}, nil
}

func (o IndexOptions) meta() IndexMeta {
	return IndexMeta{
		SchemaVersion: CurrentSchemaVersion,
		Metric:        o.Metric,
		Dimension:     o.Dimension,
		Model:         o.Model,
	}
}

// Metric returns the metric the index was built with.
func (x *BoltVectorIndex) Metric() domain.Metric { return x.opts.Metric }

// Dimension returns the accepted vector length.
func (x *BoltVectorIndex) Dimension() int { return x.opts.Dimension }

// Upsert writes entries in a single transaction. Entries that fail
// validation are reported in a *domain.IndexWriteError and the rest are
// written. If the transaction itself fails nothing is written and every key
// is reported.
func (x *BoltVectorIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	// Last occurrence of a key in a batch wins.
	last := make(map[int64]int, len(entries))
	order := make([]int64, 0, len(entries))
	for i, e := range entries {
		if _, seen := last[e.RecipeID]; !seen {
			order = append(order, e.RecipeID)
		}
		last[e.RecipeID] = i
	}

	failed := make(map[int64]error)
	batch := make(map[int64]domain.IndexEntry, len(order))
	valid := order[:0:0]
	for _, id := range order {
		e := entries[last[id]]
		if id <= 0 {
			failed[id] = domain.ErrInvalidRecipeID
			continue
		}
		if len(e.Vector) != x.opts.Dimension {
			failed[id] = fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(e.Vector), x.opts.Dimension)
			continue
		}
		batch[id] = domain.IndexEntry{
			RecipeID: id,
			Vector:   domain.EmbeddingVector(cloneVector(e.Vector)),
			Metadata: e.Metadata,
		}
		valid = append(valid, id)
	}

	if len(batch) > 0 {
		err := x.db.Update(func(tx *bbolt.Tx) error {
			stored, err := readMeta(tx)
			if err != nil {
				return err
			}
			if stored == nil {
				if err := writeMeta(tx, x.opts.meta()); err != nil {
					return err
				}
			}
			b, err := tx.CreateBucketIfNotExists(bucketRecipes)
			if err != nil {
				return err
			}
			for _, id := range valid {
				e := batch[id]
				data, err := json.Marshal(storedEntry{Vector: e.Vector, Metadata: e.Metadata})
				if err != nil {
					return err
				}
				if err := b.Put(encodeID(id), data); err != nil {
					return err
				}
			}
			// Returning an error rolls the whole batch back.
			return ctx.Err()
		})
		if err != nil {
			for id := range batch {
				failed[id] = err
			}
			x.logger.Error("upsert transaction failed", "entries", len(batch), "error", err)
			return 0, &domain.IndexWriteError{Failed: failed}
		}
		x.publish(batch)
	}

	written := len(batch)
	x.logger.Debug("upsert", "written", written, "failed", len(failed))
	if len(failed) > 0 {
		return written, &domain.IndexWriteError{Failed: failed}
	}
	return written, nil
}

// publish swaps in a snapshot containing batch. Must hold writeMu.
func (x *BoltVectorIndex) publish(batch map[int64]domain.IndexEntry) {
	cur := x.snap.Load()
	if cur == nil {
		return
	}
	next := &snapshot{
		entries: make(map[int64]domain.IndexEntry, len(cur.entries)+len(batch)),
		ivf:     cur.ivf.clone(),
	}
	for id, e := range cur.entries {
		next.entries[id] = e
	}
	for id, e := range batch {
		next.entries[id] = e
		if next.ivf != nil {
			next.ivf.add(id, e.Vector, x.dist)
		}
	}
	x.snap.Store(next)
}

// Load reads every entry into memory and trains the IVF partitions.
func (x *BoltVectorIndex) Load(ctx context.Context) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	entries := make(map[int64]domain.IndexEntry)
	err := x.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecipes)
		if b == nil {
			return &domain.IndexNotReadyError{Reason: "index does not exist"}
		}
		return b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var stored storedEntry
			if err := json.Unmarshal(v, &stored); err != nil {
				x.logger.Warn("skipping corrupted entry", "key", decodeID(k), "error", err)
				return nil
			}
			id := decodeID(k)
			entries[id] = domain.IndexEntry{RecipeID: id, Vector: stored.Vector, Metadata: stored.Metadata}
			return nil
		})
	})
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(entries))
	vectors := make(map[int64][]float32, len(entries))
	for id, e := range entries {
		ids = append(ids, id)
		vectors[id] = e.Vector
	}
	ivf := trainIVF(ids, vectors, x.opts.NList, x.dist, x.opts.Seed)

	lists := 0
	if ivf != nil {
		lists = len(ivf.centroids)
	}
	x.logger.Info("index loaded", "entries", len(entries), "lists", lists, "metric", x.opts.Metric)

	x.snap.Store(&snapshot{entries: entries, ivf: ivf})
	return nil
}

// Release drops the in-memory snapshot. Persisted entries are kept.
func (x *BoltVectorIndex) Release(ctx context.Context) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	x.snap.Store(nil)
	return nil
}

// Exists reports whether the recipes bucket has been created.
func (x *BoltVectorIndex) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := x.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(bucketRecipes) != nil
		return nil
	})
	return exists, err
}

// Drop deletes every entry and the build metadata.
func (x *BoltVectorIndex) Drop(ctx context.Context) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	err := x.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecipes, bucketMeta} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to drop index: %w", err)
	}
	x.snap.Store(nil)
	return nil
}

// Ready reports whether a snapshot with entries is resident.
func (x *BoltVectorIndex) Ready(ctx context.Context) error {
	return x.snap.Load().ready()
}

func (s *snapshot) ready() error {
	if s == nil {
		return &domain.IndexNotReadyError{Reason: "index not loaded"}
	}
	if len(s.entries) == 0 {
		return &domain.IndexNotReadyError{Reason: "index is empty"}
	}
	return nil
}

// Count returns the number of entries, from memory when loaded.
func (x *BoltVectorIndex) Count(ctx context.Context) (int, error) {
	if s := x.snap.Load(); s != nil {
		return len(s.entries), nil
	}
	var n int
	err := x.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecipes)
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// Get reads one entry from disk.
func (x *BoltVectorIndex) Get(ctx context.Context, id int64) (domain.IndexEntry, error) {
	var entry domain.IndexEntry
	err := x.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecipes)
		if b == nil {
			return domain.ErrEntryNotFound
		}
		data := b.Get(encodeID(id))
		if data == nil {
			return domain.ErrEntryNotFound
		}
		var stored storedEntry
		if err := json.Unmarshal(data, &stored); err != nil {
			return err
		}
		entry = domain.IndexEntry{RecipeID: id, Vector: stored.Vector, Metadata: stored.Metadata}
		return nil
	})
	return entry, err
}

// Search probes the nprobe partitions closest to the query, widening until
// min(topK, N) candidates have been scanned. Results are approximate: a
// true neighbour in an unprobed partition can be missed.
func (x *BoltVectorIndex) Search(ctx context.Context, query domain.EmbeddingVector, topK int, metric domain.Metric) ([]domain.Candidate, error) {
	s := x.snap.Load()
	if err := s.ready(); err != nil {
		return nil, err
	}
	if metric != x.opts.Metric {
		return nil, &domain.ConfigurationError{
			Field:  "metric",
			Reason: fmt.Sprintf("query metric %s does not match index metric %s", metric, x.opts.Metric),
		}
	}
	if len(query) != x.opts.Dimension {
		return nil, &domain.ConfigurationError{
			Field:  "dimension",
			Reason: fmt.Sprintf("query has %d dimensions, index has %d", len(query), x.opts.Dimension),
		}
	}
	if topK <= 0 {
		return nil, &domain.ConfigurationError{Field: "top_k", Reason: "must be positive"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	want := topK
	if want > len(s.entries) {
		want = len(s.entries)
	}

	results := make([]domain.Candidate, 0, want)
	score := func(id int64) {
		e := s.entries[id]
		results = append(results, domain.Candidate{
			RecipeID:  id,
			Name:      e.Metadata.Name,
			Text:      e.Metadata.Text,
			Timestamp: e.Metadata.CreatedAt,
			Distance:  x.dist(query, e.Vector),
		})
	}

	if s.ivf == nil {
		for id := range s.entries {
			score(id)
		}
	} else {
		probed := 0
		for _, list := range s.ivf.probeOrder(query, x.dist) {
			if probed >= x.opts.NProbe && len(results) >= want {
				break
			}
			for _, id := range s.ivf.lists[list] {
				score(id)
			}
			probed++
		}
	}

	sortCandidates(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// sortCandidates orders by ascending distance, ties by recipe id.
func sortCandidates(cs []domain.Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Distance != cs[j].Distance {
			return cs[i].Distance < cs[j].Distance
		}
		return cs[i].RecipeID < cs[j].RecipeID
	})
}

func encodeID(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func decodeID(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key))
}
