package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"recipechat/internal/domain"
)

// PostgresVectorIndex stores recipe vectors in a pgvector table and searches
// them with an ivfflat index.
type PostgresVectorIndex struct {
	db        *sql.DB
	table     string
	metric    domain.Metric
	dimension int
	nlist     int
	nprobe    int
	logger    *slog.Logger
	loaded    atomic.Bool
	// lists the ivfflat index was last built with.
	lists atomic.Int64
}

// PostgresOptions configures a PostgresVectorIndex.
type PostgresOptions struct {
	Table     string
	Metric    domain.Metric
	Dimension int
	NList     int
	NProbe    int
	Logger    *slog.Logger
}

// OpenPostgres opens a connection pool and verifies it.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// NewPostgresVectorIndex wraps db. The table is created on the first upsert.
func NewPostgresVectorIndex(db *sql.DB, opts PostgresOptions) (*PostgresVectorIndex, error) {
	if opts.Table == "" {
		opts.Table = "recipes"
	}
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
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresVectorIndex{
		db:        db,
		table:     opts.Table,
		metric:    opts.Metric,
		dimension: opts.Dimension,
		nlist:     opts.NList,
		nprobe:    opts.NProbe,
		logger:    logger.With("component", "pg_vector_index"),
	}, nil
}

func (p *PostgresVectorIndex) Metric() domain.Metric { return p.metric }
func (p *PostgresVectorIndex) Dimension() int        { return p.dimension }

func (p *PostgresVectorIndex) quotedTable() string {
	return pq.QuoteIdentifier(p.table)
}

func (p *PostgresVectorIndex) createTable(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			recipe_id  BIGINT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at TIMESTAMPTZ,
			text       TEXT NOT NULL,
			embedding  vector(%d) NOT NULL
		)`, p.quotedTable(), p.dimension),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// Upsert writes all valid entries in one transaction.
func (p *PostgresVectorIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	failed := make(map[int64]error)
	valid := make([]domain.IndexEntry, 0, len(entries))
	for _, e := range entries {
		switch {
		case e.RecipeID <= 0:
			failed[e.RecipeID] = domain.ErrInvalidRecipeID
		case len(e.Vector) != p.dimension:
			failed[e.RecipeID] = fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(e.Vector), p.dimension)
		default:
			delete(failed, e.RecipeID)
			valid = append(valid, e)
		}
	}

	if len(valid) > 0 {
		if err := p.writeBatch(ctx, valid); err != nil {
			for _, e := range valid {
				failed[e.RecipeID] = err
			}
			p.logger.Error("upsert transaction failed", "entries", len(valid), "error", err)
			return 0, &domain.IndexWriteError{Failed: failed}
		}
	}

	written := make(map[int64]struct{}, len(valid))
	for _, e := range valid {
		written[e.RecipeID] = struct{}{}
	}
	if len(failed) > 0 {
		return len(written), &domain.IndexWriteError{Failed: failed}
	}
	return len(written), nil
}

func (p *PostgresVectorIndex) writeBatch(ctx context.Context, entries []domain.IndexEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := p.createTable(ctx, tx); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (recipe_id, name, created_at, text, embedding)
		 VALUES ($1, $2, $3, $4, $5::vector)
		 ON CONFLICT (recipe_id) DO UPDATE SET
			name = EXCLUDED.name,
			created_at = EXCLUDED.created_at,
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding`, p.quotedTable()))
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.RecipeID, e.Metadata.Name, nullTime(e.Metadata.CreatedAt), e.Metadata.Text, vectorToString(e.Vector),
		); err != nil {
			return fmt.Errorf("upsert recipe %d: %w", e.RecipeID, err)
		}
	}

	return tx.Commit()
}

// Exists reports whether the table has been created.
func (p *PostgresVectorIndex) Exists(ctx context.Context) (bool, error) {
	var name sql.NullString
	if err := p.db.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, p.table).Scan(&name); err != nil {
		return false, fmt.Errorf("check table: %w", err)
	}
	return name.Valid, nil
}

// Load rebuilds the ivfflat index for the current rows and enables search.
// The list count is capped at sqrt(rows) so every list stays populated.
func (p *PostgresVectorIndex) Load(ctx context.Context) error {
	exists, err := p.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return &domain.IndexNotReadyError{Reason: "index does not exist"}
	}

	rows, err := p.Count(ctx)
	if err != nil {
		return err
	}
	lists := ivfflatLists(p.nlist, rows)

	name := pq.QuoteIdentifier(p.table + "_embedding_idx")
	stmts := []string{
		fmt.Sprintf(`DROP INDEX IF EXISTS %s`, name),
		fmt.Sprintf(`CREATE INDEX %s ON %s USING ivfflat (embedding %s) WITH (lists = %d)`,
			name, p.quotedTable(), opsClass(p.metric), lists),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("build ivfflat index: %w", err)
		}
	}

	p.lists.Store(int64(lists))
	p.loaded.Store(true)
	p.logger.Info("index loaded", "table", p.table, "rows", rows, "lists", lists, "metric", p.metric)
	return nil
}

// Ready reports whether Search can serve queries.
func (p *PostgresVectorIndex) Ready(ctx context.Context) error {
	if !p.loaded.Load() {
		return &domain.IndexNotReadyError{Reason: "index not loaded"}
	}
	n, err := p.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.IndexNotReadyError{Reason: "index is empty"}
	}
	return nil
}

// Release disables search until the next Load.
func (p *PostgresVectorIndex) Release(ctx context.Context) error {
	p.loaded.Store(false)
	return nil
}

// Drop removes the table.
func (p *PostgresVectorIndex) Drop(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, p.quotedTable())); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	p.loaded.Store(false)
	return nil
}

// Count returns the number of rows, zero when the table is missing.
func (p *PostgresVectorIndex) Count(ctx context.Context) (int, error) {
	exists, err := p.Exists(ctx)
	if err != nil || !exists {
		return 0, err
	}
	var n int
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, p.quotedTable())).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Get returns one row.
func (p *PostgresVectorIndex) Get(ctx context.Context, id int64) (domain.IndexEntry, error) {
	var (
		name, text, vec string
		created         sql.NullTime
	)
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT name, created_at, text, embedding::text FROM %s WHERE recipe_id = $1`, p.quotedTable()),
		id,
	).Scan(&name, &created, &text, &vec)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IndexEntry{}, domain.ErrEntryNotFound
	}
	if err != nil {
		return domain.IndexEntry{}, fmt.Errorf("get recipe %d: %w", id, err)
	}
	vector, err := parseVector(vec)
	if err != nil {
		return domain.IndexEntry{}, err
	}
	return domain.IndexEntry{
		RecipeID: id,
		Vector:   vector,
		Metadata: domain.EntryMetadata{Name: name, CreatedAt: created.Time, Text: text},
	}, nil
}

// Search runs an ivfflat-accelerated ORDER BY on the metric's operator.
// When the first nprobe lists hold fewer than min(topK, rows) rows the query is
// repeated over every list, so a short result means a short table.
func (p *PostgresVectorIndex) Search(ctx context.Context, query domain.EmbeddingVector, topK int, metric domain.Metric) ([]domain.Candidate, error) {
	if !p.loaded.Load() {
		return nil, &domain.IndexNotReadyError{Reason: "index not loaded"}
	}
	if metric != p.metric {
		return nil, &domain.ConfigurationError{
			Field:  "metric",
			Reason: fmt.Sprintf("query metric %s does not match index metric %s", metric, p.metric),
		}
	}
	if len(query) != p.dimension {
		return nil, &domain.ConfigurationError{
			Field:  "dimension",
			Reason: fmt.Sprintf("query has %d dimensions, index has %d", len(query), p.dimension),
		}
	}
	if topK <= 0 {
		return nil, &domain.ConfigurationError{Field: "top_k", Reason: "must be positive"}
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var rows int
	if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, p.quotedTable())).Scan(&rows); err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	if rows == 0 {
		return nil, &domain.IndexNotReadyError{Reason: "index is empty"}
	}

	lists := int(p.lists.Load())
	results, err := p.nearest(ctx, tx, query, topK, min(p.nprobe, lists))
	if err != nil {
		return nil, err
	}
	if needsFullScan(len(results), topK, rows) {
		p.logger.Debug("widening search to all lists", "got", len(results), "top_k", topK, "rows", rows)
		if results, err = p.nearest(ctx, tx, query, topK, lists); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// nearest runs the ORDER BY with ivfflat scanning the given number of lists.
func (p *PostgresVectorIndex) nearest(ctx context.Context, tx *sql.Tx, query domain.EmbeddingVector, topK, lists int) ([]domain.Candidate, error) {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`SET LOCAL ivfflat.probes = %d`, max(lists, 1))); err != nil {
		return nil, fmt.Errorf("set ivfflat.probes: %w", err)
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT recipe_id, name, created_at, text, embedding %s $1::vector AS distance
		 FROM %s
		 ORDER BY distance, recipe_id
		 LIMIT $2`, distanceOperator(p.metric), p.quotedTable()),
		vectorToString(query), topK)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	defer rows.Close()

	var results []domain.Candidate
	for rows.Next() {
		var (
			c       domain.Candidate
			created sql.NullTime
		)
		if err := rows.Scan(&c.RecipeID, &c.Name, &created, &c.Text, &c.Distance); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Timestamp = created.Time
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	return results, nil
}

// ivfflatLists returns the list count for an ivfflat build over rows:
// nlist capped at sqrt(rows), and at least one.
func ivfflatLists(nlist, rows int) int {
	if nlist <= 0 {
		nlist = defaultIVFLists
	}
	return max(min(nlist, int(math.Sqrt(float64(rows)))), 1)
}

// needsFullScan reports whether a search that returned got rows fell short
// of min(topK, rows).
func needsFullScan(got, topK, rows int) bool {
	return got < min(topK, rows)
}

func distanceOperator(m domain.Metric) string {
	if m == domain.Euclidean {
		return "<->"
	}
	return "<=>"
}

func opsClass(m domain.Metric) string {
	if m == domain.Euclidean {
		return "vector_l2_ops"
	}
	return "vector_cosine_ops"
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// vectorToString converts a float32 slice to pgvector string format: [0.1,0.2,0.3].
func vectorToString(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = strconv.FormatFloat(float64(val), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVector reads pgvector's text output.
func parseVector(s string) (domain.EmbeddingVector, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("malformed vector %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return domain.EmbeddingVector{}, nil
	}
	fields := strings.Split(body, ",")
	v := make(domain.EmbeddingVector, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector component %q: %w", f, err)
		}
		v[i] = float32(x)
	}
	return v, nil
}
