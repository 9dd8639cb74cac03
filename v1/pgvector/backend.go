package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	pgv "github.com/pgvector/pgvector-go"
	"github.com/tmc/langchaingo/embeddings"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/vectorstores/v1/logger"
	"github.com/Aleph-Alpha/vectorstores/v1/observability"
	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// Backend stores documents in a single table with a pgvector column:
//
//	id text PRIMARY KEY, content text, metadata jsonb, embedding vector(n)
//
// It implements vectorstore.Backend.
type Backend struct {
	client   *Client
	cfg      Config
	table    string
	observer observability.Observer
	logger   logger.Logger
}

var _ vectorstore.Backend = (*Backend)(nil)

// NewBackend prepares the extensions and the table described by cfg.
func NewBackend(ctx context.Context, client *Client, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ensureSchema(ctx, client.DB(), cfg); err != nil {
		return nil, err
	}
	return &Backend{client: client, cfg: cfg, table: qualifiedTable(cfg)}, nil
}

// New connects, prepares the table and returns a ready Store.
//
// Example:
//
//	store, err := pgvector.New(ctx, pgvector.DefaultConfig().
//	    WithConnectionString("host=localhost user=postgres password=secret dbname=docs").
//	    WithEmbeddingLength(1536), embedder)
func New(ctx context.Context, cfg Config, embedder embeddings.Embedder) (*vectorstore.Store, error) {
	client, err := NewClient(cfg, nil)
	if err != nil {
		return nil, err
	}
	backend, err := NewBackend(ctx, client, cfg)
	if err != nil {
		_ = client.GracefulShutdown()
		return nil, err
	}
	return vectorstore.NewStore(backend, embedder, cfg.storeConfig()), nil
}

// WithObserver attaches an observer that is notified about every operation.
func (b *Backend) WithObserver(o observability.Observer) *Backend {
	b.observer = o
	return b
}

// WithLogger attaches a logger used for DDL and failures.
func (b *Backend) WithLogger(l logger.Logger) *Backend {
	b.logger = l
	return b
}

func (b *Backend) Info() vectorstore.BackendInfo {
	return vectorstore.BackendInfo{
		Component:  componentName,
		Resource:   b.cfg.Schema + "." + b.cfg.Table,
		Distance:   b.cfg.DistanceStrategy,
		ScoreKind:  vectorstore.ScoreDistance,
		Dimensions: b.cfg.EmbeddingLength,
	}
}

func (b *Backend) db(ctx context.Context) *gorm.DB {
	return b.client.DB().WithContext(ctx)
}

// Upsert writes records in one statement, replacing rows with the same id.
func (b *Backend) Upsert(ctx context.Context, records []vectorstore.Record) (err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("upsert", "", start, err, int64(len(records)), nil)
	}()

	if len(records) == 0 {
		return nil
	}

	query, args, err := buildUpsert(b.table, records)
	if err != nil {
		return err
	}
	if err := b.db(ctx).Exec(query, args...).Error; err != nil {
		return TranslateError(fmt.Errorf("failed to upsert %d rows: %w", len(records), err))
	}
	return nil
}

// buildUpsert renders one multi-row INSERT. A row may only be touched once
// per ON CONFLICT statement, so repeated ids collapse onto their last record.
func buildUpsert(table string, records []vectorstore.Record) (string, []any, error) {
	records = vectorstore.LastByID(records)

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (id, content, metadata, embedding) VALUES ")

	args := make([]any, 0, len(records)*4)
	for i, r := range records {
		meta := r.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return "", nil, fmt.Errorf("%w: metadata of %s is not JSON encodable: %v", vectorstore.ErrInvalidInput, r.ID, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?::jsonb, ?::vector)")
		args = append(args, r.ID, r.Content, string(metaJSON), pgv.NewVector(r.Embedding))
	}
	sb.WriteString(" ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding")
	return sb.String(), args, nil
}

// Query runs an ORDER BY distance LIMIT k scan. Index knobs are applied with
// SET LOCAL inside the query's transaction.
func (b *Backend) Query(ctx context.Context, q vectorstore.Query) (results []vectorstore.SearchResult, err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("query", "", start, err, int64(len(results)), map[string]interface{}{"k": q.K})
	}()

	query, args, err := buildSearch(b.table, b.cfg.DistanceStrategy, q)
	if err != nil {
		return nil, err
	}

	err = b.db(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range searchParamStatements(q.Params) {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}

		rows, err := tx.Raw(query, args...).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r vectorstore.SearchResult
			if err := scanRecord(rows, &r.Record, q.WithEmbedding, &r.Score); err != nil {
				return err
			}
			results = append(results, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, TranslateError(fmt.Errorf("similarity query failed: %w", err))
	}
	return results, nil
}

func buildSearch(table string, strategy vectorstore.DistanceStrategy, q vectorstore.Query) (string, []any, error) {
	where, whereArgs, err := buildWhere(q.Filter)
	if err != nil {
		return "", nil, err
	}

	columns := "id, content, metadata"
	if q.WithEmbedding {
		columns += ", embedding"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s, embedding %s ?::vector AS score FROM %s", columns, operator(strategy), table)
	args := []any{pgv.NewVector(q.Vector)}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		args = append(args, whereArgs...)
	}
	sb.WriteString(" ORDER BY score LIMIT ?")
	args = append(args, q.K)
	return sb.String(), args, nil
}

// searchParamStatements renders the SET LOCAL statements for p. Values are
// integers, so they are formatted into the statement.
func searchParamStatements(p vectorstore.SearchParams) []string {
	var stmts []string
	if p.Probes > 0 {
		stmts = append(stmts, "SET LOCAL ivfflat.probes = "+strconv.Itoa(p.Probes))
	}
	if p.EfSearch > 0 {
		stmts = append(stmts, "SET LOCAL hnsw.ef_search = "+strconv.Itoa(p.EfSearch))
	}
	if p.LSearch > 0 {
		stmts = append(stmts, "SET LOCAL diskann.l_value_is = "+strconv.Itoa(p.LSearch))
	}
	return stmts
}

// scanRecord reads id, content, metadata, [embedding], [score].
func scanRecord(rows *sql.Rows, r *vectorstore.Record, withEmbedding bool, score *float32) error {
	var (
		content sql.NullString
		meta    []byte
		vec     pgv.Vector
		dist    float64
	)
	dest := []any{&r.ID, &content, &meta}
	if withEmbedding {
		dest = append(dest, &vec)
	}
	if score != nil {
		dest = append(dest, &dist)
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}

	r.Content = content.String
	r.Metadata = map[string]any{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return fmt.Errorf("invalid metadata for %s: %w", r.ID, err)
		}
	}
	if withEmbedding {
		r.Embedding = vec.Slice()
	}
	if score != nil {
		*score = float32(dist)
	}
	return nil
}

// Get returns the rows with the given ids, embeddings included.
func (b *Backend) Get(ctx context.Context, ids []string) (records []vectorstore.Record, err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("get", "", start, err, int64(len(records)), nil)
	}()

	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := b.db(ctx).Raw("SELECT id, content, metadata, embedding FROM "+b.table+" WHERE id IN ?", ids).Rows()
	if err != nil {
		return nil, TranslateError(fmt.Errorf("failed to get documents: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var r vectorstore.Record
		if err := scanRecord(rows, &r, true, nil); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, TranslateError(err)
	}
	return records, nil
}

// Remove deletes rows by id and returns the number of rows deleted.
func (b *Backend) Remove(ctx context.Context, ids []string) (n int64, err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("delete", "", start, err, n, nil)
	}()

	if len(ids) == 0 {
		return 0, nil
	}
	res := b.db(ctx).Exec("DELETE FROM "+b.table+" WHERE id IN ?", ids)
	if res.Error != nil {
		return 0, TranslateError(fmt.Errorf("failed to delete documents: %w", res.Error))
	}
	return res.RowsAffected, nil
}

// RemoveAll deletes every row and keeps the table.
func (b *Backend) RemoveAll(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("delete_all", "", start, err, n, nil)
	}()

	res := b.db(ctx).Exec("DELETE FROM " + b.table)
	if res.Error != nil {
		return 0, TranslateError(fmt.Errorf("failed to delete documents: %w", res.Error))
	}
	b.logInfo("Deleted all documents", map[string]interface{}{"table": b.table, "rows": res.RowsAffected})
	return res.RowsAffected, nil
}

// Drop removes the table.
func (b *Backend) Drop(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("drop", "", start, err, 0, nil)
	}()

	if err := b.db(ctx).Exec("DROP TABLE IF EXISTS " + b.table).Error; err != nil {
		return TranslateError(fmt.Errorf("failed to drop table %s: %w", b.table, err))
	}
	b.logInfo("Dropped table", map[string]interface{}{"table": b.table})
	return nil
}

// Close shuts the client down.
func (b *Backend) Close() error {
	return b.client.GracefulShutdown()
}

func (b *Backend) logInfo(msg string, fields map[string]interface{}) {
	if b.logger != nil {
		b.logger.Info(msg, nil, fields)
	}
}
