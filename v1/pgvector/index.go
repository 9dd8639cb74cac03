package pgvector

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// IndexName returns the default index name for kind: <table>_embedding_<kind>_idx.
func IndexName(table string, kind vectorstore.IndexKind) string {
	return fmt.Sprintf("%s_embedding_%s_idx", table, kind)
}

// CreateIndex builds an IVFFlat, HNSW or DiskANN index on the embedding
// column using the operator class of the configured distance strategy, or
// the GIN full-text index on content for kind Text.
func (b *Backend) CreateIndex(ctx context.Context, p vectorstore.IndexParams) (err error) {
	name := p.Name
	if name == "" {
		name = IndexName(b.cfg.Table, p.Kind)
		if p.Kind == vectorstore.Text {
			name = TextIndexName(b.cfg.Table)
		}
	}

	start := time.Now()
	defer func() {
		b.observeOperation("create_index", name, start, err, 0, map[string]interface{}{"kind": string(p.Kind)})
	}()

	if p.Kind == vectorstore.Text {
		return b.createTextIndex(ctx, name)
	}

	if b.cfg.EmbeddingLength == 0 {
		return fmt.Errorf("%w: embedding_length must be set to index the embedding column", vectorstore.ErrInvalidInput)
	}
	if p.Dimensions != 0 && p.Dimensions != b.cfg.EmbeddingLength {
		return fmt.Errorf("%w: index has %d dimensions, column has %d", vectorstore.ErrDimensionMismatch, p.Dimensions, b.cfg.EmbeddingLength)
	}

	if p.Kind == vectorstore.DiskANN && !b.cfg.UseDiskANNExtension {
		if err := b.db(ctx).Exec("CREATE EXTENSION IF NOT EXISTS pg_diskann CASCADE").Error; err != nil {
			return fmt.Errorf("failed to create extension pg_diskann: %w", TranslateError(err))
		}
	}

	ddl, err := buildCreateIndex(b.cfg, name, p)
	if err != nil {
		return err
	}
	if err := b.db(ctx).Exec(ddl).Error; err != nil {
		return TranslateError(fmt.Errorf("failed to create index %s: %w", name, err))
	}

	b.logInfo("Created vector index", map[string]interface{}{"index": name, "kind": string(p.Kind)})
	return nil
}

func buildCreateIndex(cfg Config, name string, p vectorstore.IndexParams) (string, error) {
	var method, with string
	switch p.Kind {
	case vectorstore.IVF:
		method = "ivfflat"
		with = fmt.Sprintf("lists = %d", p.Lists)
	case vectorstore.HNSW:
		method = "hnsw"
		with = fmt.Sprintf("m = %d, ef_construction = %d", p.M, p.EfConstruction)
	case vectorstore.DiskANN:
		method = "diskann"
		with = fmt.Sprintf("max_neighbors = %d, l_value_ib = %d", p.MaxDegree, p.LBuild)
	default:
		return "", fmt.Errorf("%w: index kind %q", vectorstore.ErrUnsupported, p.Kind)
	}

	return fmt.Sprintf("CREATE INDEX %s ON %s USING %s (embedding %s) WITH (%s)",
		pq.QuoteIdentifier(name), qualifiedTable(cfg), method, operatorClass(cfg.DistanceStrategy), with), nil
}

// DropIndex drops the named index. An empty name drops the default vector
// index of every kind; the text index is only dropped by name.
func (b *Backend) DropIndex(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("drop_index", name, start, err, 0, nil)
	}()

	names := []string{name}
	if name == "" {
		names = []string{
			IndexName(b.cfg.Table, vectorstore.IVF),
			IndexName(b.cfg.Table, vectorstore.HNSW),
			IndexName(b.cfg.Table, vectorstore.DiskANN),
		}
	}

	for _, n := range names {
		stmt := "DROP INDEX IF EXISTS " + pq.QuoteIdentifier(b.cfg.Schema) + "." + pq.QuoteIdentifier(n)
		if err := b.db(ctx).Exec(stmt).Error; err != nil {
			return TranslateError(fmt.Errorf("failed to drop index %s: %w", n, err))
		}
	}
	return nil
}
