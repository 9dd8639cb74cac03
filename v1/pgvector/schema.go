package pgvector

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// operator returns the pgvector distance operator for the strategy.
func operator(s vectorstore.DistanceStrategy) string {
	switch s {
	case vectorstore.Euclidean:
		return "<->"
	case vectorstore.InnerProduct:
		return "<#>"
	}
	return "<=>"
}

// operatorClass returns the index operator class matching operator(s).
func operatorClass(s vectorstore.DistanceStrategy) string {
	switch s {
	case vectorstore.Euclidean:
		return "vector_l2_ops"
	case vectorstore.InnerProduct:
		return "vector_ip_ops"
	}
	return "vector_cosine_ops"
}

// qualifiedTable returns the quoted schema.table name.
func qualifiedTable(cfg Config) string {
	return pq.QuoteIdentifier(cfg.Schema) + "." + pq.QuoteIdentifier(cfg.Table)
}

func columnType(dims int) string {
	if dims > 0 {
		return fmt.Sprintf("vector(%d)", dims)
	}
	return "vector"
}

// ensureSchema installs the extensions and creates the table if needed.
func ensureSchema(ctx context.Context, db *gorm.DB, cfg Config) error {
	db = db.WithContext(ctx)

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to create extension vector: %w", TranslateError(err))
	}
	if cfg.UseDiskANNExtension {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS pg_diskann CASCADE").Error; err != nil {
			return fmt.Errorf("failed to create extension pg_diskann: %w", TranslateError(err))
		}
	}
	if cfg.Schema != DefaultSchema {
		if err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(cfg.Schema)).Error; err != nil {
			return fmt.Errorf("failed to create schema %s: %w", cfg.Schema, TranslateError(err))
		}
	}

	table := qualifiedTable(cfg)
	if cfg.PreDeleteTable {
		if err := db.Exec("DROP TABLE IF EXISTS " + table).Error; err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, TranslateError(err))
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id text PRIMARY KEY,
	content text,
	metadata jsonb,
	embedding %s
)`, table, columnType(cfg.EmbeddingLength))

	if err := db.Exec(ddl).Error; err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, TranslateError(err))
	}
	return nil
}
