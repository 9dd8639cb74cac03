package vectorstore

import (
	"context"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// Backend is implemented by each database adapter. It only moves records in
// and out of the database; embedding, scoring and reranking live in Store.
//
// Example:
//
//	backend, _ := pgvector.NewBackend(ctx, client, cfg)
//	store := vectorstore.NewStore(backend, embedder, vectorstore.Config{})
type Backend interface {
	// Info describes the backend. It must not block.
	Info() BackendInfo

	// Upsert inserts records, replacing records with the same id.
	Upsert(ctx context.Context, records []Record) error

	// Query returns the K nearest records to q.Vector that pass q.Filter,
	// ordered from closest to farthest.
	Query(ctx context.Context, q Query) ([]SearchResult, error)

	// Get returns the records with the given ids. Unknown ids are skipped.
	Get(ctx context.Context, ids []string) ([]Record, error)

	// Remove deletes the records with the given ids and returns how many were removed.
	Remove(ctx context.Context, ids []string) (int64, error)

	// RemoveAll deletes every record and returns how many were removed.
	RemoveAll(ctx context.Context) (int64, error)

	CreateIndex(ctx context.Context, params IndexParams) error
	DropIndex(ctx context.Context, name string) error

	// Drop removes the table or collection.
	Drop(ctx context.Context) error

	Close() error
}

// TextSearcher is implemented by backends that can rank documents by a
// full-text index on their content. Scores grow with relevance.
type TextSearcher interface {
	// SearchText returns up to q.K records matching q.Text and q.Filter,
	// best match first.
	SearchText(ctx context.Context, q TextQuery) ([]SearchResult, error)
}

// VectorStore is the full framework surface. *Store implements it and it
// embeds langchaingo's vectorstores.VectorStore so a Store can be handed to
// any langchaingo chain or retriever.
type VectorStore interface {
	vectorstores.VectorStore

	AddTexts(ctx context.Context, texts []string, metadatas []map[string]any, ids []string, options ...vectorstores.Option) ([]string, error)
	AddVectors(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]any, ids []string) ([]string, error)

	SimilaritySearchByVector(ctx context.Context, vector []float32, k int, options ...vectorstores.Option) ([]schema.Document, error)
	SimilaritySearchWithScore(ctx context.Context, query string, k int, options ...vectorstores.Option) ([]SearchResult, error)
	SimilaritySearchWithRelevanceScores(ctx context.Context, query string, k int, options ...vectorstores.Option) ([]SearchResult, error)
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
	FullTextSearch(ctx context.Context, query string, k int, options ...vectorstores.Option) ([]SearchResult, error)
	HybridSearch(ctx context.Context, req SearchRequest, fetchK int) ([]SearchResult, error)

	MaxMarginalRelevanceSearch(ctx context.Context, query string, k, fetchK int, lambda float64, options ...vectorstores.Option) ([]schema.Document, error)
	MaxMarginalRelevanceSearchByVector(ctx context.Context, vector []float32, k, fetchK int, lambda float64, options ...vectorstores.Option) ([]schema.Document, error)

	GetByIDs(ctx context.Context, ids []string) ([]schema.Document, error)
	Delete(ctx context.Context, ids []string) (bool, error)
	DeleteAll(ctx context.Context) (int64, error)

	CreateIndex(ctx context.Context, params IndexParams) error
	DropIndex(ctx context.Context, name string) error
	Drop(ctx context.Context) error
	Close() error
}

var _ VectorStore = (*Store)(nil)
