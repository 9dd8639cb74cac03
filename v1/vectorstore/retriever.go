package vectorstore

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// SearchType selects how a Retriever queries the store.
type SearchType string

const (
	SearchSimilarity               SearchType = "similarity"
	SearchMMR                      SearchType = "mmr"
	SearchSimilarityScoreThreshold SearchType = "similarity_score_threshold"
)

// RetrieverConfig configures a Retriever.
type RetrieverConfig struct {
	SearchType     SearchType
	K              int
	FetchK         int
	Lambda         float64
	ScoreThreshold float32
	Filter         any
}

// Retriever adapts a VectorStore to langchaingo's schema.Retriever.
type Retriever struct {
	store VectorStore
	cfg   RetrieverConfig
}

var _ schema.Retriever = (*Retriever)(nil)

// NewRetriever validates cfg and returns a Retriever. Zero K defaults to 4,
// zero Lambda to DefaultLambda.
func NewRetriever(store VectorStore, cfg RetrieverConfig) (*Retriever, error) {
	if cfg.SearchType == "" {
		cfg.SearchType = SearchSimilarity
	}
	if cfg.K == 0 {
		cfg.K = 4
	}
	if cfg.Lambda == 0 {
		cfg.Lambda = DefaultLambda
	}

	switch cfg.SearchType {
	case SearchSimilarity, SearchMMR:
	case SearchSimilarityScoreThreshold:
		if cfg.ScoreThreshold <= 0 || cfg.ScoreThreshold > 1 {
			return nil, fmt.Errorf("%w: %s requires a score threshold in (0, 1]", ErrInvalidInput, cfg.SearchType)
		}
	default:
		return nil, fmt.Errorf("%w: unknown search type %q", ErrInvalidInput, cfg.SearchType)
	}

	return &Retriever{store: store, cfg: cfg}, nil
}

// GetRelevantDocuments runs the configured search for query.
func (r *Retriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	var options []vectorstores.Option
	if r.cfg.Filter != nil {
		options = append(options, vectorstores.WithFilters(r.cfg.Filter))
	}

	switch r.cfg.SearchType {
	case SearchMMR:
		return r.store.MaxMarginalRelevanceSearch(ctx, query, r.cfg.K, r.cfg.FetchK, r.cfg.Lambda, options...)
	case SearchSimilarityScoreThreshold:
		options = append(options, vectorstores.WithScoreThreshold(r.cfg.ScoreThreshold))
	}
	return r.store.SimilaritySearch(ctx, query, r.cfg.K, options...)
}
