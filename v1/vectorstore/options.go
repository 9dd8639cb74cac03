package vectorstore

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/vectorstores"
)

// SearchRequest is the full-control search call. The langchaingo style
// methods on Store are thin wrappers that build one.
type SearchRequest struct {
	// Query is embedded when Vector is empty.
	Query  string
	Vector []float32

	K int

	// Filter accepts anything ResolveFilter accepts.
	Filter any

	// ScoreThreshold drops results whose relevance is below it. Must be in [0, 1].
	ScoreThreshold float32

	Params SearchParams

	// WithEmbedding returns stored embeddings on each result.
	WithEmbedding bool

	// Relevance replaces raw backend scores with relevance scores in [0, 1].
	Relevance bool

	// Embedder overrides the store's embedder for this call.
	Embedder embeddings.Embedder
}

func (r SearchRequest) validate() error {
	if r.K <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidInput, r.K)
	}
	if r.ScoreThreshold < 0 || r.ScoreThreshold > 1 {
		return fmt.Errorf("%w: score threshold must be in [0, 1], got %v", ErrInvalidInput, r.ScoreThreshold)
	}
	if len(r.Vector) == 0 && r.Query == "" {
		return fmt.Errorf("%w: either a query or a vector is required", ErrInvalidInput)
	}
	return nil
}

// collectOptions applies langchaingo options. NameSpace is ignored: a store
// is bound to one table or collection.
func collectOptions(options []vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

func requestFromOptions(k int, options []vectorstores.Option) SearchRequest {
	opts := collectOptions(options)
	return SearchRequest{
		K:              k,
		Filter:         opts.Filters,
		ScoreThreshold: opts.ScoreThreshold,
		Embedder:       opts.Embedder,
	}
}

// WithSearchFilter is vectorstores.WithFilters restricted to the filter
// types this package understands. It exists for discoverability.
func WithSearchFilter(filter *FilterSet) vectorstores.Option {
	return vectorstores.WithFilters(filter)
}
