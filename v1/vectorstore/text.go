package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/vectorstores"
	"golang.org/x/sync/errgroup"
)

// FullTextSearch returns the k documents whose content best matches query in
// the backend's full-text index. Scores are the backend's text scores, higher
// is better; they are not relevances and no threshold is applied.
//
// Honoured options: WithFilters.
func (s *Store) FullTextSearch(ctx context.Context, query string, k int, options ...vectorstores.Option) ([]SearchResult, error) {
	req := requestFromOptions(k, options)
	req.Query = query
	return s.fullText(ctx, req)
}

func (s *Store) fullText(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	searcher, ok := s.backend.(TextSearcher)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no full-text search", ErrUnsupported, s.info.Component)
	}
	if req.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidInput, req.K)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: full-text search needs a query", ErrInvalidInput)
	}
	filter, err := ResolveFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, "vectorstore.FullTextSearch", map[string]interface{}{"k": req.K})
	defer span.End()

	results, err := searcher.SearchText(ctx, TextQuery{
		Text:          req.Query,
		K:             req.K,
		Filter:        filter,
		WithEmbedding: req.WithEmbedding,
	})
	if err != nil {
		return nil, s.fail(span, err)
	}
	s.tracer.SetAttributes(span, map[string]interface{}{"results": len(results)})
	return results, nil
}

// HybridSearch ranks documents by vector similarity to req.Query (or
// req.Vector) and by full-text match of req.Query, then fuses both rankings
// with reciprocal rank fusion. Each side fetches fetchK candidates; fetchK
// below req.K means DefaultFetchK, raised to req.K if needed.
//
// Scores are fused RRF scores. ScoreThreshold and Relevance are ignored.
func (s *Store) HybridSearch(ctx context.Context, req SearchRequest, fetchK int) ([]SearchResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: hybrid search needs a text query", ErrInvalidInput)
	}
	if _, ok := s.backend.(TextSearcher); !ok {
		return nil, fmt.Errorf("%w: %s has no full-text search", ErrUnsupported, s.info.Component)
	}
	if fetchK < req.K {
		fetchK = max(DefaultFetchK, req.K)
	}

	ctx, span := s.startSpan(ctx, "vectorstore.HybridSearch", map[string]interface{}{"k": req.K, "fetch_k": fetchK})
	defer span.End()

	candidates := req
	candidates.K = fetchK
	candidates.ScoreThreshold = 0
	candidates.Relevance = false

	var byVector, byText []SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := s.buildQuery(gctx, candidates)
		if err != nil {
			return err
		}
		byVector, err = s.backend.Query(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		byText, err = s.fullText(gctx, candidates)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, s.fail(span, err)
	}

	results := FuseRRF(req.K, DefaultRRFK, byVector, byText)
	s.tracer.SetAttributes(span, map[string]interface{}{
		"results":        len(results),
		"vector_results": len(byVector),
		"text_results":   len(byText),
	})
	return results, nil
}
