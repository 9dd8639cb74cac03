package vectorstore

import (
	"context"
	"fmt"
	"maps"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aleph-Alpha/vectorstores/v1/logger"
	"github.com/Aleph-Alpha/vectorstores/v1/tracer"
)

// Config tunes the framework layer of a Store.
type Config struct {
	// BatchSize is the number of documents embedded and written per round trip.
	BatchSize int `yaml:"batch_size" envconfig:"VECTORSTORE_BATCH_SIZE" validate:"gte=0"`

	// SearchParams are applied to every query that does not set its own.
	SearchParams SearchParams `yaml:"search_params"`
}

// Store implements the framework vector store surface on top of a Backend.
//
// Store is safe for concurrent use as long as the Backend and Embedder are.
type Store struct {
	backend   Backend
	embedder  embeddings.Embedder
	cfg       Config
	info      BackendInfo
	relevance RelevanceFunc
	logger    logger.Logger
	tracer    *tracer.Tracer
}

// NewStore wraps backend. embedder may be nil if callers only use the
// vector based methods or pass vectorstores.WithEmbedder per call.
func NewStore(backend Backend, embedder embeddings.Embedder, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	info := backend.Info()
	return &Store{
		backend:   backend,
		embedder:  embedder,
		cfg:       cfg,
		info:      info,
		relevance: RelevanceScoreFn(info.Distance, info.ScoreKind),
	}
}

// WithLogger attaches a logger used for batch progress and failures.
func (s *Store) WithLogger(l logger.Logger) *Store {
	s.logger = l
	return s
}

// WithTracer records Store spans on t instead of the global otel provider.
func (s *Store) WithTracer(t *tracer.Tracer) *Store {
	s.tracer = t
	return s
}

// Backend returns the underlying database adapter.
func (s *Store) Backend() Backend {
	return s.backend
}

// Embedder returns the default embedder, which may be nil.
func (s *Store) Embedder() embeddings.Embedder {
	return s.embedder
}

// ── Add ─────────────────────────────────────────────────────────────────────

// AddDocuments embeds the page contents of docs and upserts them. Ids come
// from metadata["id"] when present and are generated otherwise.
//
// Honoured options: WithEmbedder, WithDeduplicater.
func (s *Store) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := collectOptions(options)

	texts := make([]string, 0, len(docs))
	metadatas := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		if opts.Deduplicater != nil && opts.Deduplicater(ctx, doc) {
			continue
		}
		texts = append(texts, doc.PageContent)
		metadatas = append(metadatas, doc.Metadata)
	}

	return s.addTexts(ctx, opts.Embedder, texts, metadatas, nil)
}

// AddTexts embeds texts and upserts them with the given metadata and ids.
// metadatas and ids may be nil; when set they must match texts in length.
func (s *Store) AddTexts(ctx context.Context, texts []string, metadatas []map[string]any, ids []string, options ...vectorstores.Option) ([]string, error) {
	opts := collectOptions(options)
	return s.addTexts(ctx, opts.Embedder, texts, metadatas, ids)
}

// AddVectors upserts texts with pre-computed embeddings.
func (s *Store) AddVectors(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]any, ids []string) ([]string, error) {
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrInvalidInput, len(vectors), len(texts))
	}
	if len(texts) == 0 {
		return []string{}, nil
	}

	ctx, span := s.startSpan(ctx, "vectorstore.AddVectors", map[string]interface{}{"documents": len(texts)})
	defer span.End()

	resolved, err := ResolveIDs(len(texts), ids, metadatas)
	if err != nil {
		return nil, s.fail(span, err)
	}

	for _, b := range Batches(len(texts), s.cfg.BatchSize) {
		records, err := s.buildRecords(b, texts, vectors[b.Start:b.End], metadatas, resolved)
		if err != nil {
			return nil, s.fail(span, err)
		}
		if err := s.backend.Upsert(ctx, records); err != nil {
			return nil, s.fail(span, fmt.Errorf("upsert batch [%d:%d]: %w", b.Start, b.End, err))
		}
	}
	return resolved, nil
}

func (s *Store) addTexts(ctx context.Context, override embeddings.Embedder, texts []string, metadatas []map[string]any, ids []string) ([]string, error) {
	if len(texts) == 0 {
		return []string{}, nil
	}

	embedder, err := s.pickEmbedder(override)
	if err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, "vectorstore.AddTexts", map[string]interface{}{"documents": len(texts)})
	defer span.End()

	resolved, err := ResolveIDs(len(texts), ids, metadatas)
	if err != nil {
		return nil, s.fail(span, err)
	}

	batches := Batches(len(texts), s.cfg.BatchSize)
	for i, b := range batches {
		vectors, err := embedder.EmbedDocuments(ctx, texts[b.Start:b.End])
		if err != nil {
			return nil, s.fail(span, fmt.Errorf("embed batch [%d:%d]: %w", b.Start, b.End, err))
		}
		if len(vectors) != b.End-b.Start {
			return nil, s.fail(span, fmt.Errorf("%w: embedder returned %d vectors for %d texts", ErrInvalidInput, len(vectors), b.End-b.Start))
		}

		records, err := s.buildRecords(b, texts, vectors, metadatas, resolved)
		if err != nil {
			return nil, s.fail(span, err)
		}
		if err := s.backend.Upsert(ctx, records); err != nil {
			return nil, s.fail(span, fmt.Errorf("upsert batch [%d:%d]: %w", b.Start, b.End, err))
		}

		if s.logger != nil {
			s.logger.DebugWithContext(ctx, "Batch written", nil, map[string]interface{}{
				"component": s.info.Component,
				"resource":  s.info.Resource,
				"batch":     i + 1,
				"batches":   len(batches),
				"size":      b.End - b.Start,
			})
		}
	}
	return resolved, nil
}

// buildRecords assembles the records of batch b. vectors holds only the
// batch's embeddings; the other slices are indexed over the whole input.
func (s *Store) buildRecords(b Batch, texts []string, vectors [][]float32, metadatas []map[string]any, ids []string) ([]Record, error) {
	records := make([]Record, 0, b.End-b.Start)
	for i := b.Start; i < b.End; i++ {
		vector := vectors[i-b.Start]
		if err := s.checkDimensions(vector); err != nil {
			return nil, err
		}
		var meta map[string]any
		if len(metadatas) > 0 && metadatas[i] != nil {
			meta = maps.Clone(metadatas[i])
		} else {
			meta = map[string]any{}
		}
		records = append(records, Record{
			ID:        ids[i],
			Content:   texts[i],
			Metadata:  meta,
			Embedding: vector,
		})
	}
	return records, nil
}

func (s *Store) checkDimensions(v []float32) error {
	if s.info.Dimensions > 0 && len(v) != s.info.Dimensions {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.info.Dimensions, len(v))
	}
	return nil
}

// ── Search ──────────────────────────────────────────────────────────────────

// SimilaritySearch returns the k documents most similar to query. Each
// document's Score is the backend's raw score; a score threshold is still
// compared against the relevance in [0, 1].
//
// Honoured options: WithFilters, WithScoreThreshold, WithEmbedder.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int, options ...vectorstores.Option) ([]schema.Document, error) {
	req := requestFromOptions(k, options)
	req.Query = query
	results, err := s.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return ToDocuments(results), nil
}

// SimilaritySearchByVector is SimilaritySearch with a pre-computed query vector.
func (s *Store) SimilaritySearchByVector(ctx context.Context, vector []float32, k int, options ...vectorstores.Option) ([]schema.Document, error) {
	req := requestFromOptions(k, options)
	req.Vector = vector
	results, err := s.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return ToDocuments(results), nil
}

// SimilaritySearchWithScore returns results with the backend's raw scores.
func (s *Store) SimilaritySearchWithScore(ctx context.Context, query string, k int, options ...vectorstores.Option) ([]SearchResult, error) {
	req := requestFromOptions(k, options)
	req.Query = query
	return s.Search(ctx, req)
}

// SimilaritySearchWithRelevanceScores returns results with relevance scores in [0, 1].
func (s *Store) SimilaritySearchWithRelevanceScores(ctx context.Context, query string, k int, options ...vectorstores.Option) ([]SearchResult, error) {
	req := requestFromOptions(k, options)
	req.Query = query
	req.Relevance = true
	return s.Search(ctx, req)
}

// Search runs req against the backend.
func (s *Store) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, "vectorstore.Search", map[string]interface{}{"k": req.K})
	defer span.End()

	q, err := s.buildQuery(ctx, req)
	if err != nil {
		return nil, s.fail(span, err)
	}

	results, err := s.backend.Query(ctx, q)
	if err != nil {
		return nil, s.fail(span, err)
	}

	if req.Relevance || req.ScoreThreshold > 0 {
		kept := results[:0]
		for _, r := range results {
			rel := s.relevance(r.Score)
			if rel < req.ScoreThreshold {
				continue
			}
			if req.Relevance {
				r.Score = rel
			}
			kept = append(kept, r)
		}
		results = kept
	}

	s.tracer.SetAttributes(span, map[string]interface{}{"results": len(results)})
	return results, nil
}

func (s *Store) buildQuery(ctx context.Context, req SearchRequest) (Query, error) {
	filter, err := ResolveFilter(req.Filter)
	if err != nil {
		return Query{}, err
	}

	vector := req.Vector
	if len(vector) == 0 {
		embedder, err := s.pickEmbedder(req.Embedder)
		if err != nil {
			return Query{}, err
		}
		vector, err = embedder.EmbedQuery(ctx, req.Query)
		if err != nil {
			return Query{}, fmt.Errorf("embed query: %w", err)
		}
	}
	if err := s.checkDimensions(vector); err != nil {
		return Query{}, err
	}

	params := req.Params
	if params.IsZero() {
		params = s.cfg.SearchParams
	}

	return Query{
		Vector:        vector,
		K:             req.K,
		Filter:        filter,
		Params:        params,
		WithEmbedding: req.WithEmbedding,
	}, nil
}

// MaxMarginalRelevanceSearch fetches fetchK candidates and returns k of them
// chosen by maximal marginal relevance. fetchK <= 0 means DefaultFetchK.
func (s *Store) MaxMarginalRelevanceSearch(ctx context.Context, query string, k, fetchK int, lambda float64, options ...vectorstores.Option) ([]schema.Document, error) {
	req := requestFromOptions(k, options)
	req.Query = query
	return s.mmr(ctx, req, fetchK, lambda)
}

// MaxMarginalRelevanceSearchByVector is MaxMarginalRelevanceSearch with a pre-computed query vector.
func (s *Store) MaxMarginalRelevanceSearchByVector(ctx context.Context, vector []float32, k, fetchK int, lambda float64, options ...vectorstores.Option) ([]schema.Document, error) {
	req := requestFromOptions(k, options)
	req.Vector = vector
	return s.mmr(ctx, req, fetchK, lambda)
}

func (s *Store) mmr(ctx context.Context, req SearchRequest, fetchK int, lambda float64) ([]schema.Document, error) {
	if lambda < 0 || lambda > 1 {
		return nil, fmt.Errorf("%w: lambda must be in [0, 1], got %v", ErrInvalidInput, lambda)
	}
	if fetchK <= 0 {
		fetchK = DefaultFetchK
	}
	k := req.K
	if fetchK < k {
		fetchK = k
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	ctx, span := s.startSpan(ctx, "vectorstore.MaxMarginalRelevanceSearch",
		map[string]interface{}{"k": k, "fetch_k": fetchK, "lambda": lambda})
	defer span.End()

	req.K = fetchK
	q, err := s.buildQuery(ctx, req)
	if err != nil {
		return nil, s.fail(span, err)
	}
	q.WithEmbedding = true

	candidates, err := s.backend.Query(ctx, q)
	if err != nil {
		return nil, s.fail(span, err)
	}

	vectors := make([][]float32, len(candidates))
	for i, c := range candidates {
		vectors[i] = c.Embedding
	}

	picked := MaximalMarginalRelevance(q.Vector, vectors, k, lambda)
	out := make([]SearchResult, 0, len(picked))
	for _, idx := range picked {
		r := candidates[idx]
		rel := s.relevance(r.Score)
		if rel < req.ScoreThreshold {
			continue
		}
		r.Score = rel
		r.Embedding = nil
		out = append(out, r)
	}
	return ToDocuments(out), nil
}

// ── Get / Delete ────────────────────────────────────────────────────────────

// GetByIDs returns the documents with the given ids in the order requested.
// Unknown ids are skipped.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]schema.Document, error) {
	if len(ids) == 0 {
		return []schema.Document{}, nil
	}
	records, err := s.backend.Get(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	docs := make([]schema.Document, 0, len(records))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			docs = append(docs, ToDocument(SearchResult{Record: r}))
			delete(byID, id)
		}
	}
	return docs, nil
}

// Delete removes the documents with the given ids. It reports whether any
// document was removed; an empty id list is a no-op returning false.
func (s *Store) Delete(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	n, err := s.backend.Remove(ctx, ids)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAll removes every document and returns how many were removed.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	return s.backend.RemoveAll(ctx)
}

// ── Index / lifecycle ───────────────────────────────────────────────────────

// CreateIndex builds a vector index, or the full-text index for kind Text.
// Zero Dimensions default to the backend's.
func (s *Store) CreateIndex(ctx context.Context, params IndexParams) error {
	if params.Dimensions == 0 && params.Kind != Text {
		params.Dimensions = s.info.Dimensions
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if _, ok := s.backend.(TextSearcher); params.Kind == Text && !ok {
		return fmt.Errorf("%w: %s has no full-text search", ErrUnsupported, s.info.Component)
	}

	ctx, span := s.startSpan(ctx, "vectorstore.CreateIndex", map[string]interface{}{"kind": string(params.Kind)})
	defer span.End()

	if err := s.backend.CreateIndex(ctx, params); err != nil {
		return s.fail(span, err)
	}
	return nil
}

// DropIndex drops the named index; an empty name drops the backend's default index.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	return s.backend.DropIndex(ctx, name)
}

// Drop removes the table or collection.
func (s *Store) Drop(ctx context.Context) error {
	return s.backend.Drop(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// ── helpers ─────────────────────────────────────────────────────────────────

func (s *Store) pickEmbedder(override embeddings.Embedder) (embeddings.Embedder, error) {
	if override != nil {
		return override, nil
	}
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	return s.embedder, nil
}

func (s *Store) startSpan(ctx context.Context, name string, fields map[string]interface{}) (context.Context, trace.Span) {
	fields["db.system"] = s.info.Component
	fields["db.collection"] = s.info.Resource
	return s.tracer.StartSpan(ctx, name, fields)
}

func (s *Store) fail(span trace.Span, err error) error {
	return s.tracer.RecordErrorOnSpan(span, err)
}

// ToDocument converts a search result into a langchaingo document. The id is
// stored under metadata["id"].
func ToDocument(r SearchResult) schema.Document {
	meta := make(map[string]any, len(r.Metadata)+1)
	maps.Copy(meta, r.Metadata)
	meta[IDKey] = r.ID
	return schema.Document{
		PageContent: r.Content,
		Metadata:    meta,
		Score:       r.Score,
	}
}

// ToDocuments converts search results into langchaingo documents.
func ToDocuments(results []SearchResult) []schema.Document {
	docs := make([]schema.Document, len(results))
	for i, r := range results {
		docs[i] = ToDocument(r)
	}
	return docs
}
