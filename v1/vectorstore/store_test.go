package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/Aleph-Alpha/vectorstores/v1/embedding"
)

// memoryBackend is a cosine-distance Backend over a map. It understands
// MatchCondition and MatchAnyCondition on metadata, which is all the store
// tests need.
type memoryBackend struct {
	mu      sync.Mutex
	dims    int
	records map[string]Record
	upserts [][]Record
	queries []Query
	indexes []IndexParams
	closed  bool
}

func newMemoryBackend(dims int) *memoryBackend {
	return &memoryBackend{dims: dims, records: map[string]Record{}}
}

func (m *memoryBackend) Info() BackendInfo {
	return BackendInfo{Component: "memory", Resource: "docs", Distance: Cosine, ScoreKind: ScoreDistance, Dimensions: m.dims}
}

func (m *memoryBackend) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, records)
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memoryBackend) Query(_ context.Context, q Query) ([]SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)

	var out []SearchResult
	for _, r := range m.records {
		if !matches(r, q.Filter) {
			continue
		}
		res := SearchResult{Record: r, Score: float32(1 - CosineSimilarity(q.Vector, r.Embedding))}
		if !q.WithEmbedding {
			res.Embedding = nil
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if len(out) > q.K {
		out = out[:q.K]
	}
	return out, nil
}

func matches(r Record, fs *FilterSet) bool {
	if fs == nil || fs.Must == nil {
		return true
	}
	for _, c := range fs.Must.Conditions {
		switch c := c.(type) {
		case *MatchCondition:
			if r.Metadata[c.Field] != c.Value {
				return false
			}
		case *MatchAnyCondition:
			found := false
			for _, v := range c.Values {
				if r.Metadata[c.Field] == v {
					found = true
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func (m *memoryBackend) Get(_ context.Context, ids []string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, id := range ids {
		if r, ok := m.records[id]; ok {
			out = append(out, r)
		}
	}
	// Reverse so the store has to restore request order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *memoryBackend) Remove(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryBackend) RemoveAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.records))
	m.records = map[string]Record{}
	return n, nil
}

func (m *memoryBackend) CreateIndex(_ context.Context, params IndexParams) error {
	m.indexes = append(m.indexes, params)
	return nil
}

func (m *memoryBackend) DropIndex(context.Context, string) error { return nil }
func (m *memoryBackend) Drop(context.Context) error              { return nil }

func (m *memoryBackend) Close() error {
	m.closed = true
	return nil
}

// keywordEmbedder maps a text to a fixed 3-d vector by its first letter.
type keywordEmbedder struct{}

func (keywordEmbedder) vector(text string) []float32 {
	switch {
	case len(text) == 0:
		return []float32{1, 1, 1}
	case text[0] == 'a':
		return []float32{1, 0, 0}
	case text[0] == 'b':
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func (e keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func seededStore(t *testing.T) (*Store, *memoryBackend) {
	t.Helper()
	backend := newMemoryBackend(3)
	store := NewStore(backend, keywordEmbedder{}, Config{BatchSize: 2})

	_, err := store.AddTexts(context.Background(),
		[]string{"apple", "banana", "cherry"},
		[]map[string]any{{"kind": "fruit", "color": "red"}, {"kind": "fruit", "color": "yellow"}, {"kind": "tree", "color": "red"}},
		[]string{"a", "b", "c"},
	)
	require.NoError(t, err)
	return store, backend
}

func TestStore_AddTextsBatchesAndKeepsIDs(t *testing.T) {
	store, backend := seededStore(t)
	_ = store

	require.Len(t, backend.upserts, 2)
	assert.Len(t, backend.upserts[0], 2)
	assert.Len(t, backend.upserts[1], 1)
	assert.Equal(t, "cherry", backend.records["c"].Content)
	assert.Equal(t, "tree", backend.records["c"].Metadata["kind"])
}

func TestStore_AddDocumentsUsesMockEmbedder(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := embedding.NewMockEmbedder(ctrl)
	mock.EXPECT().
		EmbedDocuments(gomock.Any(), []string{"one", "two"}).
		Return([][]float32{{1, 0, 0}, {0, 1, 0}}, nil)

	backend := newMemoryBackend(3)
	store := NewStore(backend, mock, Config{})

	ids, err := store.AddDocuments(context.Background(), []schema.Document{
		{PageContent: "one", Metadata: map[string]any{"id": "doc-1"}},
		{PageContent: "two"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "doc-1", ids[0])
	assert.NotEmpty(t, ids[1])
}

func TestStore_AddDocumentsDeduplicater(t *testing.T) {
	backend := newMemoryBackend(3)
	store := NewStore(backend, keywordEmbedder{}, Config{})

	skip := func(_ context.Context, doc schema.Document) bool { return doc.PageContent == "banana" }
	ids, err := store.AddDocuments(context.Background(), []schema.Document{
		{PageContent: "apple"}, {PageContent: "banana"},
	}, vectorstores.WithDeduplicater(skip))
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Len(t, backend.records, 1)
}

func TestStore_AddTextsEmbedderError(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := embedding.NewMockEmbedder(ctrl)
	boom := errors.New("boom")
	mock.EXPECT().EmbedDocuments(gomock.Any(), gomock.Any()).Return(nil, boom)

	store := NewStore(newMemoryBackend(3), mock, Config{})
	_, err := store.AddTexts(context.Background(), []string{"x"}, nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestStore_DimensionMismatch(t *testing.T) {
	store := NewStore(newMemoryBackend(4), keywordEmbedder{}, Config{})

	_, err := store.AddTexts(context.Background(), []string{"apple"}, nil, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = store.SimilaritySearchByVector(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestStore_AddVectorsLengthMismatch(t *testing.T) {
	store := NewStore(newMemoryBackend(3), nil, Config{})
	_, err := store.AddVectors(context.Background(), []string{"a", "b"}, [][]float32{{1, 0, 0}}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStore_NoEmbedder(t *testing.T) {
	store := NewStore(newMemoryBackend(3), nil, Config{})

	_, err := store.AddTexts(context.Background(), []string{"a"}, nil, nil)
	assert.ErrorIs(t, err, ErrNoEmbedder)

	_, err = store.SimilaritySearch(context.Background(), "a", 1)
	assert.ErrorIs(t, err, ErrNoEmbedder)

	// A per-call embedder is enough.
	_, err = store.AddTexts(context.Background(), []string{"apple"}, nil, nil, vectorstores.WithEmbedder(keywordEmbedder{}))
	assert.NoError(t, err)
}

func TestStore_SimilaritySearchReturnsRawScores(t *testing.T) {
	store, _ := seededStore(t)

	docs, err := store.SimilaritySearch(context.Background(), "avocado", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "apple", docs[0].PageContent)
	assert.Equal(t, "a", docs[0].Metadata[IDKey])
	// cosine distances, not relevances
	assert.InDelta(t, 0.0, docs[0].Score, 1e-6)
	assert.InDelta(t, 1.0, docs[1].Score, 1e-6)

	docs, err = store.SimilaritySearchByVector(context.Background(), []float32{1, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.InDelta(t, 1-1/math.Sqrt2, docs[0].Score, 1e-5)

	relevant, err := store.SimilaritySearchWithRelevanceScores(context.Background(), "avocado", 2)
	require.NoError(t, err)
	require.Len(t, relevant, 2)
	assert.InDelta(t, 1.0, relevant[0].Score, 1e-6)
	assert.InDelta(t, 0.0, relevant[1].Score, 1e-6)
}

func TestStore_SimilaritySearchWithScoreIsRaw(t *testing.T) {
	store, _ := seededStore(t)

	results, err := store.SimilaritySearchWithScore(context.Background(), "avocado", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.0, results[0].Score, 1e-6)
}

func TestStore_SpansRecordOutcome(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	store := NewStore(newMemoryBackend(3), keywordEmbedder{}, Config{})

	_, err := store.AddVectors(context.Background(), []string{"x"}, [][]float32{{1, 0}}, nil, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = store.Search(context.Background(), SearchRequest{Vector: []float32{1, 0, 0}, K: 1})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "vectorstore.AddVectors", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("db.system", "memory"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("documents", 1))

	assert.Equal(t, "vectorstore.Search", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("db.collection", "docs"))
	assert.Contains(t, spans[1].Attributes(), attribute.Int("results", 0))
}

func TestStore_ScoreThresholdDropsIrrelevant(t *testing.T) {
	store, _ := seededStore(t)

	docs, err := store.SimilaritySearch(context.Background(), "avocado", 3, vectorstores.WithScoreThreshold(0.5))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "apple", docs[0].PageContent)

	_, err = store.SimilaritySearch(context.Background(), "avocado", 3, vectorstores.WithScoreThreshold(1.5))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStore_SimilaritySearchFilters(t *testing.T) {
	store, backend := seededStore(t)

	docs, err := store.SimilaritySearch(context.Background(), "avocado", 3,
		vectorstores.WithFilters(map[string]any{"color": "red"}))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, "red", d.Metadata["color"])
	}

	last := backend.queries[len(backend.queries)-1]
	require.NotNil(t, last.Filter)
	assert.Len(t, last.Filter.Must.Conditions, 1)

	_, err = store.SimilaritySearch(context.Background(), "avocado", 3,
		vectorstores.WithFilters(map[string]any{"$bogus": 1}))
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestStore_SearchParamsDefaultFromConfig(t *testing.T) {
	backend := newMemoryBackend(3)
	store := NewStore(backend, keywordEmbedder{}, Config{SearchParams: SearchParams{Probes: 7}})

	_, err := store.Search(context.Background(), SearchRequest{Query: "a", K: 1})
	require.NoError(t, err)
	_, err = store.Search(context.Background(), SearchRequest{Query: "a", K: 1, Params: SearchParams{EfSearch: 40}})
	require.NoError(t, err)

	require.Len(t, backend.queries, 2)
	assert.Equal(t, 7, backend.queries[0].Params.Probes)
	assert.Equal(t, SearchParams{EfSearch: 40}, backend.queries[1].Params)
}

func TestStore_SearchValidation(t *testing.T) {
	store, _ := seededStore(t)

	_, err := store.Search(context.Background(), SearchRequest{Query: "a", K: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = store.Search(context.Background(), SearchRequest{K: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStore_MaxMarginalRelevanceSearch(t *testing.T) {
	backend := newMemoryBackend(2)
	store := NewStore(backend, nil, Config{})

	_, err := store.AddVectors(context.Background(),
		[]string{"first", "duplicate", "other"},
		[][]float32{{1, 0.05}, {1, 0.06}, {1, -0.5}},
		nil, []string{"1", "2", "3"})
	require.NoError(t, err)

	docs, err := store.MaxMarginalRelevanceSearchByVector(context.Background(), []float32{1, 0}, 2, 0, 0.5)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "first", docs[0].PageContent)
	assert.Equal(t, "other", docs[1].PageContent)

	last := backend.queries[len(backend.queries)-1]
	assert.True(t, last.WithEmbedding)
	assert.Equal(t, DefaultFetchK, last.K)

	_, err = store.MaxMarginalRelevanceSearchByVector(context.Background(), []float32{1, 0}, 2, 0, 1.5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStore_GetByIDsKeepsRequestOrder(t *testing.T) {
	store, _ := seededStore(t)

	docs, err := store.GetByIDs(context.Background(), []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c", docs[0].Metadata[IDKey])
	assert.Equal(t, "a", docs[1].Metadata[IDKey])
}

func TestStore_Delete(t *testing.T) {
	store, backend := seededStore(t)
	ctx := context.Background()

	ok, err := store.Delete(ctx, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, backend.records, 3)

	ok, err = store.Delete(ctx, []string{"a"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Delete(ctx, []string{"a"})
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.DeleteAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestStore_CreateIndexFillsDimensions(t *testing.T) {
	backend := newMemoryBackend(3)
	store := NewStore(backend, nil, Config{})

	require.NoError(t, store.CreateIndex(context.Background(), DefaultIndexParams(HNSW)))
	require.Len(t, backend.indexes, 1)
	assert.Equal(t, 3, backend.indexes[0].Dimensions)

	err := store.CreateIndex(context.Background(), IndexParams{Kind: IVF})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStore_Close(t *testing.T) {
	backend := newMemoryBackend(3)
	store := NewStore(backend, nil, Config{})
	require.NoError(t, store.Close())
	assert.True(t, backend.closed)
}

func TestRetriever(t *testing.T) {
	store, _ := seededStore(t)
	ctx := context.Background()

	r, err := NewRetriever(store, RetrieverConfig{K: 1})
	require.NoError(t, err)
	docs, err := r.GetRelevantDocuments(ctx, "banana split")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "banana", docs[0].PageContent)

	r, err = NewRetriever(store, RetrieverConfig{SearchType: SearchSimilarityScoreThreshold, K: 3, ScoreThreshold: 0.9})
	require.NoError(t, err)
	docs, err = r.GetRelevantDocuments(ctx, "cherry pie")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "cherry", docs[0].PageContent)

	r, err = NewRetriever(store, RetrieverConfig{SearchType: SearchMMR, K: 2, Filter: map[string]any{"kind": "fruit"}})
	require.NoError(t, err)
	docs, err = r.GetRelevantDocuments(ctx, "apple")
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	_, err = NewRetriever(store, RetrieverConfig{SearchType: SearchSimilarityScoreThreshold})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewRetriever(store, RetrieverConfig{SearchType: "keyword"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
