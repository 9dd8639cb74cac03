package vectorstore

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/vectorstores"
)

// textMemoryBackend adds a word-count SearchText to memoryBackend.
type textMemoryBackend struct {
	*memoryBackend
	textQueries []TextQuery
}

func (m *textMemoryBackend) SearchText(_ context.Context, q TextQuery) ([]SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textQueries = append(m.textQueries, q)

	words := strings.Fields(strings.ToLower(q.Text))
	var out []SearchResult
	for _, r := range m.records {
		if !matches(r, q.Filter) {
			continue
		}
		var hits int
		for _, w := range words {
			hits += strings.Count(strings.ToLower(r.Content), w)
		}
		if hits > 0 {
			out = append(out, SearchResult{Record: r, Score: float32(hits)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > q.K {
		out = out[:q.K]
	}
	return out, nil
}

func textStore(t *testing.T) (*Store, *textMemoryBackend) {
	t.Helper()
	backend := &textMemoryBackend{memoryBackend: newMemoryBackend(3)}
	store := NewStore(backend, keywordEmbedder{}, Config{})

	_, err := store.AddTexts(context.Background(),
		[]string{"apple pie", "banana bread with apple", "cherry tart"},
		[]map[string]any{{"kind": "dessert"}, {"kind": "bread"}, {"kind": "dessert"}},
		[]string{"a", "b", "c"},
	)
	require.NoError(t, err)
	return store, backend
}

func TestFuseRRF(t *testing.T) {
	rec := func(id string) SearchResult { return SearchResult{Record: Record{ID: id, Content: id}} }

	fused := FuseRRF(5, 60,
		[]SearchResult{rec("a"), rec("b"), rec("c")},
		[]SearchResult{rec("b"), rec("d"), rec("e")},
	)
	require.Len(t, fused, 5)

	// b: 1/62 + 1/61, a: 1/61, d: 1/62, then c and e tie at 1/63 and the
	// first seen wins.
	var ids []string
	for _, r := range fused {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"b", "a", "d", "c", "e"}, ids)
	assert.InDelta(t, 1.0/62+1.0/61, fused[0].Score, 1e-7)
	assert.InDelta(t, 1.0/61, fused[1].Score, 1e-7)
	assert.InDelta(t, 1.0/63, fused[3].Score, 1e-7)

	assert.Len(t, FuseRRF(2, 60, fused), 2)
}

func TestFuseRRF_DefaultsAndEmpty(t *testing.T) {
	assert.Empty(t, FuseRRF(4, 0))

	fused := FuseRRF(0, 0, []SearchResult{{Record: Record{ID: "x"}}})
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0/float64(DefaultRRFK+1), fused[0].Score, 1e-7)
}

func TestStore_FullTextSearch(t *testing.T) {
	store, backend := textStore(t)

	results, err := store.FullTextSearch(context.Background(), "apple", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)

	results, err = store.FullTextSearch(context.Background(), "apple", 5,
		vectorstores.WithFilters(map[string]any{"kind": "bread"}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
	require.Len(t, backend.textQueries, 2)
	assert.NotNil(t, backend.textQueries[1].Filter)

	_, err = store.FullTextSearch(context.Background(), "  ", 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = store.FullTextSearch(context.Background(), "apple", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStore_FullTextSearchUnsupported(t *testing.T) {
	store, _ := seededStore(t)

	_, err := store.FullTextSearch(context.Background(), "apple", 2)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = store.HybridSearch(context.Background(), SearchRequest{Query: "apple", K: 2}, 0)
	assert.ErrorIs(t, err, ErrUnsupported)

	err = store.CreateIndex(context.Background(), IndexParams{Kind: Text})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestStore_HybridSearchFusesRankings(t *testing.T) {
	store, backend := textStore(t)

	// The vector side ranks a, b, c; the text side only matches b.
	results, err := store.HybridSearch(context.Background(), SearchRequest{
		Query:  "bread",
		Vector: []float32{1, 0.5, 0},
		K:      2,
	}, 3)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].ID)
	assert.Equal(t, "a", results[1].ID)
	assert.InDelta(t, 1.0/61+1.0/62, results[0].Score, 1e-6)

	require.Len(t, backend.queries, 1)
	assert.Equal(t, 3, backend.queries[0].K)
	require.Len(t, backend.textQueries, 1)
	assert.Equal(t, 3, backend.textQueries[0].K)
}

func TestStore_HybridSearchFetchKDefaults(t *testing.T) {
	store, backend := textStore(t)

	_, err := store.HybridSearch(context.Background(), SearchRequest{Query: "apple", K: 2}, 0)
	require.NoError(t, err)
	require.Len(t, backend.textQueries, 1)
	assert.Equal(t, DefaultFetchK, backend.textQueries[0].K)

	_, err = store.HybridSearch(context.Background(), SearchRequest{Vector: []float32{1, 0, 0}, K: 2}, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStore_CreateTextIndex(t *testing.T) {
	store, backend := textStore(t)

	require.NoError(t, store.CreateIndex(context.Background(), DefaultIndexParams(Text)))
	require.Len(t, backend.indexes, 1)
	assert.Equal(t, Text, backend.indexes[0].Kind)
	assert.Zero(t, backend.indexes[0].Dimensions)
}
