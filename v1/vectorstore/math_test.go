package vectorstore

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 0}))
}

func TestMaximalMarginalRelevance(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{
		{1, 0.05}, // most relevant
		{1, 0.06}, // near duplicate of the first
		{1, -0.5}, // less relevant, but on the other side of the query
	}

	t.Run("lambda one ranks by relevance", func(t *testing.T) {
		assert.Equal(t, []int{0, 1}, MaximalMarginalRelevance(query, candidates, 2, 1))
	})

	t.Run("diversity skips the near duplicate", func(t *testing.T) {
		assert.Equal(t, []int{0, 2}, MaximalMarginalRelevance(query, candidates, 2, 0.5))
	})

	t.Run("k larger than candidates", func(t *testing.T) {
		assert.Len(t, MaximalMarginalRelevance(query, candidates, 10, 0.5), 3)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, MaximalMarginalRelevance(query, nil, 3, 0.5))
		assert.Nil(t, MaximalMarginalRelevance(query, candidates, 0, 0.5))
	})
}

func TestRelevanceScoreFn(t *testing.T) {
	tests := []struct {
		name     string
		strategy DistanceStrategy
		kind     ScoreKind
		in, want float32
	}{
		{"cosine distance zero", Cosine, ScoreDistance, 0, 1},
		{"cosine distance one", Cosine, ScoreDistance, 1, 0},
		{"cosine distance opposite clamps", Cosine, ScoreDistance, 2, 0},
		{"euclidean zero", Euclidean, ScoreDistance, 0, 1},
		{"euclidean sqrt2", Euclidean, ScoreDistance, float32(math.Sqrt2), 0},
		{"negative inner product", InnerProduct, ScoreDistance, -0.8, 0.8},
		{"positive inner product distance", InnerProduct, ScoreDistance, 0.25, 0.75},
		{"cosine similarity one", Cosine, ScoreSimilarity, 1, 1},
		{"cosine similarity zero", Cosine, ScoreSimilarity, 0, 0.5},
		{"cosine similarity minus one", Cosine, ScoreSimilarity, -1, 0},
		{"inner product similarity", InnerProduct, ScoreSimilarity, 0.6, 0.6},
		{"inner product similarity clamps", InnerProduct, ScoreSimilarity, 1.7, 1},
		{"l2 in similarity mode is a distance", Euclidean, ScoreSimilarity, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := RelevanceScoreFn(tt.strategy, tt.kind)
			assert.InDelta(t, tt.want, fn(tt.in), 1e-6)
		})
	}
}

func TestParseDistanceStrategy(t *testing.T) {
	for in, want := range map[string]DistanceStrategy{
		"":          Cosine,
		"COS":       Cosine,
		"l2":        Euclidean,
		"Euclidean": Euclidean,
		"IP":        InnerProduct,
		"dot":       InnerProduct,
	} {
		got, err := ParseDistanceStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDistanceStrategy("manhattan")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestLastByID(t *testing.T) {
	got := LastByID([]Record{
		{ID: "a", Content: "1"},
		{ID: "b", Content: "2"},
		{ID: "a", Content: "3"},
		{ID: "c", Content: "4"},
		{ID: "b", Content: "5"},
	})
	assert.Equal(t, []Record{
		{ID: "a", Content: "3"},
		{ID: "b", Content: "5"},
		{ID: "c", Content: "4"},
	}, got)

	assert.Empty(t, LastByID(nil))
}

func TestResolveIDs(t *testing.T) {
	t.Run("explicit ids win", func(t *testing.T) {
		ids, err := ResolveIDs(2, []string{"a", "b"}, []map[string]any{{"id": "x"}, nil})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids)
	})

	t.Run("metadata id then uuid", func(t *testing.T) {
		ids, err := ResolveIDs(3, nil, []map[string]any{{"id": "doc-1"}, {"id": 7}, nil})
		require.NoError(t, err)
		assert.Equal(t, "doc-1", ids[0])
		assert.Len(t, ids[1], 36)
		assert.Len(t, ids[2], 36)
		assert.NotEqual(t, ids[1], ids[2])
	})

	t.Run("blank explicit id falls back", func(t *testing.T) {
		ids, err := ResolveIDs(1, []string{""}, []map[string]any{{"id": "m"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"m"}, ids)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := ResolveIDs(2, []string{"a"}, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = ResolveIDs(2, nil, []map[string]any{{}})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestBatches(t *testing.T) {
	assert.Nil(t, Batches(0, 10))
	assert.Equal(t, []Batch{{0, 3}}, Batches(3, 10))
	assert.Equal(t, []Batch{{0, 2}, {2, 4}, {4, 5}}, Batches(5, 2))
	assert.Len(t, Batches(250, 0), 3)
}

func TestIndexParamsValidate(t *testing.T) {
	for _, kind := range []IndexKind{IVF, HNSW, DiskANN} {
		assert.NoError(t, DefaultIndexParams(kind).Validate(), kind)
	}

	bad := []IndexParams{
		{Kind: IVF, Lists: 0},
		{Kind: HNSW, M: 1, EfConstruction: 64},
		{Kind: HNSW, M: 16, EfConstruction: 20},
		{Kind: DiskANN, MaxDegree: 10, LBuild: 50},
		{Kind: DiskANN, MaxDegree: 32, LBuild: 600},
		{Kind: "flat"},
	}
	for _, p := range bad {
		assert.ErrorIs(t, p.Validate(), ErrInvalidInput, "%+v", p)
	}
}
