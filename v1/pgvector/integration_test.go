package pgvector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tmc/langchaingo/vectorstores"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// initializePgvector starts a Postgres container with the vector extension
// installed and returns a Config pointing at it.
func initializePgvector(ctx context.Context, t *testing.T) (Config, testcontainers.Container) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "vectors",
		},
		// HNSW builds use dynamic shared memory; the docker default of 64MB is too small.
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.ShmSize = 256 << 20
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, nat.Port("5432/tcp"))
	require.NoError(t, err)

	cfg := DefaultConfig().
		WithConnectionString(fmt.Sprintf("host=%s port=%s user=postgres password=postgres dbname=vectors sslmode=disable", host, port.Port())).
		WithTable("it_docs").
		WithEmbeddingLength(3)
	return cfg, pg
}

func TestPgvectorStore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg, containerInstance := initializePgvector(ctx, t)
	defer func() {
		if err := containerInstance.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	var store *vectorstore.Store
	app := fxtest.New(t,
		FXModule,
		fx.Provide(func() Config { return cfg }),
		fx.Populate(&store),
	)
	app.RequireStart()
	defer app.RequireStop()

	texts := []string{"alpha", "beta", "gamma"}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0.9, 0.1, 0}}
	metas := []map[string]any{
		{"lang": "en", "page": 1},
		{"lang": "de", "page": 2},
		{"lang": "en", "page": 3, "author": map[string]any{"name": "ada"}},
	}

	ids, err := store.AddVectors(ctx, texts, vectors, metas, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	t.Run("Search ranks by distance", func(t *testing.T) {
		results, err := store.Search(ctx, vectorstore.SearchRequest{Vector: []float32{1, 0, 0}, K: 3})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "alpha", results[0].Content)
		assert.Equal(t, "gamma", results[1].Content)
		assert.InDelta(t, 0, results[0].Score, 1e-5)
	})

	t.Run("Relevance and threshold", func(t *testing.T) {
		results, err := store.Search(ctx, vectorstore.SearchRequest{
			Vector:         []float32{1, 0, 0},
			K:              3,
			Relevance:      true,
			ScoreThreshold: 0.9,
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.InDelta(t, 1, results[0].Score, 1e-5)
	})

	t.Run("Filters", func(t *testing.T) {
		tests := []struct {
			name   string
			filter any
			want   []string
		}{
			{"equality", map[string]any{"lang": "en"}, []string{"alpha", "gamma"}},
			{"ne", map[string]any{"lang": map[string]any{"$ne": "en"}}, []string{"beta"}},
			{"range", map[string]any{"page": map[string]any{"$gte": 2}}, []string{"gamma", "beta"}},
			{"in", map[string]any{"page": map[string]any{"$in": []any{1, 2}}}, []string{"alpha", "beta"}},
			{"nested field", map[string]any{"author.name": "ada"}, []string{"gamma"}},
			{"exists", map[string]any{"author": map[string]any{"$exists": false}}, []string{"alpha", "beta"}},
			{"or", map[string]any{"$or": []any{
				map[string]any{"lang": "de"},
				map[string]any{"page": 1},
			}}, []string{"alpha", "beta"}},
			{"like", `{"lang": {"$like": "e%"}}`, []string{"alpha", "gamma"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				results, err := store.Search(ctx, vectorstore.SearchRequest{Vector: []float32{1, 0, 0}, K: 10, Filter: tt.filter})
				require.NoError(t, err)
				var got []string
				for _, r := range results {
					got = append(got, r.Content)
				}
				assert.Equal(t, tt.want, got)
			})
		}
	})

	t.Run("Filter semantics", func(t *testing.T) {
		filterStore, err := New(ctx, cfg.WithTable("it_filter_semantics"), nil)
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, filterStore.Drop(ctx))
			assert.NoError(t, filterStore.Close())
		}()

		_, err = filterStore.AddVectors(ctx,
			[]string{"t1", "t2", "t3", "t4"},
			[][]float32{{1, 0, 0}, {1, 0, 0}, {1, 0, 0}, {1, 0, 0}},
			[]map[string]any{
				{"lang": "en", "created": "2024-01-01T00:00:00.5Z", "tags": []any{"x"}, "year": 2020},
				{"lang": "de", "created": "2024-01-01T01:00:00+02:00", "tags": []any{}, "year": 2022},
				{"created": "n/a", "tags": ""},
				{"lang": "fr", "created": "2024-02-01T00:00:00Z", "year": 2024},
			},
			[]string{"t1", "t2", "t3", "t4"},
		)
		require.NoError(t, err)

		tests := []struct {
			name   string
			filter any
			want   []string
		}{
			{"time after honours fractional seconds", map[string]any{"created": map[string]any{"$gt": "2024-01-01T00:00:00Z"}}, []string{"t1", "t4"}},
			{"time before honours offsets and skips non-times", map[string]any{"created": map[string]any{"$lt": "2024-01-01T00:00:00Z"}}, []string{"t2"}},
			{"time between", map[string]any{"created": map[string]any{"$between": []any{"2023-12-31T00:00:00Z", "2024-01-01T00:00:01Z"}}}, []string{"t1", "t2"}},
			{"nin keeps missing fields", map[string]any{"lang": map[string]any{"$nin": []any{"en", "de"}}}, []string{"t3", "t4"}},
			{"numeric between", map[string]any{"year": map[string]any{"$between": []any{2021, 2024}}}, []string{"t2", "t4"}},
			{"is empty", vectorstore.NewIsEmpty("tags"), []string{"t2", "t3", "t4"}},
			{"must not keeps missing fields", vectorstore.NewFilterSet(vectorstore.MustNot(vectorstore.NewMatch("lang", "en"))), []string{"t2", "t3", "t4"}},
			{"must not on a range", vectorstore.NewFilterSet(vectorstore.MustNot(
				vectorstore.NewNumericRange("year", vectorstore.NumericRange{Gte: vectorstore.Float(2022)}),
			)), []string{"t1", "t3"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				results, err := filterStore.Search(ctx, vectorstore.SearchRequest{Vector: []float32{1, 0, 0}, K: 10, Filter: tt.filter})
				require.NoError(t, err)
				var got []string
				for _, r := range results {
					got = append(got, r.Content)
				}
				assert.ElementsMatch(t, tt.want, got)
			})
		}
	})

	t.Run("Get by ids", func(t *testing.T) {
		docs, err := store.GetByIDs(ctx, []string{"c", "missing", "a"})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "gamma", docs[0].PageContent)
		assert.Equal(t, "c", docs[0].Metadata[vectorstore.IDKey])
		assert.Equal(t, "alpha", docs[1].PageContent)
	})

	t.Run("Upsert replaces", func(t *testing.T) {
		_, err := store.AddVectors(ctx, []string{"alpha v2"}, [][]float32{{1, 0, 0}}, nil, []string{"a"})
		require.NoError(t, err)

		docs, err := store.GetByIDs(ctx, []string{"a"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "alpha v2", docs[0].PageContent)
	})

	t.Run("Dimension mismatch", func(t *testing.T) {
		_, err := store.AddVectors(ctx, []string{"x"}, [][]float32{{1, 0}}, nil, nil)
		assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	})

	t.Run("Indexes", func(t *testing.T) {
		for _, kind := range []vectorstore.IndexKind{vectorstore.IVF, vectorstore.HNSW} {
			p := vectorstore.DefaultIndexParams(kind)
			if kind == vectorstore.IVF {
				p.Lists = 1
			}
			require.NoError(t, store.CreateIndex(ctx, p))
		}

		err := store.CreateIndex(ctx, vectorstore.DefaultIndexParams(vectorstore.HNSW))
		assert.ErrorIs(t, err, vectorstore.ErrIndexExists)

		results, err := store.Search(ctx, vectorstore.SearchRequest{
			Vector: []float32{0, 1, 0},
			K:      1,
			Params: vectorstore.SearchParams{Probes: 1, EfSearch: 40},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "beta", results[0].Content)

		require.NoError(t, store.DropIndex(ctx, ""))
	})

	t.Run("Full-text and hybrid search", func(t *testing.T) {
		require.NoError(t, store.CreateIndex(ctx, vectorstore.IndexParams{Kind: vectorstore.Text}))
		defer func() {
			require.NoError(t, store.DropIndex(ctx, TextIndexName("it_docs")))
		}()

		results, err := store.FullTextSearch(ctx, "gamma", 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "gamma", results[0].Content)
		assert.Greater(t, results[0].Score, float32(0))

		results, err = store.FullTextSearch(ctx, "gamma", 5, vectorstores.WithFilters(map[string]any{"lang": "de"}))
		require.NoError(t, err)
		assert.Empty(t, results)

		// Vector ranks alpha, gamma, beta; text only matches beta.
		results, err = store.HybridSearch(ctx, vectorstore.SearchRequest{
			Query:  "beta",
			Vector: []float32{1, 0, 0},
			K:      2,
		}, 3)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "beta", results[0].Content)
		assert.Equal(t, "alpha v2", results[1].Content)
	})

	t.Run("Delete", func(t *testing.T) {
		removed, err := store.Delete(ctx, []string{"b", "missing"})
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = store.Delete(ctx, []string{"missing"})
		require.NoError(t, err)
		assert.False(t, removed)

		n, err := store.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	require.NoError(t, store.Drop(ctx))
}

func TestPgvectorClient_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := DefaultConfig().WithConnectionString("host=127.0.0.1 port=1 user=u password=p dbname=d sslmode=disable connect_timeout=1")
	_, err := NewClient(cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}
