package mongovcore

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

// initializeMongo starts a plain MongoDB container. It has no cosmosSearch
// stage, so the tests below cover writes, reads, deletes and index bookkeeping.
func initializeMongo(ctx context.Context, t *testing.T) (Config, testcontainers.Container) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Tmpfs = map[string]string{"/data/db": "rw"}
		},
		WaitingFor: wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}
	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := mongoContainer.Host(ctx)
	require.NoError(t, err)
	port, err := mongoContainer.MappedPort(ctx, nat.Port("27017/tcp"))
	require.NoError(t, err)

	cfg := DefaultConfig().
		WithConnectionString(fmt.Sprintf("mongodb://%s:%s/?directConnection=true", host, port.Port())).
		WithNamespace("it", "docs").
		WithEmbeddingLength(3)
	return cfg, mongoContainer
}

func TestMongoBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg, containerInstance := initializeMongo(ctx, t)
	defer func() {
		if err := containerInstance.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	var (
		store   *vectorstore.Store
		backend *Backend
	)
	app := fxtest.New(t,
		FXModule,
		fx.Provide(func() Config { return cfg }),
		fx.Populate(&store, &backend),
	)
	app.RequireStart()
	defer app.RequireStop()

	ids, err := store.AddVectors(ctx,
		[]string{"alpha", "beta", "gamma"},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[]map[string]any{{"lang": "en", "page": 1}, {"lang": "de"}, {"lang": "en", "page": 3}},
		[]string{"a", "b", "c"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	t.Run("Get by ids", func(t *testing.T) {
		docs, err := store.GetByIDs(ctx, []string{"c", "a", "missing"})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "gamma", docs[0].PageContent)
		assert.Equal(t, "en", docs[0].Metadata["lang"])
		assert.Equal(t, "c", docs[0].Metadata[vectorstore.IDKey])

		records, err := backend.Get(ctx, []string{"a"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, []float32{1, 0, 0}, records[0].Embedding)
	})

	t.Run("Filters match stored documents", func(t *testing.T) {
		fs, err := vectorstore.ParseFilter(map[string]any{
			"lang": "en",
			"page": map[string]any{"$gte": 2},
		})
		require.NoError(t, err)
		filter, err := backend.filters.build(fs)
		require.NoError(t, err)

		n, err := backend.collection().CountDocuments(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		like, err := backend.filters.build(vectorstore.NewFilterSet(vectorstore.Must(
			&vectorstore.LikeCondition{Field: "lang", Pattern: "e%"},
		)))
		require.NoError(t, err)
		n, err = backend.collection().CountDocuments(ctx, like)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("Filter semantics", func(t *testing.T) {
		coll := backend.client.Database().Collection("filter_semantics")
		defer func() {
			assert.NoError(t, coll.Drop(ctx))
		}()

		created := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		var docs []interface{}
		for _, r := range []vectorstore.Record{
			{ID: "t1", Content: "t1", Metadata: map[string]any{"lang": "en", "created": "2024-01-01T00:00:00.5Z", "tags": []any{"x"}, "year": 2020}},
			{ID: "t2", Content: "t2", Metadata: map[string]any{"lang": "de", "created": "2024-01-01T01:00:00+02:00", "tags": []any{}, "year": 2022}},
			{ID: "t3", Content: "t3", Metadata: map[string]any{"created": "n/a", "tags": ""}},
			{ID: "t4", Content: "t4", Metadata: map[string]any{"lang": "fr", "created": created, "year": 2024}},
		} {
			docs = append(docs, backend.document(r))
		}
		_, err := coll.InsertMany(ctx, docs)
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
				fs, err := vectorstore.ResolveFilter(tt.filter)
				require.NoError(t, err)
				filter, err := backend.filters.build(fs)
				require.NoError(t, err)

				cursor, err := coll.Find(ctx, filter)
				require.NoError(t, err)
				var found []struct {
					ID string `bson:"_id"`
				}
				require.NoError(t, cursor.All(ctx, &found))

				var got []string
				for _, d := range found {
					got = append(got, d.ID)
				}
				assert.ElementsMatch(t, tt.want, got)
			})
		}
	})

	t.Run("Upsert replaces", func(t *testing.T) {
		_, err := store.AddVectors(ctx, []string{"alpha v2"}, [][]float32{{1, 0, 0}}, nil, []string{"a"})
		require.NoError(t, err)

		docs, err := store.GetByIDs(ctx, []string{"a"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "alpha v2", docs[0].PageContent)
	})

	t.Run("Full-text search", func(t *testing.T) {
		require.NoError(t, store.CreateIndex(ctx, vectorstore.IndexParams{Kind: vectorstore.Text}))
		defer func() {
			require.NoError(t, backend.DropIndex(ctx, TextIndexName(DefaultTextKey)))
		}()

		err := store.CreateIndex(ctx, vectorstore.IndexParams{Kind: vectorstore.Text})
		assert.ErrorIs(t, err, vectorstore.ErrIndexExists)

		results, err := store.FullTextSearch(ctx, "gamma", 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "c", results[0].ID)
		assert.Greater(t, results[0].Score, float32(0))
		assert.Nil(t, results[0].Embedding)

		results, err = store.FullTextSearch(ctx, "gamma", 5, vectorstores.WithFilters(map[string]any{"lang": "de"}))
		require.NoError(t, err)
		assert.Empty(t, results)

		results, err = store.FullTextSearch(ctx, "gamma alpha", 5)
		require.NoError(t, err)
		var ids []string
		for _, r := range results {
			ids = append(ids, r.ID)
		}
		assert.ElementsMatch(t, []string{"a", "c"}, ids)

		// The upsert above dropped the metadata of a.
		results, err = store.FullTextSearch(ctx, "gamma alpha", 5, vectorstores.WithFilters(map[string]any{"lang": "en"}))
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "c", results[0].ID)
	})

	t.Run("Filter index", func(t *testing.T) {
		require.NoError(t, backend.CreateFilterIndex(ctx, "lang"))

		exists, err := backend.IndexExists(ctx, FilterIndexName("lang"))
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, backend.DropIndex(ctx, FilterIndexName("lang")))
		exists, err = backend.IndexExists(ctx, FilterIndexName("lang"))
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, backend.DropIndex(ctx, "does_not_exist"))
	})

	t.Run("Delete", func(t *testing.T) {
		removed, err := store.Delete(ctx, []string{"b"})
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = store.Delete(ctx, []string{"b"})
		require.NoError(t, err)
		assert.False(t, removed)

		n, err := store.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	require.NoError(t, store.Drop(ctx))

	exists, err := backend.IndexExists(ctx, cfg.IndexName)
	require.NoError(t, err)
	assert.False(t, exists)
}
