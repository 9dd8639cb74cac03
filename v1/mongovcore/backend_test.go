package mongovcore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Aleph-Alpha/vectorstores/v1/observability"
	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

func testBackend(t *testing.T) *Backend {
	t.Helper()
	cfg := DefaultConfig().WithNamespace("rag", "docs").WithEmbeddingLength(3)
	cfg.Host = "localhost"
	b, err := NewBackend(nil, cfg)
	require.NoError(t, err)
	return b
}

func TestSearchPipeline(t *testing.T) {
	b := testBackend(t)
	q := vectorstore.Query{
		Vector: []float32{0.1, 0.2, 0.3},
		K:      4,
		Filter: vectorstore.NewFilterSet(vectorstore.Must(vectorstore.NewMatch("lang", "en"))),
		Params: vectorstore.SearchParams{EfSearch: 40},
	}

	pipeline, err := b.searchPipeline(q)
	require.NoError(t, err)

	want := mongo.Pipeline{
		{{Key: "$search", Value: bson.D{
			{Key: "cosmosSearch", Value: bson.D{
				{Key: "vector", Value: []float32{0.1, 0.2, 0.3}},
				{Key: "path", Value: "vectorContent"},
				{Key: "k", Value: 4},
				{Key: "filter", Value: bson.D{{Key: "metadata.lang", Value: bson.D{{Key: "$eq", Value: "en"}}}}},
				{Key: "efSearch", Value: 40},
			}},
			{Key: "returnStoredSource", Value: true},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "similarityScore", Value: bson.D{{Key: "$meta", Value: "searchScore"}}},
			{Key: "document", Value: "$$ROOT"},
		}}},
		{{Key: "$project", Value: bson.D{{Key: "document.vectorContent", Value: 0}}}},
	}
	assert.Equal(t, want, pipeline)
}

func TestSearchPipeline_WithEmbeddingAndParams(t *testing.T) {
	b := testBackend(t)
	pipeline, err := b.searchPipeline(vectorstore.Query{
		Vector:        []float32{1},
		K:             1,
		WithEmbedding: true,
		Params:        vectorstore.SearchParams{Probes: 3, LSearch: 80},
	})
	require.NoError(t, err)
	require.Len(t, pipeline, 2)

	search := pipeline[0][0].Value.(bson.D)[0].Value.(bson.D)
	keys := make([]string, len(search))
	for i, e := range search {
		keys[i] = e.Key
	}
	assert.Equal(t, []string{"vector", "path", "k", "nProbes", "lSearch"}, keys)
}

func TestSearchPipeline_InvalidFilter(t *testing.T) {
	b := testBackend(t)
	_, err := b.searchPipeline(vectorstore.Query{
		Vector: []float32{1},
		K:      1,
		Filter: vectorstore.NewFilterSet(vectorstore.Must(vectorstore.NewMatch("$where", 1))),
	})
	assert.ErrorIs(t, err, vectorstore.ErrInvalidFilter)
}

func TestDocumentAndRecord(t *testing.T) {
	b := testBackend(t)

	doc := b.document(vectorstore.Record{ID: "a", Content: "alpha", Embedding: []float32{1, 0, 0}})
	assert.Equal(t, bson.D{
		{Key: "_id", Value: "a"},
		{Key: "textContent", Value: "alpha"},
		{Key: "vectorContent", Value: []float32{1, 0, 0}},
		{Key: "metadata", Value: map[string]any{}},
	}, doc)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stored := bson.M{
		"_id":           "a",
		"textContent":   "alpha",
		"vectorContent": bson.A{1.0, 0.5, int32(0)},
		"metadata": bson.M{
			"page":    int32(3),
			"created": primitive.NewDateTimeFromTime(created),
			"tags":    bson.A{"x", "y"},
			"author":  bson.D{{Key: "name", Value: "ada"}},
		},
	}

	r := b.record(stored, true)
	assert.Equal(t, "a", r.ID)
	assert.Equal(t, "alpha", r.Content)
	assert.Equal(t, []float32{1, 0.5, 0}, r.Embedding)
	assert.Equal(t, map[string]any{
		"page":    int64(3),
		"created": created,
		"tags":    []any{"x", "y"},
		"author":  map[string]any{"name": "ada"},
	}, r.Metadata)

	r = b.record(bson.M{"_id": primitive.NilObjectID, "vectorContent": bson.A{1.0}}, false)
	assert.Equal(t, primitive.NilObjectID.Hex(), r.ID)
	assert.Nil(t, r.Embedding)
	assert.NotNil(t, r.Metadata)
}

func TestUpsertModels_RepeatedIDs(t *testing.T) {
	b := testBackend(t)

	models := b.upsertModels([]vectorstore.Record{
		{ID: "a", Content: "first", Embedding: []float32{1, 0, 0}},
		{ID: "b", Content: "beta", Embedding: []float32{0, 1, 0}},
		{ID: "a", Content: "second", Embedding: []float32{0, 0, 1}},
	})
	require.Len(t, models, 2)

	first, ok := models[0].(*mongo.ReplaceOneModel)
	require.True(t, ok)
	assert.Equal(t, bson.D{{Key: "_id", Value: "a"}}, first.Filter)
	assert.Equal(t, b.document(vectorstore.Record{ID: "a", Content: "second", Embedding: []float32{0, 0, 1}}), first.Replacement)
	require.NotNil(t, first.Upsert)
	assert.True(t, *first.Upsert)

	second, ok := models[1].(*mongo.ReplaceOneModel)
	require.True(t, ok)
	assert.Equal(t, bson.D{{Key: "_id", Value: "b"}}, second.Filter)
}

func TestBuildCreateIndexCommand(t *testing.T) {
	cfg := DefaultConfig().WithNamespace("rag", "docs").WithEmbeddingLength(3)

	cmd, err := buildCreateIndexCommand(cfg, "vectorSearchIndex", vectorstore.DefaultIndexParams(vectorstore.HNSW))
	require.NoError(t, err)

	want := bson.D{
		{Key: "createIndexes", Value: "docs"},
		{Key: "indexes", Value: bson.A{
			bson.D{
				{Key: "name", Value: "vectorSearchIndex"},
				{Key: "key", Value: bson.D{{Key: "vectorContent", Value: "cosmosSearch"}}},
				{Key: "cosmosSearchOptions", Value: bson.D{
					{Key: "kind", Value: "vector-hnsw"},
					{Key: "m", Value: 16},
					{Key: "efConstruction", Value: 64},
					{Key: "similarity", Value: "COS"},
					{Key: "dimensions", Value: 3},
				}},
			},
		}},
	}
	assert.Equal(t, want, cmd)
}

func TestBuildCreateIndexCommand_Kinds(t *testing.T) {
	cfg := DefaultConfig().WithNamespace("rag", "docs").WithEmbeddingLength(3)

	options := func(cmd bson.D) bson.D {
		return cmd[1].Value.(bson.A)[0].(bson.D)[2].Value.(bson.D)
	}

	cmd, err := buildCreateIndexCommand(cfg.WithDistanceStrategy(vectorstore.Euclidean), "i", vectorstore.DefaultIndexParams(vectorstore.IVF))
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Key: "kind", Value: "vector-ivf"},
		{Key: "numLists", Value: 100},
		{Key: "similarity", Value: "L2"},
		{Key: "dimensions", Value: 3},
	}, options(cmd))

	cmd, err = buildCreateIndexCommand(cfg.WithDistanceStrategy(vectorstore.InnerProduct), "i", vectorstore.DefaultIndexParams(vectorstore.DiskANN))
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Key: "kind", Value: "vector-diskann"},
		{Key: "maxDegree", Value: 32},
		{Key: "lBuild", Value: 50},
		{Key: "similarity", Value: "IP"},
		{Key: "dimensions", Value: 3},
	}, options(cmd))

	_, err = buildCreateIndexCommand(cfg, "i", vectorstore.IndexParams{Kind: "flat"})
	assert.ErrorIs(t, err, vectorstore.ErrUnsupported)

	_, err = buildCreateIndexCommand(cfg, "i", vectorstore.IndexParams{Kind: vectorstore.IVF, Lists: 1, Dimensions: 4})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	_, err = buildCreateIndexCommand(cfg.WithEmbeddingLength(0), "i", vectorstore.DefaultIndexParams(vectorstore.IVF))
	assert.ErrorIs(t, err, vectorstore.ErrInvalidInput)
}

func TestFilterIndexName(t *testing.T) {
	assert.Equal(t, "filter_lang", FilterIndexName("lang"))
	assert.Equal(t, "filter_author_name", FilterIndexName("author.name"))
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     error
		category ErrorCategory
		retry    bool
	}{
		{"no documents", mongo.ErrNoDocuments, vectorstore.ErrNotFound, CategoryNotFound, false},
		{"disconnected", mongo.ErrClientDisconnected, ErrConnectionFailed, CategoryConnection, true},
		{"duplicate", mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}, ErrDuplicateKey, CategoryConflict, false},
		{"deadline", context.DeadlineExceeded, ErrTimeout, CategoryTimeout, true},
		{"index conflict", mongo.CommandError{Code: 85, Message: "Index with name already exists with different options"}, vectorstore.ErrIndexExists, CategoryConflict, false},
		{"index not found", mongo.CommandError{Code: 27}, vectorstore.ErrNotFound, CategoryNotFound, false},
		{"bad value", mongo.CommandError{Code: 2}, ErrInvalidData, CategoryInvalid, false},
		{"transient", mongo.CommandError{Code: 112, Labels: []string{"TransientTransactionError"}}, ErrTransient, CategoryTransient, true},
		{"network", mongo.CommandError{Labels: []string{"NetworkError"}}, ErrConnectionFailed, CategoryConnection, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("op: %w", tt.err)
			got := TranslateError(wrapped)

			assert.ErrorIs(t, got, tt.want)
			assert.Equal(t, tt.category, GetErrorCategory(wrapped))
			assert.Equal(t, tt.retry, IsRetryable(wrapped))
		})
	}

	assert.Nil(t, TranslateError(nil))
	plain := errors.New("plain")
	assert.Equal(t, plain, TranslateError(plain))
}

func TestBulkWriteError(t *testing.T) {
	bwe := mongo.BulkWriteException{WriteErrors: []mongo.BulkWriteError{
		{WriteError: mongo.WriteError{Index: 0, Code: 2, Message: "bad vector"}},
		{WriteError: mongo.WriteError{Index: 3, Code: 2, Message: "bad metadata"}},
	}}

	err := bulkWriteError(bwe)
	assert.Contains(t, err.Error(), "document 0: bad vector")
	assert.Contains(t, err.Error(), "document 3: bad metadata")

	var target mongo.BulkWriteException
	assert.True(t, errors.As(err, &target))

	plain := errors.New("plain")
	assert.Equal(t, plain, bulkWriteError(plain))
}

type recordingObserver struct {
	ops []observability.OperationContext
}

func (r *recordingObserver) ObserveOperation(ctx observability.OperationContext) {
	r.ops = append(r.ops, ctx)
}

func TestObserveOperation(t *testing.T) {
	var nilBackend *Backend
	nilBackend.observeOperation("query", "", time.Now(), nil, 0, nil)

	obs := &recordingObserver{}
	b := testBackend(t).WithObserver(obs)
	b.observeOperation("query", "vectorSearchIndex", time.Now(), nil, 4, nil)

	require.Len(t, obs.ops, 1)
	op := obs.ops[0]
	assert.Equal(t, "mongovcore", op.Component)
	assert.Equal(t, "rag.docs", op.Resource)
	assert.Equal(t, "vectorSearchIndex", op.SubResource)
	assert.Equal(t, int64(4), op.Size)
	assert.Equal(t, "success", op.Status())
}

func TestBackendInfo(t *testing.T) {
	info := testBackend(t).Info()
	assert.Equal(t, vectorstore.ScoreSimilarity, info.ScoreKind)
	assert.Equal(t, 3, info.Dimensions)
	assert.Equal(t, "rag.docs", info.Resource)
}
