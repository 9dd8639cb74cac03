package mongovcore

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Aleph-Alpha/vectorstores/v1/logger"
	"github.com/Aleph-Alpha/vectorstores/v1/observability"
	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// scoreField is the projected name of the cosmosSearch score.
const scoreField = "similarityScore"

// Backend stores documents in one collection:
//
//	{_id: <id>, textContent: <text>, vectorContent: [<float>...], metadata: {...}}
//
// It implements vectorstore.Backend.
type Backend struct {
	client   *Client
	cfg      Config
	filters  filterBuilder
	observer observability.Observer
	logger   logger.Logger
}

var _ vectorstore.Backend = (*Backend)(nil)

// NewBackend returns a Backend for the configured collection. MongoDB creates
// collections on first write, so nothing is prepared up front.
func NewBackend(client *Client, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Backend{client: client, cfg: cfg, filters: newFilterBuilder(cfg)}, nil
}

// New connects and returns a ready Store.
func New(cfg Config, embedder embeddings.Embedder) (*vectorstore.Store, error) {
	client, err := NewClient(cfg, nil)
	if err != nil {
		return nil, err
	}
	backend, err := NewBackend(client, cfg)
	if err != nil {
		_ = client.GracefulShutdown()
		return nil, err
	}
	return vectorstore.NewStore(backend, embedder, cfg.storeConfig()), nil
}

// WithObserver attaches an observer that is notified about every operation.
func (b *Backend) WithObserver(o observability.Observer) *Backend {
	b.observer = o
	return b
}

// WithLogger attaches a logger used for index management and failures.
func (b *Backend) WithLogger(l logger.Logger) *Backend {
	b.logger = l
	return b
}

// Info reports similarity scores; cosmosSearch returns higher-is-closer
// scores for COS and IP and the distance for L2.
func (b *Backend) Info() vectorstore.BackendInfo {
	return vectorstore.BackendInfo{
		Component:  componentName,
		Resource:   b.cfg.Database + "." + b.cfg.Collection,
		Distance:   b.cfg.DistanceStrategy,
		ScoreKind:  vectorstore.ScoreSimilarity,
		Dimensions: b.cfg.EmbeddingLength,
	}
}

func (b *Backend) collection() *mongo.Collection {
	return b.client.Collection()
}

// Upsert replaces documents by _id, inserting the missing ones.
func (b *Backend) Upsert(ctx context.Context, records []vectorstore.Record) (err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("upsert", "", start, err, int64(len(records)), nil)
	}()

	if len(records) == 0 {
		return nil
	}

	_, err = b.collection().BulkWrite(ctx, b.upsertModels(records), options.BulkWrite().SetOrdered(false))
	if err != nil {
		return TranslateError(fmt.Errorf("failed to upsert %d documents: %w", len(records), bulkWriteError(err)))
	}
	return nil
}

// upsertModels renders one ReplaceOne per id. An unordered bulk write gives
// no order between models, so repeated ids collapse onto their last record.
func (b *Backend) upsertModels(records []vectorstore.Record) []mongo.WriteModel {
	records = vectorstore.LastByID(records)
	models := make([]mongo.WriteModel, len(records))
	for i, r := range records {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: r.ID}}).
			SetReplacement(b.document(r)).
			SetUpsert(true)
	}
	return models
}

func (b *Backend) document(r vectorstore.Record) bson.D {
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return bson.D{
		{Key: "_id", Value: r.ID},
		{Key: b.cfg.TextKey, Value: r.Content},
		{Key: b.cfg.EmbeddingKey, Value: r.Embedding},
		{Key: b.cfg.MetadataKey, Value: meta},
	}
}

// Query runs a cosmosSearch aggregation.
func (b *Backend) Query(ctx context.Context, q vectorstore.Query) (results []vectorstore.SearchResult, err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("query", b.cfg.IndexName, start, err, int64(len(results)), map[string]interface{}{"k": q.K})
	}()

	pipeline, err := b.searchPipeline(q)
	if err != nil {
		return nil, err
	}

	results, err = b.aggregate(ctx, pipeline, q.WithEmbedding)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}

// aggregate runs a search pipeline whose stages project
// {similarityScore, document}.
func (b *Backend) aggregate(ctx context.Context, pipeline mongo.Pipeline, withEmbedding bool) ([]vectorstore.SearchResult, error) {
	cursor, err := b.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, TranslateError(err)
	}
	defer cursor.Close(ctx)

	var results []vectorstore.SearchResult
	for cursor.Next(ctx) {
		var hit struct {
			Score    float64 `bson:"similarityScore"`
			Document bson.M  `bson:"document"`
		}
		if err := cursor.Decode(&hit); err != nil {
			return nil, fmt.Errorf("failed to decode search result: %w", err)
		}
		results = append(results, vectorstore.SearchResult{
			Record: b.record(hit.Document, withEmbedding),
			Score:  float32(hit.Score),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, TranslateError(err)
	}
	return results, nil
}

// searchPipeline builds:
//
//	[{$search: {cosmosSearch: {vector, path, k, filter?, nProbes?, efSearch?, lSearch?}, returnStoredSource: true}},
//	 {$project: {similarityScore: {$meta: "searchScore"}, document: "$$ROOT"}},
//	 {$project: {document.<embeddingKey>: 0}}?]
func (b *Backend) searchPipeline(q vectorstore.Query) (mongo.Pipeline, error) {
	search := bson.D{
		{Key: "vector", Value: q.Vector},
		{Key: "path", Value: b.cfg.EmbeddingKey},
		{Key: "k", Value: q.K},
	}

	filter, err := b.filters.build(q.Filter)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		search = append(search, bson.E{Key: "filter", Value: filter})
	}
	if q.Params.Probes > 0 {
		search = append(search, bson.E{Key: "nProbes", Value: q.Params.Probes})
	}
	if q.Params.EfSearch > 0 {
		search = append(search, bson.E{Key: "efSearch", Value: q.Params.EfSearch})
	}
	if q.Params.LSearch > 0 {
		search = append(search, bson.E{Key: "lSearch", Value: q.Params.LSearch})
	}

	pipeline := mongo.Pipeline{
		{{Key: "$search", Value: bson.D{
			{Key: "cosmosSearch", Value: search},
			{Key: "returnStoredSource", Value: true},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: scoreField, Value: bson.D{{Key: "$meta", Value: "searchScore"}}},
			{Key: "document", Value: "$$ROOT"},
		}}},
	}
	if !q.WithEmbedding {
		pipeline = append(pipeline, bson.D{{Key: "$project", Value: bson.D{
			{Key: "document." + b.cfg.EmbeddingKey, Value: 0},
		}}})
	}
	return pipeline, nil
}

// record converts a stored document into a Record.
func (b *Backend) record(doc bson.M, withEmbedding bool) vectorstore.Record {
	r := vectorstore.Record{
		ID:       idString(doc["_id"]),
		Metadata: map[string]any{},
	}
	if text, ok := doc[b.cfg.TextKey].(string); ok {
		r.Content = text
	}
	if meta, ok := normalize(doc[b.cfg.MetadataKey]).(map[string]any); ok {
		r.Metadata = meta
	}
	if withEmbedding {
		r.Embedding = floats(doc[b.cfg.EmbeddingKey])
	}
	return r
}

// Get returns the documents with the given ids, embeddings included.
func (b *Backend) Get(ctx context.Context, ids []string) (records []vectorstore.Record, err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("get", "", start, err, int64(len(records)), nil)
	}()

	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := b.collection().Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, TranslateError(fmt.Errorf("failed to get documents: %w", err))
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		records = append(records, b.record(doc, true))
	}
	if err := cursor.Err(); err != nil {
		return nil, TranslateError(err)
	}
	return records, nil
}

// Remove deletes documents by _id and returns how many were deleted.
func (b *Backend) Remove(ctx context.Context, ids []string) (n int64, err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("delete", "", start, err, n, nil)
	}()

	if len(ids) == 0 {
		return 0, nil
	}
	res, err := b.collection().DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return 0, TranslateError(fmt.Errorf("failed to delete documents: %w", err))
	}
	return res.DeletedCount, nil
}

// RemoveAll deletes every document and keeps the collection and its indexes.
func (b *Backend) RemoveAll(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("delete_all", "", start, err, n, nil)
	}()

	res, err := b.collection().DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, TranslateError(fmt.Errorf("failed to delete documents: %w", err))
	}
	b.logInfo("Deleted all documents", map[string]interface{}{"collection": b.cfg.Collection, "documents": res.DeletedCount})
	return res.DeletedCount, nil
}

// Drop removes the collection and its indexes.
func (b *Backend) Drop(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("drop", "", start, err, 0, nil)
	}()

	if err := b.collection().Drop(ctx); err != nil {
		return TranslateError(fmt.Errorf("failed to drop collection %s: %w", b.cfg.Collection, err))
	}
	b.logInfo("Dropped collection", map[string]interface{}{"collection": b.cfg.Collection})
	return nil
}

// Close disconnects the client.
func (b *Backend) Close() error {
	return b.client.GracefulShutdown()
}

func (b *Backend) logInfo(msg string, fields map[string]interface{}) {
	if b.logger != nil {
		b.logger.Info(msg, nil, fields)
	}
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// normalize converts decoded BSON values into plain Go maps, slices and times.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalize(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalize(val)
		}
		return m
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.A:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = normalize(val)
		}
		return s
	case primitive.DateTime:
		return t.Time().UTC()
	case int32:
		return int64(t)
	}
	return v
}

func floats(v any) []float32 {
	arr, ok := v.(bson.A)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(arr))
	for _, x := range arr {
		switch n := x.(type) {
		case float64:
			out = append(out, float32(n))
		case float32:
			out = append(out, n)
		case int32:
			out = append(out, float32(n))
		case int64:
			out = append(out, float32(n))
		}
	}
	return out
}
