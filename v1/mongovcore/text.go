package mongovcore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

var _ vectorstore.TextSearcher = (*Backend)(nil)

// TextIndexName returns the name CreateIndex gives the text index on textKey.
func TextIndexName(textKey string) string {
	return textKey + "_text"
}

// SearchText runs a $text query against the collection's text index and
// ranks the matches by textScore. Without a text index the server rejects the
// query and the error wraps vectorstore.ErrNotFound.
func (b *Backend) SearchText(ctx context.Context, q vectorstore.TextQuery) (results []vectorstore.SearchResult, err error) {
	start := time.Now()
	defer func() {
		b.observeOperation("text_query", TextIndexName(b.cfg.TextKey), start, err, int64(len(results)), map[string]interface{}{"k": q.K})
	}()

	pipeline, err := b.textPipeline(q)
	if err != nil {
		return nil, err
	}

	results, err = b.aggregate(ctx, pipeline, q.WithEmbedding)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	return results, nil
}

// textPipeline builds:
//
//	[{$match: {$text: {$search}}} or {$match: {$and: [{$text: {$search}}, filter]}},
//	 {$project: {similarityScore: {$meta: "textScore"}, document: "$$ROOT"}},
//	 {$sort: {similarityScore: -1, _id: 1}},
//	 {$limit: k},
//	 {$project: {document.<embeddingKey>: 0}}?]
func (b *Backend) textPipeline(q vectorstore.TextQuery) (mongo.Pipeline, error) {
	match := bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: q.Text}}}}

	filter, err := b.filters.build(q.Filter)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		match = bson.D{{Key: "$and", Value: bson.A{match, filter}}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$project", Value: bson.D{
			{Key: scoreField, Value: bson.D{{Key: "$meta", Value: "textScore"}}},
			{Key: "document", Value: "$$ROOT"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: scoreField, Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: q.K}},
	}
	if !q.WithEmbedding {
		pipeline = append(pipeline, bson.D{{Key: "$project", Value: bson.D{
			{Key: "document." + b.cfg.EmbeddingKey, Value: 0},
		}}})
	}
	return pipeline, nil
}

// createTextIndex builds the text index on the text field. A collection has
// at most one text index.
func (b *Backend) createTextIndex(ctx context.Context, name string) error {
	_, err := b.collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: b.cfg.TextKey, Value: "text"}},
		Options: options.Index().SetName(name),
	})
	if err != nil {
		return TranslateError(fmt.Errorf("failed to create text index %s: %w", name, err))
	}
	b.logInfo("Created text index", map[string]interface{}{"index": name, "field": b.cfg.TextKey})
	return nil
}
