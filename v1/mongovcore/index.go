package mongovcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// similarity returns the cosmosSearch similarity name of s.
func similarity(s vectorstore.DistanceStrategy) string {
	switch s {
	case vectorstore.Euclidean:
		return "L2"
	case vectorstore.InnerProduct:
		return "IP"
	default:
		return "COS"
	}
}

// CreateIndex builds the cosmosSearch vector index on the embedding field,
// or the text index on the text field for kind Text. It fails with
// vectorstore.ErrIndexExists when an index with the same name is already
// present.
func (b *Backend) CreateIndex(ctx context.Context, p vectorstore.IndexParams) (err error) {
	name := p.Name
	if name == "" {
		name = b.cfg.IndexName
		if p.Kind == vectorstore.Text {
			name = TextIndexName(b.cfg.TextKey)
		}
	}

	start := time.Now()
	defer func() {
		b.observeOperation("create_index", name, start, err, 0, map[string]interface{}{"kind": string(p.Kind)})
	}()

	exists, err := b.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", vectorstore.ErrIndexExists, name)
	}

	if p.Kind == vectorstore.Text {
		return b.createTextIndex(ctx, name)
	}

	cmd, err := buildCreateIndexCommand(b.cfg, name, p)
	if err != nil {
		return err
	}
	if err := b.client.Database().RunCommand(ctx, cmd).Err(); err != nil {
		return TranslateError(fmt.Errorf("failed to create index %s: %w", name, err))
	}

	b.logInfo("Created vector index", map[string]interface{}{"index": name, "kind": string(p.Kind)})
	return nil
}

// buildCreateIndexCommand renders the createIndexes command for p.
func buildCreateIndexCommand(cfg Config, name string, p vectorstore.IndexParams) (bson.D, error) {
	dims := p.Dimensions
	if dims == 0 {
		dims = cfg.EmbeddingLength
	}
	if dims <= 0 {
		return nil, fmt.Errorf("%w: embedding_length must be set to create a vector index", vectorstore.ErrInvalidInput)
	}
	if cfg.EmbeddingLength != 0 && dims != cfg.EmbeddingLength {
		return nil, fmt.Errorf("%w: index has %d dimensions, config has %d", vectorstore.ErrDimensionMismatch, dims, cfg.EmbeddingLength)
	}

	var opts bson.D
	switch p.Kind {
	case vectorstore.IVF:
		opts = bson.D{{Key: "kind", Value: "vector-ivf"}, {Key: "numLists", Value: p.Lists}}
	case vectorstore.HNSW:
		opts = bson.D{{Key: "kind", Value: "vector-hnsw"}, {Key: "m", Value: p.M}, {Key: "efConstruction", Value: p.EfConstruction}}
	case vectorstore.DiskANN:
		opts = bson.D{{Key: "kind", Value: "vector-diskann"}, {Key: "maxDegree", Value: p.MaxDegree}, {Key: "lBuild", Value: p.LBuild}}
	default:
		return nil, fmt.Errorf("%w: index kind %q", vectorstore.ErrUnsupported, p.Kind)
	}
	opts = append(opts,
		bson.E{Key: "similarity", Value: similarity(cfg.DistanceStrategy)},
		bson.E{Key: "dimensions", Value: dims},
	)

	return bson.D{
		{Key: "createIndexes", Value: cfg.Collection},
		{Key: "indexes", Value: bson.A{
			bson.D{
				{Key: "name", Value: name},
				{Key: "key", Value: bson.D{{Key: cfg.EmbeddingKey, Value: "cosmosSearch"}}},
				{Key: "cosmosSearchOptions", Value: opts},
			},
		}},
	}, nil
}

// FilterIndexName returns the name CreateFilterIndex uses for field.
func FilterIndexName(field string) string {
	return "filter_" + strings.ReplaceAll(field, ".", "_")
}

// CreateFilterIndex creates an ascending index on a metadata field so that
// cosmosSearch can pre-filter on it.
func (b *Backend) CreateFilterIndex(ctx context.Context, field string) (err error) {
	name := FilterIndexName(field)
	start := time.Now()
	defer func() {
		b.observeOperation("create_filter_index", name, start, err, 0, nil)
	}()

	path, err := b.filters.path(field, vectorstore.MetadataField)
	if err != nil {
		return err
	}
	_, err = b.collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: path, Value: 1}},
		Options: options.Index().SetName(name),
	})
	if err != nil {
		return TranslateError(fmt.Errorf("failed to create filter index on %s: %w", field, err))
	}
	return nil
}

// DropIndex drops the named index; an empty name drops the configured vector
// index. A missing index is not an error.
func (b *Backend) DropIndex(ctx context.Context, name string) (err error) {
	if name == "" {
		name = b.cfg.IndexName
	}
	start := time.Now()
	defer func() {
		b.observeOperation("drop_index", name, start, err, 0, nil)
	}()

	if _, err := b.collection().Indexes().DropOne(ctx, name); err != nil {
		err = TranslateError(err)
		if errors.Is(err, vectorstore.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to drop index %s: %w", name, err)
	}
	return nil
}

// IndexExists reports whether the collection has an index called name.
func (b *Backend) IndexExists(ctx context.Context, name string) (bool, error) {
	specs, err := b.collection().Indexes().ListSpecifications(ctx)
	if err != nil {
		err = TranslateError(err)
		// The collection does not exist yet.
		if errors.Is(err, vectorstore.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to list indexes: %w", err)
	}
	for _, s := range specs {
		if s.Name == name {
			return true, nil
		}
	}
	return false, nil
}
