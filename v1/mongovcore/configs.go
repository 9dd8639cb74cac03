package mongovcore

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

const (
	DefaultIndexName    = "vectorSearchIndex"
	DefaultTextKey      = "textContent"
	DefaultEmbeddingKey = "vectorContent"
	DefaultMetadataKey  = "metadata"

	// DefaultBatchSize is the number of documents written per BulkWrite.
	DefaultBatchSize = 128

	// MaxBatchSize bounds BatchSize.
	MaxBatchSize = 1000

	DefaultConnectTimeout = 10 * time.Second
)

// Config defines the configuration of a Cosmos DB for MongoDB vCore backed store.
//
// Example (builder style):
//
//	cfg := mongovcore.DefaultConfig().
//	    WithConnectionString(os.Getenv("MONGO_VCORE_CONNECTION_STRING")).
//	    WithNamespace("rag", "handbook").
//	    WithEmbeddingLength(1536)
type Config struct {
	// ConnectionString is used as is when set. Otherwise one is built from
	// Host, User and Password.
	ConnectionString string `yaml:"connection_string" envconfig:"MONGO_VCORE_CONNECTION_STRING"`

	Host     string `yaml:"host" envconfig:"MONGO_VCORE_HOST" validate:"required_without=ConnectionString"`
	User     string `yaml:"user" envconfig:"MONGO_VCORE_USER"`
	Password string `yaml:"password" envconfig:"MONGO_VCORE_PASSWORD"`
	AppName  string `yaml:"app_name" envconfig:"MONGO_VCORE_APP_NAME"`

	Database   string `yaml:"database" envconfig:"MONGO_VCORE_DATABASE" validate:"required"`
	Collection string `yaml:"collection" envconfig:"MONGO_VCORE_COLLECTION" validate:"required"`

	// IndexName is the name of the cosmosSearch vector index.
	IndexName string `yaml:"index_name" envconfig:"MONGO_VCORE_INDEX_NAME" validate:"required"`

	// Field names of the stored documents.
	TextKey      string `yaml:"text_key" envconfig:"MONGO_VCORE_TEXT_KEY" validate:"required,nefield=EmbeddingKey"`
	EmbeddingKey string `yaml:"embedding_key" envconfig:"MONGO_VCORE_EMBEDDING_KEY" validate:"required,nefield=MetadataKey"`
	MetadataKey  string `yaml:"metadata_key" envconfig:"MONGO_VCORE_METADATA_KEY" validate:"required,nefield=TextKey"`

	// EmbeddingLength is the dimension declared on the vector index.
	EmbeddingLength int `yaml:"embedding_length" envconfig:"MONGO_VCORE_EMBEDDING_LENGTH" validate:"gte=0,lte=16000"`

	DistanceStrategy vectorstore.DistanceStrategy `yaml:"distance_strategy" envconfig:"MONGO_VCORE_DISTANCE_STRATEGY" validate:"oneof=cosine euclidean inner_product"`

	BatchSize int `yaml:"batch_size" envconfig:"MONGO_VCORE_BATCH_SIZE" validate:"gte=1,lte=1000"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"MONGO_VCORE_CONNECT_TIMEOUT"`

	// SearchParams are applied to queries that do not set their own.
	SearchParams vectorstore.SearchParams `yaml:"search_params"`
}

// DefaultConfig returns a Config with the package defaults. Database and
// Collection still have to be set.
func DefaultConfig() Config {
	return Config{
		IndexName:        DefaultIndexName,
		TextKey:          DefaultTextKey,
		EmbeddingKey:     DefaultEmbeddingKey,
		MetadataKey:      DefaultMetadataKey,
		DistanceStrategy: vectorstore.Cosine,
		BatchSize:        DefaultBatchSize,
		ConnectTimeout:   DefaultConnectTimeout,
	}
}

func (c Config) WithConnectionString(s string) Config {
	c.ConnectionString = s
	return c
}

// WithNamespace sets the database and collection.
func (c Config) WithNamespace(database, collection string) Config {
	c.Database = database
	c.Collection = collection
	return c
}

func (c Config) WithIndexName(name string) Config {
	c.IndexName = name
	return c
}

func (c Config) WithEmbeddingLength(n int) Config {
	c.EmbeddingLength = n
	return c
}

func (c Config) WithDistanceStrategy(s vectorstore.DistanceStrategy) Config {
	c.DistanceStrategy = s
	return c
}

func (c Config) WithBatchSize(n int) Config {
	c.BatchSize = n
	return c
}

func (c *Config) applyDefaults() {
	if c.IndexName == "" {
		c.IndexName = DefaultIndexName
	}
	if c.TextKey == "" {
		c.TextKey = DefaultTextKey
	}
	if c.EmbeddingKey == "" {
		c.EmbeddingKey = DefaultEmbeddingKey
	}
	if c.MetadataKey == "" {
		c.MetadataKey = DefaultMetadataKey
	}
	if c.DistanceStrategy == "" {
		c.DistanceStrategy = vectorstore.Cosine
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// Validate checks the configuration after applying defaults.
func (c *Config) Validate() error {
	c.applyDefaults()
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", vectorstore.ErrInvalidInput, err)
	}
	return nil
}

func (c Config) storeConfig() vectorstore.Config {
	return vectorstore.Config{BatchSize: c.BatchSize, SearchParams: c.SearchParams}
}
