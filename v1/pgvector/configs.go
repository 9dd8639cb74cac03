package pgvector

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

const (
	// DefaultTable is the table used when Config.Table is empty.
	DefaultTable = "langchain_vectors"

	// DefaultSchema is the schema used when Config.Schema is empty.
	DefaultSchema = "public"

	// DefaultBatchSize is the number of rows written per INSERT.
	DefaultBatchSize = 100

	// MaxBatchSize bounds BatchSize.
	MaxBatchSize = 1000

	// DefaultTextSearchConfig is the text search configuration used for
	// full-text queries and the text index.
	DefaultTextSearchConfig = "english"
)

// Config defines the configuration of a pgvector backed store.
//
// Example (builder style):
//
//	cfg := pgvector.DefaultConfig().
//	    WithConnectionString(os.Getenv("PGVECTOR_CONNECTION_STRING")).
//	    WithTable("handbook").
//	    WithEmbeddingLength(1536)
type Config struct {
	// Connection contains the settings needed to reach the database.
	Connection Connection `yaml:"connection"`

	// ConnectionDetails tunes the database/sql connection pool.
	ConnectionDetails ConnectionDetails `yaml:"connection_details"`

	// Table holds documents and embeddings.
	Table string `yaml:"table" envconfig:"PGVECTOR_TABLE" validate:"required"`

	// Schema of Table.
	Schema string `yaml:"schema" envconfig:"PGVECTOR_SCHEMA" validate:"required"`

	// EmbeddingLength fixes the dimension of the embedding column.
	// Zero creates an unconstrained vector column, which cannot be indexed.
	EmbeddingLength int `yaml:"embedding_length" envconfig:"PGVECTOR_EMBEDDING_LENGTH" validate:"gte=0,lte=16000"`

	// DistanceStrategy picks the operator used for ordering and the index operator class.
	DistanceStrategy vectorstore.DistanceStrategy `yaml:"distance_strategy" envconfig:"PGVECTOR_DISTANCE_STRATEGY" validate:"oneof=cosine euclidean inner_product"`

	// BatchSize is the number of documents embedded and inserted per round trip.
	BatchSize int `yaml:"batch_size" envconfig:"PGVECTOR_BATCH_SIZE" validate:"gte=1,lte=1000"`

	// PreDeleteTable drops Table before creating it.
	PreDeleteTable bool `yaml:"pre_delete_table" envconfig:"PGVECTOR_PRE_DELETE_TABLE"`

	// UseDiskANNExtension loads pg_diskann next to vector.
	UseDiskANNExtension bool `yaml:"use_diskann_extension" envconfig:"PGVECTOR_USE_DISKANN"`

	// SearchParams are applied to queries that do not set their own.
	SearchParams vectorstore.SearchParams `yaml:"search_params"`

	// TextSearchConfig names the Postgres text search configuration
	// (english, german, simple, ...) of full-text queries and the text index.
	TextSearchConfig string `yaml:"text_search_config" envconfig:"PGVECTOR_TEXT_SEARCH_CONFIG" validate:"required,alpha,lowercase"`

	// TokenProvider supplies passwords for connections without credentials.
	TokenProvider TokenProvider `yaml:"-"`
}

// Connection contains the basic connection parameters. Either ConnectionString
// or Host must be set; ConnectionString wins when both are.
type Connection struct {
	Host     string `yaml:"host" envconfig:"PGVECTOR_HOST" validate:"required_without=ConnectionString"`
	Port     string `yaml:"port" envconfig:"PGVECTOR_PORT"`
	User     string `yaml:"user" envconfig:"PGVECTOR_USER"`
	Password string `yaml:"password" envconfig:"PGVECTOR_PASSWORD"`
	DbName   string `yaml:"db_name" envconfig:"PGVECTOR_DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" envconfig:"PGVECTOR_SSL_MODE"`

	// ConnectionString accepts keyword/value DSNs, postgres:// URLs and
	// ADO style strings (Server=tcp:host,port;Database=...).
	ConnectionString string `yaml:"connection_string" envconfig:"PGVECTOR_CONNECTION_STRING"`
}

// ConnectionDetails holds pool settings. Zero values fall back to package defaults.
type ConnectionDetails struct {
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"PGVECTOR_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"PGVECTOR_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"PGVECTOR_CONN_MAX_LIFETIME"`
}

// DefaultConfig returns a Config with the package defaults.
func DefaultConfig() Config {
	return Config{
		Connection: Connection{
			Host:    "localhost",
			Port:    "5432",
			SSLMode: "prefer",
		},
		Table:            DefaultTable,
		Schema:           DefaultSchema,
		DistanceStrategy: vectorstore.Cosine,
		BatchSize:        DefaultBatchSize,
		TextSearchConfig: DefaultTextSearchConfig,
	}
}

func (c Config) WithConnectionString(s string) Config {
	c.Connection.ConnectionString = s
	return c
}

func (c Config) WithTable(name string) Config {
	c.Table = name
	return c
}

func (c Config) WithSchema(name string) Config {
	c.Schema = name
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

func (c Config) WithTextSearchConfig(name string) Config {
	c.TextSearchConfig = name
	return c
}

func (c Config) WithTokenProvider(p TokenProvider) Config {
	c.TokenProvider = p
	return c
}

// applyDefaults fills zero values so that partially populated configs from
// YAML behave like DefaultConfig.
func (c *Config) applyDefaults() {
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.Schema == "" {
		c.Schema = DefaultSchema
	}
	if c.DistanceStrategy == "" {
		c.DistanceStrategy = vectorstore.Cosine
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.TextSearchConfig == "" {
		c.TextSearchConfig = DefaultTextSearchConfig
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

// storeConfig is the framework layer configuration derived from c.
func (c Config) storeConfig() vectorstore.Config {
	return vectorstore.Config{BatchSize: c.BatchSize, SearchParams: c.SearchParams}
}
