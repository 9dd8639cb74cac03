package cli

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Aleph-Alpha/vectorstores/v1/embedding"
	"github.com/Aleph-Alpha/vectorstores/v1/loader"
	"github.com/Aleph-Alpha/vectorstores/v1/logger"
	"github.com/Aleph-Alpha/vectorstores/v1/metrics"
	"github.com/Aleph-Alpha/vectorstores/v1/mongovcore"
	"github.com/Aleph-Alpha/vectorstores/v1/pgvector"
	"github.com/Aleph-Alpha/vectorstores/v1/tracer"
)

// Supported values of Config.Backend.
const (
	BackendPgvector   = "pgvector"
	BackendMongoVCore = "mongovcore"
)

// DefaultConfigFile is read when --config is not given and the file exists.
const DefaultConfigFile = "vectorctl.yaml"

// Config is the vectorctl configuration file.
type Config struct {
	// Backend selects which of the store sections below is used.
	Backend string `yaml:"backend"`

	Pgvector   pgvector.Config   `yaml:"pgvector"`
	MongoVCore mongovcore.Config `yaml:"mongovcore"`
	Embedding  embedding.Config  `yaml:"embedding"`

	// ObjectStore is only needed to load s3:// locations.
	ObjectStore *loader.ObjectConfig `yaml:"object_store"`

	Logger  logger.Config  `yaml:"logger"`
	Metrics metrics.Config `yaml:"metrics"`
	Tracer  tracer.Config  `yaml:"tracer"`
}

// DefaultConfig returns the defaults every config file is merged onto.
// Embedding credentials come from the environment unless the file sets them.
func DefaultConfig() *Config {
	return &Config{
		Backend:    BackendPgvector,
		Pgvector:   pgvector.DefaultConfig(),
		MongoVCore: mongovcore.DefaultConfig(),
		Embedding:  *embedding.NewConfig(),
		Logger: logger.Config{
			Level:       logger.Info,
			ServiceName: "vectorctl",
		},
		Metrics: metrics.Config{ServiceName: "vectorctl"},
		Tracer:  tracer.Config{ServiceName: "vectorctl"},
	}
}

// LoadConfig reads path on top of DefaultConfig. A missing file is only an
// error when required is set.
func LoadConfig(path string, required bool) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the backend selection and the section it points at.
// The embedding section is validated when an embedder is built, since
// get, delete and drop run without one.
func (c *Config) Validate() error {
	if err := validator.New().Var(c.Backend, "required,oneof=pgvector mongovcore"); err != nil {
		return fmt.Errorf("backend must be %q or %q, got %q", BackendPgvector, BackendMongoVCore, c.Backend)
	}

	switch c.Backend {
	case BackendPgvector:
		return c.Pgvector.Validate()
	default:
		return c.MongoVCore.Validate()
	}
}

// EmbeddingLength is the configured vector dimension of the selected backend.
func (c *Config) EmbeddingLength() int {
	if c.Backend == BackendMongoVCore {
		return c.MongoVCore.EmbeddingLength
	}
	return c.Pgvector.EmbeddingLength
}
