package embedding

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

const (
	defaultBatchSize   = 1024
	defaultConcurrency = 4
	defaultTimeoutS    = 30
	defaultAPIVersion  = "2024-05-01-preview"
)

// AZURE_INFERENCE_ENDPOINT points at the model deployment root; the provider
// appends /embeddings itself.

// Config configures the inference client.
type Config struct {
	Endpoint   string `yaml:"endpoint" validate:"required,url"`
	Credential string `yaml:"credential" validate:"required"`

	// Model is optional for single-model deployments.
	Model string `yaml:"model"`

	// Dimensions requests shortened embeddings from models that support it.
	Dimensions int `yaml:"dimensions" validate:"gte=0"`

	// BatchSize is the maximum number of texts per request.
	BatchSize int `yaml:"batch_size" validate:"gte=1,lte=2048"`

	// Concurrency bounds in-flight requests of one EmbedDocuments call.
	Concurrency int `yaml:"concurrency" validate:"gte=1,lte=64"`

	APIVersion   string `yaml:"api_version"`
	HTTPTimeoutS int    `yaml:"http_timeout_seconds" validate:"gte=1"`
}

// NewConfig reads the configuration from environment variables.
func NewConfig() *Config {
	return &Config{
		Endpoint:     os.Getenv("AZURE_INFERENCE_ENDPOINT"),
		Credential:   os.Getenv("AZURE_INFERENCE_CREDENTIAL"),
		Model:        os.Getenv("EMBEDDING_MODEL"),
		Dimensions:   envInt("EMBEDDING_DIMENSIONS", 0),
		BatchSize:    envInt("EMBEDDING_BATCH_SIZE", defaultBatchSize),
		Concurrency:  envInt("EMBEDDING_CONCURRENCY", defaultConcurrency),
		APIVersion:   envString("EMBEDDING_API_VERSION", defaultAPIVersion),
		HTTPTimeoutS: envInt("EMBEDDING_HTTP_TIMEOUT_SECONDS", defaultTimeoutS),
	}
}

// Validate ensures required fields are present and in range.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Concurrency == 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.HTTPTimeoutS == 0 {
		c.HTTPTimeoutS = defaultTimeoutS
	}
	if c.APIVersion == "" {
		c.APIVersion = defaultAPIVersion
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
