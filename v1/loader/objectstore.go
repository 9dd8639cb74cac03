package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Aleph-Alpha/vectorstores/v1/logger"
	"github.com/Aleph-Alpha/vectorstores/v1/observability"
)

// ErrConnectionFailed is returned when the object store cannot be reached.
var ErrConnectionFailed = errors.New("object store connection failed")

// ObjectConfig configures access to a MinIO or S3 compatible bucket.
type ObjectConfig struct {
	Endpoint        string `yaml:"endpoint" envconfig:"LOADER_S3_ENDPOINT" validate:"required"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"LOADER_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"LOADER_S3_SECRET_ACCESS_KEY"`
	UseSSL          bool   `yaml:"use_ssl" envconfig:"LOADER_S3_USE_SSL"`
	Region          string `yaml:"region" envconfig:"LOADER_S3_REGION"`

	// Bucket is used for keys given without a bucket.
	Bucket string `yaml:"bucket" envconfig:"LOADER_S3_BUCKET"`
}

// ObjectClient reads JSON-lines objects from a bucket.
//
// The underlying *minio.Client is kept in an atomic pointer so Reconnect can
// swap it while reads are in flight.
type ObjectClient struct {
	client   atomic.Pointer[minio.Client]
	cfg      ObjectConfig
	observer observability.Observer
	logger   logger.Logger
}

// NewObjectClient creates a client and checks that the configured bucket is
// reachable.
func NewObjectClient(ctx context.Context, cfg ObjectConfig) (*ObjectClient, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid object store config: %w", err)
	}

	c := &ObjectClient{cfg: cfg}
	if err := c.Reconnect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reconnect builds a fresh minio client and swaps it in once it validates.
func (c *ObjectClient) Reconnect(ctx context.Context) error {
	client, err := minio.New(c.cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.cfg.AccessKeyID, c.cfg.SecretAccessKey, ""),
		Secure: c.cfg.UseSSL,
		Region: c.cfg.Region,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if err := validateConnection(ctx, client, c.cfg.Bucket); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	c.client.Store(client)
	return nil
}

// validateConnection prefers a bucket-scoped check so credentials do not need
// ListAllMyBuckets.
func validateConnection(ctx context.Context, client *minio.Client, bucket string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if bucket != "" {
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("bucket %s does not exist", bucket)
		}
		return nil
	}
	_, err := client.ListBuckets(ctx)
	return err
}

func (c *ObjectClient) WithObserver(o observability.Observer) *ObjectClient {
	c.observer = o
	return c
}

func (c *ObjectClient) WithLogger(l logger.Logger) *ObjectClient {
	c.logger = l
	return c
}

// Open returns a reader over bucket/key and the object size. An empty bucket
// means the configured one.
func (c *ObjectClient) Open(ctx context.Context, bucket, key string) (rc io.ReadCloser, size int64, err error) {
	if bucket == "" {
		bucket = c.cfg.Bucket
	}
	start := time.Now()
	defer func() {
		c.observeOperation("get", bucket, key, time.Since(start), err, size)
	}()

	client := c.client.Load()
	if client == nil {
		return nil, 0, ErrConnectionFailed
	}

	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s/%s: %w", bucket, key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, fmt.Errorf("failed to stat %s/%s: %w", bucket, key, err)
	}
	c.logDebug(ctx, "Opened object", map[string]interface{}{"bucket": bucket, "key": key, "size": info.Size})
	return obj, info.Size, nil
}

// List returns the keys below prefix that end in .jsonl or .ndjson.
func (c *ObjectClient) List(ctx context.Context, bucket, prefix string) (keys []string, err error) {
	if bucket == "" {
		bucket = c.cfg.Bucket
	}
	start := time.Now()
	defer func() {
		c.observeOperation("list", bucket, prefix, time.Since(start), err, int64(len(keys)))
	}()

	client := c.client.Load()
	if client == nil {
		return nil, ErrConnectionFailed
	}

	for obj := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s/%s: %w", bucket, prefix, obj.Err)
		}
		if isJSONLines(obj.Key) {
			keys = append(keys, obj.Key)
		}
	}
	return keys, nil
}

func isJSONLines(key string) bool {
	return strings.HasSuffix(key, ".jsonl") || strings.HasSuffix(key, ".ndjson")
}

// observeOperation notifies the observer about an operation if one is configured.
//
// Notes:
//   - resource: bucket name
//   - subResource: object key or prefix
func (c *ObjectClient) observeOperation(operation, bucket, key string, duration time.Duration, err error, size int64) {
	if c == nil || c.observer == nil {
		return
	}
	c.observer.ObserveOperation(observability.OperationContext{
		Component:   "loader",
		Operation:   operation,
		Resource:    bucket,
		SubResource: key,
		Duration:    duration,
		Error:       err,
		Size:        size,
	})
}

func (c *ObjectClient) logDebug(ctx context.Context, msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.DebugWithContext(ctx, msg, nil, fields)
	}
}
