package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Aleph-Alpha/vectorstores/v1/observability"
)

func initializeMinio(ctx context.Context, t *testing.T) (ObjectConfig, testcontainers.Container) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	return ObjectConfig{
		Endpoint:        fmt.Sprintf("%s:%s", host, port.Port()),
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		Bucket:          "corpus",
	}, container
}

func TestObjectClient(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg, containerInstance := initializeMinio(ctx, t)
	defer func() {
		if err := containerInstance.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	raw, err := minio.New(cfg.Endpoint, &minio.Options{Creds: credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")})
	require.NoError(t, err)

	_, err = NewObjectClient(ctx, cfg)
	assert.ErrorIs(t, err, ErrConnectionFailed, "bucket does not exist yet")

	require.NoError(t, raw.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}))
	for key, body := range map[string]string{
		"2024/docs.jsonl":  sample,
		"2024/more.ndjson": `{"text": "delta"}`,
		"2024/readme.txt":  "ignored",
	} {
		_, err := raw.PutObject(ctx, cfg.Bucket, key, bytes.NewReader([]byte(body)), int64(len(body)), minio.PutObjectOptions{})
		require.NoError(t, err)
	}

	var ops []observability.OperationContext
	client, err := NewObjectClient(ctx, cfg)
	require.NoError(t, err)
	client.WithObserver(observability.ObserverFunc(func(op observability.OperationContext) {
		ops = append(ops, op)
	}))

	keys, err := client.List(ctx, "", "2024/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2024/docs.jsonl", "2024/more.ndjson"}, keys)

	src, err := ParseLocation("s3://corpus/2024/docs.jsonl", client)
	require.NoError(t, err)
	docs, err := Load(ctx, src)
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	rc, size, err := client.Open(ctx, "", "2024/more.ndjson")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, int64(len(body)), size)

	_, _, err = client.Open(ctx, "", "missing.jsonl")
	assert.Error(t, err)

	require.NotEmpty(t, ops)
	assert.Equal(t, "loader", ops[0].Component)
	assert.Equal(t, "list", ops[0].Operation)
	assert.Equal(t, "corpus", ops[0].Resource)
}
