package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Source is a location documents are read from.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, int64, error)
	String() string
}

// FileSource reads a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Open(context.Context) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (s FileSource) String() string { return s.Path }

// ObjectSource reads an object through an ObjectClient.
type ObjectSource struct {
	Client *ObjectClient
	Bucket string
	Key    string
}

func (s ObjectSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	if s.Client == nil {
		return nil, 0, fmt.Errorf("object source %s has no client", s)
	}
	return s.Client.Open(ctx, s.Bucket, s.Key)
}

func (s ObjectSource) String() string {
	return "s3://" + s.Bucket + "/" + s.Key
}

// ParseLocation turns "s3://bucket/key" into an ObjectSource and anything
// else into a FileSource. client may be nil for local paths.
func ParseLocation(location string, client *ObjectClient) (Source, error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		if location == "" {
			return nil, fmt.Errorf("empty location")
		}
		return FileSource{Path: location}, nil
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("object location %q must be s3://bucket/key", location)
	}
	if client == nil {
		return nil, fmt.Errorf("object location %q needs an object store configuration", location)
	}
	return ObjectSource{Client: client, Bucket: bucket, Key: key}, nil
}

// Load reads every document from src.
func Load(ctx context.Context, src Source) ([]Document, error) {
	rc, _, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer rc.Close()

	docs, err := ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", src, err)
	}
	return docs, nil
}
