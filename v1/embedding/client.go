package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"
)

// Client is the public entrypoint for computing embeddings. It implements
// langchaingo's embeddings.Embedder.
//
//go:generate mockgen -destination=mock_embedder.go -package=embedding github.com/tmc/langchaingo/embeddings Embedder
type Client struct {
	provider    Provider
	batchSize   int
	concurrency int
}

var _ embeddings.Embedder = (*Client)(nil)

// NewClient validates cfg and builds a Client backed by the inference provider.
func NewClient(cfg *Config) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("embedding: invalid config: %w", err)
	}

	p, err := newInferenceProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to create provider: %w", err)
	}

	return NewClientWithProvider(p, cfg.BatchSize, cfg.Concurrency), nil
}

// NewClientWithProvider builds a Client around any Provider.
func NewClientWithProvider(p Provider, batchSize, concurrency int) *Client {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Client{provider: p, batchSize: batchSize, concurrency: concurrency}
}

// EmbedDocuments embeds texts as documents, preserving input order.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for start := 0; start < len(texts); start += c.batchSize {
		start := start
		end := min(start+c.batchSize, len(texts))
		g.Go(func() error {
			vectors, err := c.provider.Create(gctx, InputDocument, texts[start:end]...)
			if err != nil {
				return fmt.Errorf("embedding: batch [%d:%d]: %w", start, end, err)
			}
			copy(out[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedQuery embeds a single search query.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.provider.Create(ctx, InputQuery, text)
	if err != nil {
		return nil, fmt.Errorf("embedding: query: %w", err)
	}
	return vectors[0], nil
}

// Close releases provider resources when the provider supports it.
func (c *Client) Close() error {
	if closer, ok := c.provider.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
