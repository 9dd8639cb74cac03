package embedding

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/fx"
)

// FXModule wires the embedding client into Fx.
//
// It provides:
//   - *Config               (NewConfig, from the environment)
//   - *Client               (NewClient)
//   - embeddings.Embedder   (ProvideEmbedder)
var FXModule = fx.Module(
	"embedding",

	fx.Provide(
		NewConfig,
		NewClient,
		ProvideEmbedder,
	),

	fx.Invoke(RegisterEmbeddingLifecycle),
)

// ProvideEmbedder exposes *Client as the langchaingo Embedder interface.
func ProvideEmbedder(c *Client) embeddings.Embedder {
	return c
}

// RegisterEmbeddingLifecycle closes the client on shutdown.
func RegisterEmbeddingLifecycle(lc fx.Lifecycle, client *Client) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
}
