package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/Aleph-Alpha/vectorstores/v1/embedding"
	"github.com/Aleph-Alpha/vectorstores/v1/logger"
	"github.com/Aleph-Alpha/vectorstores/v1/metrics"
	"github.com/Aleph-Alpha/vectorstores/v1/mongovcore"
	"github.com/Aleph-Alpha/vectorstores/v1/observability"
	"github.com/Aleph-Alpha/vectorstores/v1/pgvector"
	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// session bundles what a command needs and releases it in Close.
type session struct {
	store    *vectorstore.Store
	embedder *embedding.Client
	metrics  *metrics.Metrics
	log      logger.Logger
}

// openSession connects to the configured backend. withEmbedder builds the
// inference client; commands that never embed text skip it.
func openSession(ctx context.Context, c *Config, log logger.Logger, withEmbedder bool) (*session, error) {
	s := &session{
		metrics: metrics.NewMetrics(c.Metrics),
		log:     log,
	}
	if c.Metrics.Address != "" {
		go func() {
			if err := s.metrics.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server stopped", err, nil)
			}
		}()
	}

	var emb embeddings.Embedder
	if withEmbedder {
		client, err := embedding.NewClient(&c.Embedding)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.embedder = client
		emb = client
	}

	store, err := openStore(ctx, c, log, s.metrics, emb)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.store = store
	return s, nil
}

func openStore(ctx context.Context, c *Config, log logger.Logger, observer observability.Observer, emb embeddings.Embedder) (*vectorstore.Store, error) {
	var (
		backend  vectorstore.Backend
		storeCfg vectorstore.Config
	)

	switch c.Backend {
	case BackendPgvector:
		client, err := pgvector.NewClient(c.Pgvector, log)
		if err != nil {
			return nil, err
		}
		b, err := pgvector.NewBackend(ctx, client, c.Pgvector)
		if err != nil {
			_ = client.GracefulShutdown()
			return nil, err
		}
		backend = b.WithObserver(observer).WithLogger(log)
		storeCfg = vectorstore.Config{BatchSize: c.Pgvector.BatchSize, SearchParams: c.Pgvector.SearchParams}

	case BackendMongoVCore:
		client, err := mongovcore.NewClient(c.MongoVCore, log)
		if err != nil {
			return nil, err
		}
		b, err := mongovcore.NewBackend(client, c.MongoVCore)
		if err != nil {
			_ = client.GracefulShutdown()
			return nil, err
		}
		backend = b.WithObserver(observer).WithLogger(log)
		storeCfg = vectorstore.Config{BatchSize: c.MongoVCore.BatchSize, SearchParams: c.MongoVCore.SearchParams}

	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}

	return vectorstore.NewStore(backend, emb, storeCfg).WithLogger(log).WithTracer(appTracer), nil
}

// Close releases the store, the embedder and the metrics server.
func (s *session) Close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warn("Failed to close store", err, nil)
		}
	}
	if s.embedder != nil {
		_ = s.embedder.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.metrics.Server.Shutdown(ctx)
}
