package mongovcore

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/vectorstores/v1/logger"
	"github.com/Aleph-Alpha/vectorstores/v1/observability"
	"github.com/Aleph-Alpha/vectorstores/v1/tracer"
	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// FXModule provides the mongovcore Client, Backend and Store, and registers
// the connection monitor on the application lifecycle.
//
// The module expects a Config in the container. Logger, Observer, Embedder
// and Tracer are optional.
var FXModule = fx.Module("mongovcore",
	fx.Provide(
		NewClientWithDI,
		NewBackendWithDI,
		NewStoreWithDI,
		ProvideVectorStore,
	),
	fx.Invoke(RegisterClientLifecycle),
)

type ClientParams struct {
	fx.In

	Config Config
	Logger logger.Logger `optional:"true"`
}

func NewClientWithDI(params ClientParams) (*Client, error) {
	return NewClient(params.Config, params.Logger)
}

type BackendParams struct {
	fx.In

	Client   *Client
	Config   Config
	Observer observability.Observer `optional:"true"`
	Logger   logger.Logger          `optional:"true"`
}

func NewBackendWithDI(params BackendParams) (*Backend, error) {
	backend, err := NewBackend(params.Client, params.Config)
	if err != nil {
		return nil, err
	}
	return backend.WithObserver(params.Observer).WithLogger(params.Logger), nil
}

type StoreParams struct {
	fx.In

	Backend  *Backend
	Config   Config
	Embedder embeddings.Embedder `optional:"true"`
	Logger   logger.Logger       `optional:"true"`
	Tracer   *tracer.Tracer      `optional:"true"`
}

func NewStoreWithDI(params StoreParams) *vectorstore.Store {
	store := vectorstore.NewStore(params.Backend, params.Embedder, params.Config.storeConfig())
	if params.Logger != nil {
		store.WithLogger(params.Logger)
	}
	return store.WithTracer(params.Tracer)
}

// ProvideVectorStore exposes the Store through the VectorStore interface.
func ProvideVectorStore(s *vectorstore.Store) vectorstore.VectorStore {
	return s
}

type ClientLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Client    *Client
}

// RegisterClientLifecycle starts MonitorConnection and RetryConnection on
// start and disconnects on stop, waiting for both loops to exit.
func RegisterClientLifecycle(params ClientLifecycleParams) {
	wg := &sync.WaitGroup{}
	ctx, cancel := context.WithCancel(context.Background())

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			wg.Add(2)
			go func() {
				defer wg.Done()
				params.Client.MonitorConnection(ctx)
			}()
			go func() {
				defer wg.Done()
				params.Client.RetryConnection(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			err := params.Client.GracefulShutdown()
			wg.Wait()
			return err
		},
	})
}
