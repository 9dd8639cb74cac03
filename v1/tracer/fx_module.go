package tracer

import (
	"context"

	"go.uber.org/fx"
)

// FXModule provides *Tracer and flushes it on shutdown.
//
// Dependencies required by this module:
// - A tracer.Config instance
// - A logger.Logger instance
var FXModule = fx.Module("tracer",
	fx.Provide(
		NewClient,
	),
	fx.Invoke(RegisterTracerLifecycle),
)

// RegisterTracerLifecycle registers an OnStop hook that shuts the provider
// down, flushing pending spans to the exporter.
func RegisterTracerLifecycle(lc fx.Lifecycle, tracer *Tracer) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			tracer.logger.Info("Shutting down tracer", nil, nil)
			return tracer.Shutdown(ctx)
		},
	})
}
