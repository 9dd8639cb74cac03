package metrics

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/vectorstores/v1/logger"
	"github.com/Aleph-Alpha/vectorstores/v1/observability"
)

// FXModule provides *Metrics, MetricsCollector and observability.Observer,
// and runs the /metrics server for the lifetime of the application.
//
// Dependencies required by this module:
// - A metrics.Config instance
// - A logger.Logger instance
var FXModule = fx.Module("metrics",
	fx.Provide(
		NewMetrics,
		ProvideCollector,
		ProvideObserver,
	),
	fx.Invoke(RegisterMetricsLifecycle),
)

// ProvideCollector exposes *Metrics as MetricsCollector.
func ProvideCollector(m *Metrics) MetricsCollector {
	return m
}

// ProvideObserver exposes *Metrics as the observer injected into the adapters.
func ProvideObserver(m *Metrics) observability.Observer {
	return m
}

// RegisterMetricsLifecycle starts the metrics server on OnStart and shuts it
// down gracefully on OnStop.
func RegisterMetricsLifecycle(lc fx.Lifecycle, m *Metrics, log logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("Starting Prometheus metrics server", nil, map[string]interface{}{
					"address": m.Server.Addr,
				})

				if err := m.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Error starting Prometheus metrics server", err, nil)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down Prometheus metrics server", nil, nil)
			return m.Server.Shutdown(ctx)
		},
	})
}
