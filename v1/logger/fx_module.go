package logger

import (
	"context"

	"go.uber.org/fx"
)

// FXModule provides *LoggerClient and the Logger interface, and flushes the
// logger when the application stops.
//
// Dependencies required by this module:
// - A logger.Config instance must be available in the dependency injection container
var FXModule = fx.Module("logger",
	fx.Provide(
		NewLoggerClient,
		ProvideLogger,
	),
	fx.Invoke(RegisterLoggerLifecycle),
)

// ProvideLogger exposes *LoggerClient as the Logger interface.
func ProvideLogger(l *LoggerClient) Logger {
	return l
}

// RegisterLoggerLifecycle registers an OnStop hook that syncs the zap logger
// so buffered entries are not lost on shutdown.
func RegisterLoggerLifecycle(lc fx.Lifecycle, client *LoggerClient) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// stderr sync returns EINVAL on some platforms; nothing useful to do with it.
			_ = client.Zap.Sync()
			return nil
		},
	})
}
