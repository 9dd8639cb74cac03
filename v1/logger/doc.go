// Package logger provides the structured zap logger shared by the vector store
// adapters, the embedding client and the vectorctl CLI.
//
// # Architecture
//
//   - Logger interface: the contract adapters depend on
//   - LoggerClient struct: zap-backed implementation
//   - NewLoggerClient constructor: returns *LoggerClient
//   - FXModule: provides *LoggerClient and the Logger interface
//
// # Direct Usage
//
//	log := logger.NewLoggerClient(logger.Config{
//		Level:         logger.Info,
//		ServiceName:   "vectorctl",
//		EnableTracing: true,
//	})
//
//	log.Info("Index created", nil, map[string]interface{}{
//		"table": "langchain_vectors",
//		"kind":  "hnsw",
//	})
//
//	// Adds trace_id and span_id when the context carries an active span.
//	log.InfoWithContext(ctx, "Search finished", nil, map[string]interface{}{
//		"results": 4,
//	})
//
// # FX Module Integration
//
//	app := fx.New(
//		logger.FXModule,
//		fx.Provide(func() logger.Config {
//			return logger.Config{Level: logger.Info, ServiceName: "search-api"}
//		}),
//	)
//
// # Configuration
//
//	ZAP_LOGGER_LEVEL=debug          # debug, info, warning, error
//	LOGGER_ENABLE_TRACING=true      # include trace_id/span_id
//
// All methods are safe for concurrent use.
package logger
