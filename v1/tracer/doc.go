// Package tracer configures OpenTelemetry tracing for services built on the
// vector store adapters.
//
// NewClient installs a global TracerProvider and W3C propagators. The
// adapters create their spans through otel.Tracer, so once a Tracer is
// constructed every add, search and index call shows up in traces without
// further wiring.
//
//	t, err := tracer.NewClient(tracer.Config{
//		ServiceName:  "search-api",
//		AppEnv:       "production",
//		EnableExport: true,
//	}, log)
//
//	ctx, span := t.StartSpan(ctx, "answer-question")
//	defer span.End()
//
// The exporter honours the standard OTEL_EXPORTER_OTLP_* environment
// variables; Config.Endpoint overrides the endpoint when set.
package tracer
