package tracer

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	traceSpan "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Aleph-Alpha/vectorstores"

// StartSpan starts a span named name as a child of any span in ctx, with
// fields attached as attributes.
//
// A nil Tracer uses the global otel provider, so stores and CLIs that never
// configured tracing still produce valid (no-op) spans.
//
// Example:
//
//	ctx, span := t.StartSpan(ctx, "vectorstore.Search", map[string]interface{}{"k": 4})
//	defer span.End()
func (t *Tracer) StartSpan(ctx context.Context, name string, fields map[string]interface{}) (context.Context, traceSpan.Span) {
	var opts []traceSpan.SpanStartOption
	if len(fields) > 0 {
		opts = append(opts, traceSpan.WithAttributes(ToAttributes(fields)...))
	}
	return t.provider().Tracer(instrumentationName).Start(ctx, name, opts...)
}

func (t *Tracer) provider() traceSpan.TracerProvider {
	if t == nil || t.tracer == nil {
		return otel.GetTracerProvider()
	}
	return t.tracer
}

// RecordErrorOnSpan marks span as failed with err and returns err, so that
// callers can write `return t.RecordErrorOnSpan(span, err)`.
func (t *Tracer) RecordErrorOnSpan(span traceSpan.Span, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// SetAttributes adds fields to span.
func (t *Tracer) SetAttributes(span traceSpan.Span, fields map[string]interface{}) {
	if len(fields) == 0 {
		return
	}
	span.SetAttributes(ToAttributes(fields)...)
}

// ToAttributes converts log style fields into otel attributes, sorted by key.
// Strings, ints, int64s, float64s and bools keep their type; anything else
// is formatted with fmt.Sprint.
func ToAttributes(fields map[string]interface{}) []attribute.KeyValue {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(fields))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			attrs = append(attrs, attribute.String(k, v))
		case int:
			attrs = append(attrs, attribute.Int(k, v))
		case int64:
			attrs = append(attrs, attribute.Int64(k, v))
		case float64:
			attrs = append(attrs, attribute.Float64(k, v))
		case bool:
			attrs = append(attrs, attribute.Bool(k, v))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(v)))
		}
	}
	return attrs
}
