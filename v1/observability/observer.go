// Package observability defines the hook that storage adapters use to report
// completed operations to metrics, tracing or audit backends.
//
// Adapters never import a concrete metrics implementation. They call
// Observer.ObserveOperation once per finished operation and the observer
// decides what to record.
package observability

import "time"

// OperationContext describes a single finished operation.
type OperationContext struct {
	// Component is the adapter that executed the operation, e.g. "pgvector" or "mongovcore".
	Component string

	// Operation is the logical operation name, e.g. "add_documents" or "similarity_search".
	Operation string

	// Resource is the primary target, usually a table or collection.
	Resource string

	// SubResource is an optional secondary target such as an index name.
	SubResource string

	Duration time.Duration

	// Error is nil on success.
	Error error

	// Size is the number of documents touched or returned.
	Size int64

	Metadata map[string]interface{}
}

// Observer receives OperationContext values. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveOperation(ctx OperationContext)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(ctx OperationContext)

// ObserveOperation calls f(ctx).
func (f ObserverFunc) ObserveOperation(ctx OperationContext) {
	f(ctx)
}

// Status returns "success" or "error" depending on ctx.Error.
func (ctx OperationContext) Status() string {
	if ctx.Error != nil {
		return "error"
	}
	return "success"
}
