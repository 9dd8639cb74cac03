package pgvector

import (
	"time"

	"github.com/Aleph-Alpha/vectorstores/v1/observability"
)

const componentName = "pgvector"

// observeOperation notifies the observer about an operation if one is configured.
//
// Notes:
//   - resource: the qualified table name
//   - subResource: the index name for index operations
func (b *Backend) observeOperation(operation, subResource string, start time.Time, err error, size int64, metadata map[string]interface{}) {
	if b == nil || b.observer == nil {
		return
	}

	b.observer.ObserveOperation(observability.OperationContext{
		Component:   componentName,
		Operation:   operation,
		Resource:    b.cfg.Schema + "." + b.cfg.Table,
		SubResource: subResource,
		Duration:    time.Since(start),
		Error:       err,
		Size:        size,
		Metadata:    metadata,
	})
}
