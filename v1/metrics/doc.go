// Package metrics provides Prometheus metrics for the vector store adapters.
//
// # Architecture
//
//   - MetricsCollector interface: the contract for metric operations
//   - Metrics struct: concrete implementation, also an observability.Observer
//   - NewMetrics constructor: returns *Metrics
//   - FXModule: provides *Metrics, MetricsCollector and observability.Observer
//
// Adapters report each finished operation through observability.Observer.
// *Metrics turns those reports into:
//
//	vectorstore_operations_total{component,operation,status}
//	vectorstore_operation_duration_seconds{component,operation}
//	vectorstore_documents_total{component,operation}
//
// # Direct Usage
//
//	m := metrics.NewMetrics(metrics.Config{
//		Address:                 ":9090",
//		EnableDefaultCollectors: true,
//		ServiceName:             "vectorctl",
//	})
//	go m.Server.ListenAndServe()
//
//	store, _ := pgvector.NewStore(client, cfg, embedder)
//	store.WithObserver(m)
//
// Each Metrics instance owns an isolated registry; every metric carries a
// constant service label.
package metrics
