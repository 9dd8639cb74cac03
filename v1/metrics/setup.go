package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vectorstore"

// Metrics encapsulates the Prometheus registry and the HTTP server exposing it.
type Metrics struct {
	// Server defines the HTTP server used to expose the /metrics endpoint.
	Server *http.Server

	// Registry is the isolated registry for this service.
	Registry *prometheus.Registry

	// registerer wraps Registry with the constant service label.
	registerer prometheus.Registerer

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	documentsTotal    *prometheus.CounterVec
}

// NewMetrics sets up a dedicated registry, registers the vector store metrics
// and optional runtime collectors, and builds the /metrics HTTP server.
//
// Example:
//
//	m := metrics.NewMetrics(metrics.Config{Address: ":9090", ServiceName: "search-api"})
//	go m.Server.ListenAndServe()
func NewMetrics(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()

	// All metrics emitted by this service carry service="<cfg.ServiceName>".
	wrappedRegistry := prometheus.WrapRegistererWith(
		prometheus.Labels{"service": cfg.ServiceName},
		registry,
	)

	m := &Metrics{
		Registry:   registry,
		registerer: wrappedRegistry,
	}

	m.operationsTotal = createCounterVec(
		namespace+"_operations_total",
		"Total number of vector store operations",
		[]string{"component", "operation", "status"},
	)
	m.operationDuration = createHistogramVec(
		namespace+"_operation_duration_seconds",
		"Duration of vector store operations in seconds",
		[]string{"component", "operation"},
		prometheus.DefBuckets,
	)
	m.documentsTotal = createCounterVec(
		namespace+"_documents_total",
		"Number of documents written, returned or deleted",
		[]string{"component", "operation"},
	)

	wrappedRegistry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.documentsTotal,
	)

	if cfg.EnableDefaultCollectors {
		wrappedRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	m.Server = &http.Server{
		Addr:    cfg.Address,
		Handler: mux,
	}
	return m
}
