package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aleph-Alpha/vectorstores/v1/observability"
)

// ObserveOperation records an adapter operation report.
func (m *Metrics) ObserveOperation(ctx observability.OperationContext) {
	m.operationsTotal.WithLabelValues(ctx.Component, ctx.Operation, ctx.Status()).Inc()
	m.operationDuration.WithLabelValues(ctx.Component, ctx.Operation).Observe(ctx.Duration.Seconds())
	if ctx.Size > 0 {
		m.documentsTotal.WithLabelValues(ctx.Component, ctx.Operation).Add(float64(ctx.Size))
	}
}

// RecordOperation counts one operation and observes the time since start.
// Example: defer m.RecordOperation("pgvector", "similarity_search", time.Now(), err)
func (m *Metrics) RecordOperation(component, operation string, start time.Time, err error) {
	m.ObserveOperation(observability.OperationContext{
		Component: component,
		Operation: operation,
		Duration:  time.Since(start),
		Error:     err,
	})
}

// AddDocuments adds n to the documents counter.
func (m *Metrics) AddDocuments(component, operation string, n int) {
	if n <= 0 {
		return
	}
	m.documentsTotal.WithLabelValues(component, operation).Add(float64(n))
}

// CreateCounter creates a new CounterVec metric and registers it.
func (m *Metrics) CreateCounter(name, help string, labels []string) *prometheus.CounterVec {
	counter := createCounterVec(name, help, labels)
	m.registerer.MustRegister(counter)
	return counter
}

// CreateHistogram creates a new HistogramVec metric and registers it.
func (m *Metrics) CreateHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	hist := createHistogramVec(name, help, labels, buckets)
	m.registerer.MustRegister(hist)
	return hist
}

// CreateGauge creates a new GaugeVec metric and registers it.
func (m *Metrics) CreateGauge(name, help string, labels []string) *prometheus.GaugeVec {
	gauge := createGaugeVec(name, help, labels)
	m.registerer.MustRegister(gauge)
	return gauge
}

func createCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
}

func createHistogramVec(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name,
			Help:    help,
			Buckets: buckets,
		},
		labels,
	)
}

func createGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		labels,
	)
}
