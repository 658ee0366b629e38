package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector provides Prometheus metrics collection for sourcebook operations
type MetricsCollector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	resolutions       *prometheus.CounterVec
	migratedRefs      *prometheus.CounterVec
	cachedSources     prometheus.Gauge
	registry          *prometheus.Registry
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcebook_operations_total",
			Help: "Total number of sourcebook operations by type and status",
		},
		[]string{"operation", "status"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sourcebook_operation_duration_seconds",
			Help:    "Duration of sourcebook operations by type and stage",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"operation", "stage"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcebook_errors_total",
			Help: "Total number of errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)

	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcebook_cache_lookups_total",
			Help: "Snapshot cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	resolutions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcebook_resolutions_total",
			Help: "Reference resolutions by category and outcome",
		},
		[]string{"category", "outcome"},
	)

	migratedRefs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcebook_migrated_references_total",
			Help: "References visited during character migration by field and outcome",
		},
		[]string{"field", "outcome"},
	)

	cachedSources := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sourcebook_cached_sources",
			Help: "Number of source snapshots held in the catalog cache",
		},
	)

	registry.MustRegister(operationsTotal, operationDuration, errorsTotal,
		cacheLookups, resolutions, migratedRefs, cachedSources)

	return &MetricsCollector{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		errorsTotal:       errorsTotal,
		cacheLookups:      cacheLookups,
		resolutions:       resolutions,
		migratedRefs:      migratedRefs,
		cachedSources:     cachedSources,
		registry:          registry,
	}
}

// RecordOperation records the completion of an operation
func (m *MetricsCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordStage records the duration of a specific stage within an operation
func (m *MetricsCollector) RecordStage(ctx context.Context, operation string, stage string, durationMs int64) {
	m.operationDuration.WithLabelValues(operation, stage).Observe(float64(durationMs) / 1000.0)
}

// RecordError records an error occurrence
func (m *MetricsCollector) RecordError(ctx context.Context, operation string, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

func (m *MetricsCollector) RecordCacheLookup(ctx context.Context, outcome string) {
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

func (m *MetricsCollector) RecordResolution(ctx context.Context, category string, outcome string) {
	m.resolutions.WithLabelValues(category, outcome).Inc()
}

func (m *MetricsCollector) RecordMigration(ctx context.Context, field string, outcome string, count int) {
	if count <= 0 {
		return
	}
	m.migratedRefs.WithLabelValues(field, outcome).Add(float64(count))
}

// SetCachedSources sets the current number of cached snapshots
func (m *MetricsCollector) SetCachedSources(ctx context.Context, count int64) {
	m.cachedSources.Set(float64(count))
}

// Registry returns the Prometheus registry for HTTP exposure
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}
