package metrics

import "context"

// Collector is the interface for metrics collection.
// Implementations include the Prometheus-backed MetricsCollector and the
// no-op collector used when metrics are disabled.
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, durationMs int64)
	RecordStage(ctx context.Context, operation string, stage string, durationMs int64)
	RecordError(ctx context.Context, operation string, errorType string)
	// RecordCacheLookup counts snapshot cache lookups; outcome is "hit" or "miss".
	RecordCacheLookup(ctx context.Context, outcome string)
	// RecordResolution counts reference resolutions by category and outcome.
	RecordResolution(ctx context.Context, category string, outcome string)
	// RecordMigration counts migrated references by field and outcome
	// ("rewritten", "dropped", "stale", "untouched").
	RecordMigration(ctx context.Context, field string, outcome string, count int)
	SetCachedSources(ctx context.Context, count int64)
}
