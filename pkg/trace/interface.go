// Package trace exports per-operation timing records for sourcebook.
//
// Records carry identifiers (source keys, character ids) and counters only.
// Entity content and character sheets are never written to a trace.
package trace

import (
	"context"
	"time"
)

// Exporter defines the interface for exporting operation traces.
// Implementations must be safe for concurrent use.
type Exporter interface {
	// Export writes a trace record to the configured destination.
	Export(ctx context.Context, record *TraceRecord) error

	// Close flushes any buffered records and releases resources.
	Close() error
}

// TraceRecord is a finished operation ready for export.
type TraceRecord struct {
	// Timestamp is the operation start time
	Timestamp time.Time `json:"timestamp"`

	// OperationID uniquely identifies this operation (for correlation)
	OperationID string `json:"operationId"`

	// Operation is one of: publish, load_many, migrate, check_updates
	Operation string `json:"operation"`

	DurationMs int64 `json:"durationMs"`

	// Status is "success" or "error"
	Status string `json:"status"`

	Spans []SpanRecord `json:"spans"`

	// ErrorType classifies the error when Status is "error".
	// Values: validation, not_found, not_loaded, conflict, batch_load, database, timeout, unknown
	ErrorType string `json:"errorType,omitempty"`

	// IDs holds operation identifiers such as source keys and character ids.
	IDs map[string]string `json:"ids,omitempty"`
}

// SpanRecord represents a single stage within an operation.
type SpanRecord struct {
	// Name is the stage name (fetch, decode, merge, rewrite, persist)
	Name string `json:"name"`

	DurationMs int64 `json:"durationMs"`

	OK bool `json:"ok"`

	ErrorType string `json:"errorType,omitempty"`

	// Counters provides stage-specific counts (e.g. fetched, dropped)
	Counters map[string]int64 `json:"counters,omitempty"`
}

// FileExporterOption configures a FileExporter.
// Available in both tracing and non-tracing builds.
type FileExporterOption func(*fileOptions)

type fileOptions struct {
	maxSizeBytes int64
	maxRotated   int
}

func defaultFileOptions() fileOptions {
	return fileOptions{maxSizeBytes: 10 * 1024 * 1024, maxRotated: 5}
}

// WithMaxSize sets the file size that triggers rotation (default: 10MB).
func WithMaxSize(bytes int64) FileExporterOption {
	return func(o *fileOptions) {
		if bytes > 0 {
			o.maxSizeBytes = bytes
		}
	}
}

// WithMaxRotatedFiles sets how many rotated files to keep (default: 5).
func WithMaxRotatedFiles(count int) FileExporterOption {
	return func(o *fileOptions) {
		if count > 0 {
			o.maxRotated = count
		}
	}
}

// NoopExporter discards every record.
type NoopExporter struct{}

func (n *NoopExporter) Export(ctx context.Context, record *TraceRecord) error {
	return nil
}

func (n *NoopExporter) Close() error {
	return nil
}
