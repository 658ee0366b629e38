package trace

import (
	"context"
	"errors"
	"sync"
)

// ErrExporterClosed is returned by Export after Close.
var ErrExporterClosed = errors.New("trace: exporter closed")

// MemoryExporter keeps records in memory. It is useful for tests and for
// callers that want to inspect recent operations without a trace file.
type MemoryExporter struct {
	mu      sync.Mutex
	records []TraceRecord
	closed  bool
}

// NewMemoryExporter creates an empty in-memory exporter.
func NewMemoryExporter() *MemoryExporter {
	return &MemoryExporter{}
}

// Export appends a copy of record.
func (m *MemoryExporter) Export(ctx context.Context, record *TraceRecord) error {
	if record == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrExporterClosed
	}
	rec := *record
	rec.Spans = append([]SpanRecord(nil), record.Spans...)
	m.records = append(m.records, rec)
	return nil
}

// Records returns the exported records in export order.
func (m *MemoryExporter) Records() []TraceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TraceRecord(nil), m.records...)
}

// Close marks the exporter closed; it is idempotent.
func (m *MemoryExporter) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
