//go:build tracing

package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileExporter appends records to a JSON Lines file and rotates it by size.
// Rotated files are named <path>.1 (newest) through <path>.N (oldest).
type FileExporter struct {
	path string
	opts fileOptions

	mu     sync.Mutex
	file   *os.File
	size   int64
	closed bool
}

// NewFileExporter opens (or creates) the trace file at filePath.
// An empty path yields a no-op exporter.
func NewFileExporter(filePath string, opts ...FileExporterOption) (Exporter, error) {
	if filePath == "" {
		return &NoopExporter{}, nil
	}
	o := defaultFileOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	fe := &FileExporter{path: filePath, opts: o}
	if err := fe.open(); err != nil {
		return nil, err
	}
	return fe, nil
}

// open must be called with the lock held or before the exporter is shared.
func (fe *FileExporter) open() error {
	f, err := os.OpenFile(fe.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat trace file: %w", err)
	}
	fe.file = f
	fe.size = info.Size()
	return nil
}

// Export writes one JSON line and rotates once the size threshold is crossed.
func (fe *FileExporter) Export(ctx context.Context, record *TraceRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode trace record: %w", err)
	}
	line = append(line, '\n')

	fe.mu.Lock()
	defer fe.mu.Unlock()
	if fe.closed {
		return ErrExporterClosed
	}

	n, err := fe.file.Write(line)
	fe.size += int64(n)
	if err != nil {
		return fmt.Errorf("write trace record: %w", err)
	}
	if fe.size >= fe.opts.maxSizeBytes {
		if err := fe.rotate(); err != nil {
			return fmt.Errorf("rotate trace file: %w", err)
		}
	}
	return nil
}

// rotate must be called with the lock held.
func (fe *FileExporter) rotate() error {
	if err := fe.file.Close(); err != nil {
		return err
	}
	// Dropping the oldest is best effort; it may not exist yet.
	_ = os.Remove(fe.rotatedName(fe.opts.maxRotated))
	for i := fe.opts.maxRotated - 1; i >= 1; i-- {
		from := fe.rotatedName(i)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		if err := os.Rename(from, fe.rotatedName(i+1)); err != nil {
			return err
		}
	}
	if err := os.Rename(fe.path, fe.rotatedName(1)); err != nil {
		return err
	}
	return fe.open()
}

func (fe *FileExporter) rotatedName(n int) string {
	return fmt.Sprintf("%s.%d", fe.path, n)
}

// Close syncs and closes the trace file. Calling Close twice is safe.
func (fe *FileExporter) Close() error {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	if fe.closed {
		return nil
	}
	fe.closed = true
	if err := fe.file.Sync(); err != nil {
		fe.file.Close()
		return fmt.Errorf("sync trace file: %w", err)
	}
	return fe.file.Close()
}
