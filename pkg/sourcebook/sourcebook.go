// Package sourcebook wires storage, the content catalog, resolution,
// migration and update checks into one host-owned object.
package sourcebook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dan-solli/sourcebook/pkg/catalog"
	"github.com/dan-solli/sourcebook/pkg/content"
	"github.com/dan-solli/sourcebook/pkg/document"
	"github.com/dan-solli/sourcebook/pkg/key"
	"github.com/dan-solli/sourcebook/pkg/metrics"
	"github.com/dan-solli/sourcebook/pkg/resolve"
	"github.com/dan-solli/sourcebook/pkg/store"
	"github.com/dan-solli/sourcebook/pkg/trace"
	"github.com/dan-solli/sourcebook/pkg/version"
)

// Sourcebook is the main entry point. Create one with New and release it
// with Close.
type Sourcebook struct {
	config   Config
	kv       store.KV
	ownsKV   bool
	catalog  *catalog.Catalog
	resolver *resolve.Resolver

	logger           *slog.Logger
	metricsCollector metrics.Collector
	traceExporter    trace.Exporter
}

// New opens the configured storage backend and builds a Sourcebook on it.
func New(ctx context.Context, cfg Config) (*Sourcebook, error) {
	if cfg.StorageDriver == "" {
		cfg.StorageDriver = string(store.DriverSQLite)
	}
	if cfg.StorageDriver == string(store.DriverSQLite) && cfg.DBPath == "" {
		cfg.DBPath = "sourcebook.db"
	}

	kv, err := store.Open(ctx, cfg.storeOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.StorageDriver, err)
	}
	sb, err := NewWithStore(cfg, kv)
	if err != nil {
		kv.Close()
		return nil, err
	}
	sb.ownsKV = true
	return sb, nil
}

// NewWithStore builds a Sourcebook on a KV the caller owns. Close does not
// close kv.
func NewWithStore(cfg Config, kv store.KV) (*Sourcebook, error) {
	if kv == nil {
		return nil, errors.New("sourcebook: nil store")
	}

	exporter := cfg.TraceExporter
	if exporter == nil && cfg.TraceEnabled {
		var err error
		exporter, err = trace.NewFileExporter(cfg.TracePath)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
	}

	sb := &Sourcebook{
		config:           cfg,
		kv:               kv,
		metricsCollector: cfg.Metrics,
		traceExporter:    exporter,
	}
	sb.build(cfg.Logger)
	return sb, nil
}

// build (re)creates the components that hold a logger.
func (s *Sourcebook) build(logger *slog.Logger) {
	s.logger = logger
	componentLogger := logger
	if componentLogger == nil {
		componentLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.catalog == nil {
		s.catalog = catalog.New(s.kv,
			catalog.WithLogger(componentLogger),
			catalog.WithMetrics(s.metricsCollector))
	} else {
		s.catalog.SetLogger(componentLogger)
	}
	s.resolver = resolve.New(s.catalog,
		resolve.WithLogger(componentLogger),
		resolve.WithMetrics(s.metricsCollector))
}

// WithLogger sets the logger and returns s for chaining. The first call
// logs the effective configuration. Not safe to call concurrently with
// other methods.
func (s *Sourcebook) WithLogger(logger *slog.Logger) *Sourcebook {
	first := s.logger == nil
	s.build(logger)
	if first && logger != nil {
		logger.Info("sourcebook configured",
			slog.String("storage_driver", s.config.StorageDriver),
			slog.Bool("trace_enabled", s.traceExporter != nil),
			slog.Bool("metrics_enabled", s.metricsCollector != nil))
	}
	return s
}

// Catalog exposes the content store.
func (s *Sourcebook) Catalog() *catalog.Catalog { return s.catalog }

// Resolver exposes the reference resolver bound to the catalog.
func (s *Sourcebook) Resolver() *resolve.Resolver { return s.resolver }

// Close drops the cache, closes the trace exporter and, when New opened it,
// the storage backend.
func (s *Sourcebook) Close() error {
	var errs []error
	if err := s.catalog.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.traceExporter != nil {
		if err := s.traceExporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trace exporter: %w", err))
		}
	}
	if s.ownsKV {
		if err := s.kv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Publish validates and stores a new source snapshot.
func (s *Sourcebook) Publish(ctx context.Context, src *content.Source) (sk key.SourceKey, err error) {
	op := s.begin("publish")
	defer func() { s.end(ctx, op, err) }()
	return s.publish(ctx, op, src)
}

// PublishDocument decodes a source document and publishes it.
func (s *Sourcebook) PublishDocument(ctx context.Context, r io.Reader, f document.Format) (sk key.SourceKey, err error) {
	op := s.begin("publish")
	defer func() { s.end(ctx, op, err) }()

	span := newSpanTimer("decode", op.trace)
	src, err := document.DecodeSource(r, f)
	span.finish(err, nil)
	if err != nil {
		return key.SourceKey{}, err
	}
	return s.publish(ctx, op, src)
}

func (s *Sourcebook) publish(ctx context.Context, op *operation, src *content.Source) (key.SourceKey, error) {
	span := newSpanTimer("persist", op.trace)
	sk, err := s.catalog.Publish(ctx, src)
	var counters map[string]int64
	if src != nil {
		counters = map[string]int64{"entities": int64(src.Data.Len())}
	}
	span.finish(err, counters)
	if err != nil {
		return key.SourceKey{}, err
	}
	op.ids["source"] = sk.String()
	return sk, nil
}

// LoadSource loads one snapshot into the cache.
func (s *Sourcebook) LoadSource(ctx context.Context, id, version string) (*content.Source, error) {
	return s.catalog.LoadSource(ctx, id, version)
}

// LoadMany loads every uncached key as one batch.
func (s *Sourcebook) LoadMany(ctx context.Context, keys []key.SourceKey) (fetched []key.SourceKey, err error) {
	op := s.begin("load_many")
	defer func() { s.end(ctx, op, err) }()

	span := newSpanTimer("fetch", op.trace)
	fetched, err = s.catalog.LoadMany(ctx, keys)
	span.finish(err, map[string]int64{"requested": int64(len(keys)), "fetched": int64(len(fetched))})
	return fetched, err
}

// LoadDependencies loads every snapshot ch depends on.
func (s *Sourcebook) LoadDependencies(ctx context.Context, ch *content.Character) ([]key.SourceKey, error) {
	return s.LoadMany(ctx, ch.Dependencies.All())
}

// Resolve returns the entity pointer names, or nil. See resolve.Resolver.
func (s *Sourcebook) Resolve(pointer string, cat content.Category, local *content.Collections) *content.Entity {
	return s.resolver.Resolve(pointer, cat, local)
}

// Groups refreshes known metadata from storage and groups it by identity.
func (s *Sourcebook) Groups(ctx context.Context) (catalog.Groups, error) {
	if err := s.catalog.RefreshMetadata(ctx); err != nil {
		return catalog.Groups{}, err
	}
	return s.catalog.GroupByIdentity(), nil
}

// CheckUpdates reports newer versions for every dependency of a stored
// character.
func (s *Sourcebook) CheckUpdates(ctx context.Context, characterID string) (updates []version.DependencyUpdate, err error) {
	op := s.begin("check_updates")
	op.ids["character"] = characterID
	defer func() { s.end(ctx, op, err) }()

	span := newSpanTimer("fetch", op.trace)
	ch, err := s.GetCharacter(ctx, characterID)
	if err == nil {
		err = s.catalog.RefreshMetadata(ctx)
	}
	span.finish(err, nil)
	if err != nil {
		return nil, err
	}
	return version.CheckCharacter(ch, s.catalog.GroupByIdentity()), nil
}

// operation tracks one traced facade call.
type operation struct {
	name  string
	id    string
	start time.Time
	trace *OperationTrace
	ids   map[string]string
}

func (s *Sourcebook) begin(name string) *operation {
	return &operation{
		name:  name,
		id:    uuid.NewString(),
		start: time.Now(),
		trace: newTrace(),
		ids:   make(map[string]string),
	}
}

// end records metrics, exports the trace and logs the outcome of op.
func (s *Sourcebook) end(ctx context.Context, op *operation, err error) {
	duration := time.Since(op.start).Milliseconds()
	status := "success"
	errType := ""
	if err != nil {
		status = "error"
		errType = ClassifyError(err)
	}

	if s.metricsCollector != nil {
		s.metricsCollector.RecordOperation(ctx, op.name, status, duration)
		for _, span := range op.trace.Spans {
			s.metricsCollector.RecordStage(ctx, op.name, span.Name, span.DurationMs)
		}
		if err != nil {
			s.metricsCollector.RecordError(ctx, op.name, errType)
		}
	}

	if s.traceExporter != nil {
		record := &trace.TraceRecord{
			Timestamp:   op.start,
			OperationID: op.id,
			Operation:   op.name,
			DurationMs:  duration,
			Status:      status,
			ErrorType:   errType,
			IDs:         op.ids,
			Spans:       make([]trace.SpanRecord, len(op.trace.Spans)),
		}
		for i, span := range op.trace.Spans {
			record.Spans[i] = trace.SpanRecord{
				Name:       span.Name,
				DurationMs: span.DurationMs,
				OK:         span.OK,
				ErrorType:  span.ErrorType,
				Counters:   span.Counters,
			}
		}
		if exportErr := s.traceExporter.Export(ctx, record); exportErr != nil && s.logger != nil {
			s.logger.Warn("trace export failed", slog.String("error", exportErr.Error()))
		}
	}

	if s.logger == nil {
		return
	}
	attrs := []any{
		slog.String("operation", op.name),
		slog.String("operation_id", op.id),
		slog.Int64("duration_ms", duration),
	}
	if err != nil {
		s.logger.Error(op.name+" failed", append(attrs,
			slog.String("error_type", errType),
			slog.String("error", err.Error()))...)
		return
	}
	s.logger.Info(op.name+" complete", attrs...)
}
