// Package resolve turns pointers held by characters into concrete entities.
//
// Qualified pointers (SourceKey:Id) resolve against loaded snapshots; bare
// Ids resolve against the character's own custom entities. Resolution never
// loads anything and never mutates its inputs.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dan-solli/sourcebook/pkg/content"
	"github.com/dan-solli/sourcebook/pkg/key"
	"github.com/dan-solli/sourcebook/pkg/metrics"
)

var (
	// ErrUnresolvedReference wraps every resolution failure.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrSourceNotLoaded means the pointer names a snapshot that is not cached.
	ErrSourceNotLoaded = errors.New("source not loaded")
	// ErrEntityNotFound means the snapshot or local collection is present but
	// holds no entity with the Id.
	ErrEntityNotFound = errors.New("entity not found")
)

// Snapshots exposes loaded snapshots. *catalog.Catalog satisfies it.
type Snapshots interface {
	Snapshot(sk key.SourceKey) (*content.Source, bool)
}

// Resolver resolves pointers against a Snapshots view.
type Resolver struct {
	snaps   Snapshots
	logger  *slog.Logger
	metrics metrics.Collector
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for soft failures. nil keeps it silent.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records resolution outcomes.
func WithMetrics(m metrics.Collector) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New creates a Resolver over snaps.
func New(snaps Snapshots, opts ...Option) *Resolver {
	r := &Resolver{
		snaps:  snaps,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the entity pointer names in category, or nil when it
// cannot be resolved. Failures are logged at warn level.
func (r *Resolver) Resolve(pointer string, cat content.Category, local *content.Collections) *content.Entity {
	e, err := r.Lookup(pointer, cat, local)
	if err != nil {
		r.logger.Warn("unresolved reference",
			slog.String("reference", pointer),
			slog.String("category", cat.String()),
			slog.String("error", err.Error()))
		return nil
	}
	return e
}

// Lookup is Resolve with the failure reason. Every error matches
// ErrUnresolvedReference and one of ErrSourceNotLoaded, ErrEntityNotFound or
// a key codec error.
//
// Entities from snapshots carry their qualified Reference as Id. The
// returned entity is a copy.
func (r *Resolver) Lookup(pointer string, cat content.Category, local *content.Collections) (*content.Entity, error) {
	e, outcome, err := r.lookup(pointer, cat, local)
	if r.metrics != nil {
		r.metrics.RecordResolution(context.Background(), cat.String(), outcome)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnresolvedReference, pointer, err)
	}
	return e, nil
}

func (r *Resolver) lookup(pointer string, cat content.Category, local *content.Collections) (*content.Entity, string, error) {
	if !cat.Valid() {
		return nil, "invalid", fmt.Errorf("unknown category %d", int(cat))
	}

	if key.IsLocal(pointer) {
		if local == nil {
			return nil, "not_found", ErrEntityNotFound
		}
		e, ok := local.Find(cat, pointer)
		if !ok {
			return nil, "not_found", fmt.Errorf("%w: local %s %s", ErrEntityNotFound, cat, pointer)
		}
		out := e.Clone()
		return &out, "resolved", nil
	}

	ref, err := key.ParseReference(pointer)
	if err != nil {
		return nil, "invalid", err
	}
	src, ok := r.snaps.Snapshot(ref.Source())
	if !ok {
		return nil, "not_loaded", fmt.Errorf("%w: %s", ErrSourceNotLoaded, ref.Source())
	}
	e, ok := src.Data.Find(cat, ref.ID())
	if !ok {
		return nil, "not_found", fmt.Errorf("%w: %s in %s", ErrEntityNotFound, ref.ID(), cat)
	}
	out := e.Clone()
	out.ID = ref.String()
	return &out, "resolved", nil
}

// Failure is one embedded pointer of a character that did not resolve.
type Failure struct {
	Path      string
	Reference string
	Category  content.Category
	Err       error
}

// Unresolved checks every pointer embedded in ch and returns those that fail
// to resolve, in document order.
func (r *Resolver) Unresolved(ch *content.Character) []Failure {
	var out []Failure
	for _, ref := range ch.Refs() {
		if _, err := r.Lookup(ref.Value, ref.Category, &ch.Data.Custom); err != nil {
			out = append(out, Failure{Path: ref.Path, Reference: ref.Value, Category: ref.Category, Err: err})
		}
	}
	return out
}
