// Package catalog caches immutable source snapshots loaded from storage and
// serves qualified entity listings over them.
//
// A Catalog is created by the host with New and torn down with Close. Each
// cache slot is written once, by the first successful load of its key, and is
// read-only afterwards. Callers receive the cached *content.Source and must
// not modify it.
package catalog

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dan-solli/sourcebook/pkg/content"
	"github.com/dan-solli/sourcebook/pkg/document"
	"github.com/dan-solli/sourcebook/pkg/key"
	"github.com/dan-solli/sourcebook/pkg/metrics"
	"github.com/dan-solli/sourcebook/pkg/store"
)

// Storage collections owned by the catalog.
const (
	CollectionSources  = "sources"
	CollectionMetadata = "source_metadata"
)

// Catalog is the content store. It is safe for concurrent use.
type Catalog struct {
	kv      store.KV
	logger  *slog.Logger
	metrics metrics.Collector

	mu    sync.RWMutex
	cache map[key.SourceKey]*content.Source
	meta  map[key.SourceKey]content.Metadata
}

// New creates a catalog over kv. The host owns kv and closes it.
func New(kv store.KV, opts ...Option) *Catalog {
	c := &Catalog{
		kv:     kv,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		cache:  make(map[key.SourceKey]*content.Source),
		meta:   make(map[key.SourceKey]content.Metadata),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close drops every cached snapshot and all known metadata.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.cache)
	clear(c.meta)
	c.setCachedGauge(context.Background())
	return nil
}

// LoadSource returns the snapshot id@version, fetching it on a cache miss.
func (c *Catalog) LoadSource(ctx context.Context, id, version string) (*content.Source, error) {
	sk, err := key.NewSourceKey(id, version)
	if err != nil {
		return nil, err
	}
	return c.Load(ctx, sk)
}

// Load is LoadSource for an already parsed key.
func (c *Catalog) Load(ctx context.Context, sk key.SourceKey) (*content.Source, error) {
	if src, ok := c.Snapshot(sk); ok {
		c.recordLookup(ctx, "hit")
		c.logger.Debug("source cache hit", slog.String("source_key", sk.String()))
		return src, nil
	}
	c.recordLookup(ctx, "miss")

	src, err := c.fetch(ctx, sk)
	if err != nil {
		return nil, err
	}
	return c.insert(ctx, sk, src), nil
}

// LoadMany loads every uncached key concurrently. The cache is updated only
// when every fetch succeeds; otherwise a *BatchLoadError is returned and the
// cache is left as it was. It returns the keys that were actually fetched.
func (c *Catalog) LoadMany(ctx context.Context, keys []key.SourceKey) ([]key.SourceKey, error) {
	start := time.Now()
	missing := c.missing(ctx, keys)
	if len(missing) == 0 {
		return nil, nil
	}

	fetched := make([]*content.Source, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	for i, sk := range missing {
		g.Go(func() error {
			src, err := c.fetch(gctx, sk)
			if err != nil {
				return &BatchLoadError{Key: sk, Err: err}
			}
			fetched[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn("load many failed",
			slog.Int("count", len(missing)),
			slog.String("error", err.Error()))
		return nil, err
	}

	c.mu.Lock()
	for i, sk := range missing {
		c.insertLocked(sk, fetched[i])
	}
	c.setCachedGauge(ctx)
	c.mu.Unlock()

	c.logger.Info("load many complete",
		slog.Int("count", len(missing)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return missing, nil
}

// missing deduplicates keys and drops those already cached, preserving order.
func (c *Catalog) missing(ctx context.Context, keys []key.SourceKey) []key.SourceKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[key.SourceKey]bool, len(keys))
	var out []key.SourceKey
	for _, sk := range keys {
		if sk.IsZero() || seen[sk] {
			continue
		}
		seen[sk] = true
		if _, ok := c.cache[sk]; ok {
			c.recordLookup(ctx, "hit")
			continue
		}
		c.recordLookup(ctx, "miss")
		out = append(out, sk)
	}
	return out
}

// fetch reads and decodes one snapshot from storage without touching the cache.
func (c *Catalog) fetch(ctx context.Context, sk key.SourceKey) (*content.Source, error) {
	rec, err := c.kv.Get(ctx, CollectionSources, sk.String())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", sk, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sk)
	}

	var src content.Source
	if err := json.Unmarshal(rec.Value, &src); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptRecord, sk, err)
	}
	got, err := src.Key()
	if err != nil || got != sk {
		return nil, fmt.Errorf("%w: %s holds %s", ErrCorruptRecord, sk, got)
	}
	return &src, nil
}

func (c *Catalog) insert(ctx context.Context, sk key.SourceKey, src *content.Source) *content.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	src = c.insertLocked(sk, src)
	c.setCachedGauge(ctx)
	return src
}

// insertLocked keeps the first snapshot cached under sk.
func (c *Catalog) insertLocked(sk key.SourceKey, src *content.Source) *content.Source {
	if existing, ok := c.cache[sk]; ok {
		return existing
	}
	c.cache[sk] = src
	c.meta[sk] = src.Metadata
	return src
}

// Snapshot returns the cached snapshot for sk.
func (c *Catalog) Snapshot(sk key.SourceKey) (*content.Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src, ok := c.cache[sk]
	return src, ok
}

// Loaded lists the cached keys ordered by identity then version.
func (c *Catalog) Loaded() []key.SourceKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.cache)
}

// ListForKey returns one collection of a loaded snapshot with every Id
// rewritten to its qualified Reference.
func (c *Catalog) ListForKey(sk key.SourceKey, cat content.Category) ([]content.Entity, error) {
	if !cat.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, int(cat))
	}
	src, ok := c.Snapshot(sk)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, sk)
	}
	return src.Qualified(cat)
}

// ListByIdentity merges one collection across every loaded snapshot, in
// snapshot key order, with qualified Ids.
func (c *Catalog) ListByIdentity(cat content.Category) ([]content.Entity, error) {
	if !cat.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, int(cat))
	}
	c.mu.RLock()
	keys := sortedKeys(c.cache)
	sources := make([]*content.Source, len(keys))
	for i, sk := range keys {
		sources[i] = c.cache[sk]
	}
	c.mu.RUnlock()

	var out []content.Entity
	for _, src := range sources {
		entities, err := src.Qualified(cat)
		if err != nil {
			return nil, err
		}
		out = append(out, entities...)
	}
	return out, nil
}

// GroupByIdentity partitions every known identity into core and extra groups.
// Known identities come from loaded and published snapshots and from the last
// RefreshMetadata; full snapshots need not be loaded.
func (c *Catalog) GroupByIdentity() Groups {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return buildGroups(c.meta)
}

// RefreshMetadata replaces known metadata with what storage holds, keeping
// entries for cached snapshots.
func (c *Catalog) RefreshMetadata(ctx context.Context) error {
	recs, err := c.kv.All(ctx, CollectionMetadata)
	if err != nil {
		return fmt.Errorf("refresh metadata: %w", err)
	}
	fresh := make(map[key.SourceKey]content.Metadata, len(recs))
	for _, rec := range recs {
		m, sk, err := decodeMetadata(rec)
		if err != nil {
			c.logger.Warn("skipping unreadable metadata",
				slog.String("source_key", rec.Key),
				slog.String("error", err.Error()))
			continue
		}
		fresh[sk] = m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for sk, src := range c.cache {
		fresh[sk] = src.Metadata
	}
	c.meta = fresh
	return nil
}

// Versions lists every stored version of identity id, newest first.
func (c *Catalog) Versions(ctx context.Context, id string) ([]key.SourceKey, error) {
	if err := key.ValidateID(id); err != nil {
		return nil, err
	}
	recs, err := c.kv.ByIndex(ctx, CollectionMetadata, id)
	if err != nil {
		return nil, fmt.Errorf("versions of %s: %w", id, err)
	}
	out := make([]key.SourceKey, 0, len(recs))
	for _, rec := range recs {
		_, sk, err := decodeMetadata(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	slices.SortFunc(out, func(a, b key.SourceKey) int {
		return b.Version().Compare(a.Version())
	})
	return out, nil
}

// Publish validates src and stores it as a new snapshot. Snapshots are
// append-only: publishing an existing key fails with ErrAlreadyPublished.
// A copy of src is cached; the caller keeps ownership of src.
func (c *Catalog) Publish(ctx context.Context, src *content.Source) (key.SourceKey, error) {
	if err := document.ValidateSource(src); err != nil {
		return key.SourceKey{}, err
	}
	sk, err := src.Key()
	if err != nil {
		return key.SourceKey{}, err
	}
	src = &content.Source{Metadata: src.Metadata, Data: src.Data.Clone()}
	if src.Status == "" {
		src.Status = content.StatusPublished
	}

	existing, err := c.kv.Get(ctx, CollectionSources, sk.String())
	if err != nil {
		return key.SourceKey{}, fmt.Errorf("publish %s: %w", sk, err)
	}
	if existing != nil {
		return key.SourceKey{}, fmt.Errorf("%w: %s", ErrAlreadyPublished, sk)
	}

	body, err := json.Marshal(src)
	if err != nil {
		return key.SourceKey{}, fmt.Errorf("encode %s: %w", sk, err)
	}
	meta, err := json.Marshal(src.Metadata)
	if err != nil {
		return key.SourceKey{}, fmt.Errorf("encode metadata %s: %w", sk, err)
	}

	// The body is written first so metadata never names a missing snapshot.
	now := time.Now()
	if err := c.kv.Put(ctx, CollectionSources, &store.Record{Key: sk.String(), Index: sk.ID(), Value: body, UpdatedAt: now}); err != nil {
		return key.SourceKey{}, fmt.Errorf("store %s: %w", sk, err)
	}
	if err := c.kv.Put(ctx, CollectionMetadata, &store.Record{Key: sk.String(), Index: sk.ID(), Value: meta, UpdatedAt: now}); err != nil {
		return key.SourceKey{}, fmt.Errorf("store metadata %s: %w", sk, err)
	}

	c.insert(ctx, sk, src)
	c.logger.Info("source published",
		slog.String("source_key", sk.String()),
		slog.Int("count", src.Data.Len()))
	return sk, nil
}

func decodeMetadata(rec *store.Record) (content.Metadata, key.SourceKey, error) {
	var m content.Metadata
	if err := json.Unmarshal(rec.Value, &m); err != nil {
		return m, key.SourceKey{}, fmt.Errorf("%w: metadata %s: %w", ErrCorruptRecord, rec.Key, err)
	}
	sk, err := m.Key()
	if err != nil {
		return m, key.SourceKey{}, fmt.Errorf("%w: metadata %s: %w", ErrCorruptRecord, rec.Key, err)
	}
	return m, sk, nil
}

func sortedKeys(m map[key.SourceKey]*content.Source) []key.SourceKey {
	keys := make([]key.SourceKey, 0, len(m))
	for sk := range m {
		keys = append(keys, sk)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b key.SourceKey) int {
	return cmp.Or(strings.Compare(a.ID(), b.ID()), a.Version().Compare(b.Version()))
}

func (c *Catalog) recordLookup(ctx context.Context, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(ctx, outcome)
	}
}

// setCachedGauge must be called with the lock held.
func (c *Catalog) setCachedGauge(ctx context.Context) {
	if c.metrics != nil {
		c.metrics.SetCachedSources(ctx, int64(len(c.cache)))
	}
}
