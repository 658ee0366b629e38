// Package migrate moves a character from one snapshot of a source to
// another by rewriting every pointer it holds into the old snapshot.
//
// Migrate is a pure transform. It never reads storage or the catalog cache;
// the caller loads the new snapshot and decides whether to persist the result.
package migrate

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
	// ErrInvalidKeyPair is the only error Migrate returns for data it is given.
	ErrInvalidKeyPair = errors.New("invalid migration key pair")
	// ErrNilCharacter is returned when there is nothing to migrate.
	ErrNilCharacter = errors.New("nil character")
)

// Outcome of migrating one reference.
type Outcome string

const (
	Rewritten Outcome = "rewritten"
	Dropped   Outcome = "dropped"
	Stale     Outcome = "stale"
)

// Change records what happened to one reference.
type Change struct {
	Field   string  `json:"field"`
	Path    string  `json:"path"`
	From    string  `json:"from"`
	To      string  `json:"to,omitempty"`
	Outcome Outcome `json:"outcome"`
}

// Report summarizes a migration.
type Report struct {
	From             key.SourceKey `json:"from"`
	To               key.SourceKey `json:"to"`
	PrimaryChanged   bool          `json:"primaryChanged"`
	SecondaryChanged bool          `json:"secondaryChanged"`
	Changes          []Change      `json:"changes,omitempty"`
	// Unparseable lists paths whose value was neither a Reference nor a bare
	// Id. Those values are left as they were.
	Unparseable []string `json:"unparseable,omitempty"`
}

// Count returns how many references ended with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, c := range r.Changes {
		if c.Outcome == o {
			n++
		}
	}
	return n
}

// Option configures a single Migrate call.
type Option func(*migration)

// WithLogger logs per-reference decisions. nil keeps migration silent.
func WithLogger(l *slog.Logger) Option {
	return func(m *migration) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records migrated reference counts by field and outcome.
func WithMetrics(c metrics.Collector) Option {
	return func(m *migration) { m.metrics = c }
}

type migration struct {
	oldKey, newKey key.SourceKey
	index          map[content.Category]map[string]struct{}
	report         *Report
	logger         *slog.Logger
	metrics        metrics.Collector
}

// ValidatePair checks that oldKey -> newKey is a migration newSnap can serve.
func ValidatePair(oldKey, newKey key.SourceKey, newSnap *content.Source) error {
	switch {
	case oldKey.IsZero() || newKey.IsZero():
		return fmt.Errorf("%w: empty source key", ErrInvalidKeyPair)
	case oldKey == newKey:
		return fmt.Errorf("%w: %s to itself", ErrInvalidKeyPair, oldKey)
	case !oldKey.SameIdentity(newKey):
		return fmt.Errorf("%w: %s and %s are different sources", ErrInvalidKeyPair, oldKey, newKey)
	case newSnap == nil:
		return fmt.Errorf("%w: no snapshot for %s", ErrInvalidKeyPair, newKey)
	}
	snapKey, err := newSnap.Key()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKeyPair, err)
	}
	if snapKey != newKey {
		return fmt.Errorf("%w: snapshot is %s, want %s", ErrInvalidKeyPair, snapKey, newKey)
	}
	return nil
}

// Migrate returns a copy of ch with every reference into oldKey moved to
// newKey. References whose entity is missing from newSnap follow the policy
// of their field. References into other snapshots and local references are
// left untouched. ch itself is never modified.
func Migrate(ch *content.Character, oldKey, newKey key.SourceKey, newSnap *content.Source, opts ...Option) (*content.Character, *Report, error) {
	if err := ValidatePair(oldKey, newKey, newSnap); err != nil {
		return nil, nil, err
	}
	if ch == nil {
		return nil, nil, ErrNilCharacter
	}

	m := &migration{
		oldKey: oldKey,
		newKey: newKey,
		index:  newSnap.Data.Index(),
		report: &Report{From: oldKey, To: newKey},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}

	out := ch.Clone()
	m.dependencies(&out.Dependencies)

	d := &out.Data
	d.Character.OriginRef = m.single(FieldOrigin, "data.character.originRef", d.Character.OriginRef)
	d.Character.PathRef = m.single(FieldPath, "data.character.pathRef", d.Character.PathRef)
	d.Edges = migrateEntries(m, FieldEdges, "data.edges", d.Edges, heldRef)
	d.Skills = migrateEntries(m, FieldSkills, "data.skills", d.Skills, skillRef)
	d.Aspects = migrateEntries(m, FieldAspects, "data.aspects", d.Aspects, heldRef)
	d.Conditions = migrateEntries(m, FieldConditions, "data.conditions", d.Conditions, heldRef)
	for _, sec := range d.Backpack.Sections() {
		*sec.Entries = m.backpack("backpack."+sec.Name, "data.backpack."+sec.Name, *sec.Entries)
	}

	m.logger.Info("character migrated",
		slog.String("character", ch.ID),
		slog.String("source_key", newKey.String()),
		slog.Int("rewritten", m.report.Count(Rewritten)),
		slog.Int("dropped", m.report.Count(Dropped)),
		slog.Int("stale", m.report.Count(Stale)))
	m.recordMetrics()
	return out, m.report, nil
}

func (m *migration) dependencies(deps *content.Dependencies) {
	if deps.Primary == m.oldKey {
		deps.Primary = m.newKey
		m.report.PrimaryChanged = true
	}

	// a secondary equal to the repointed primary collapses into it
	seen := make(map[key.SourceKey]bool, 1+len(deps.Secondary))
	seen[deps.Primary] = true
	secondary := deps.Secondary[:0]
	for _, sk := range deps.Secondary {
		if sk == m.oldKey {
			sk = m.newKey
			m.report.SecondaryChanged = true
		}
		if seen[sk] {
			m.report.SecondaryChanged = true
			continue
		}
		seen[sk] = true
		secondary = append(secondary, sk)
	}
	if len(secondary) == 0 {
		secondary = nil
	}
	deps.Secondary = secondary
}

// single migrates a required single-value field. The returned value is
// never empty when value was not.
func (m *migration) single(field, path, value string) string {
	next, keep := m.ref(lookupField(field), path, value)
	if !keep {
		// a drop policy on a single-value field still may not clear it
		return value
	}
	return next
}

// migrateEntries rewrites the reference of every entry and removes entries
// the field policy drops. It filters in place on the already cloned slice.
func migrateEntries[T any](m *migration, field, base string, entries []T, ref func(*T) *string) []T {
	f := lookupField(field)
	kept := entries[:0]
	for i := range entries {
		e := entries[i]
		p := ref(&e)
		next, keep := m.ref(f, fmt.Sprintf("%s[%d].ref", base, i), *p)
		if !keep {
			continue
		}
		*p = next
		kept = append(kept, e)
	}
	if len(entries) == 0 {
		return entries
	}
	return kept
}

func (m *migration) backpack(field, base string, entries []content.BackpackEntry) []content.BackpackEntry {
	tagField := lookupField(FieldBackpackTags)
	out := migrateEntries(m, field, base, entries, func(e *content.BackpackEntry) *string { return &e.Ref })
	// Tag paths index into the migrated entry list.
	for i := range out {
		tags := out[i].Tags
		kept := tags[:0]
		for j, tag := range tags {
			next, keep := m.ref(tagField, fmt.Sprintf("%s[%d].tags[%d]", base, i, j), tag)
			if keep {
				kept = append(kept, next)
			}
		}
		if len(tags) > 0 {
			out[i].Tags = kept
		}
	}
	return out
}

func heldRef(h *content.Held) *string        { return &h.Ref }
func skillRef(s *content.SkillEntry) *string { return &s.Ref }

// ref decides the fate of one reference. keep is false only when the field
// policy drops the containing entry.
func (m *migration) ref(f Field, path, value string) (next string, keep bool) {
	if value == "" || key.IsLocal(value) {
		return value, true
	}
	r, err := key.ParseReference(value)
	if err != nil {
		m.report.Unparseable = append(m.report.Unparseable, path)
		m.logger.Warn("unparseable reference left untouched",
			slog.String("field", f.Name),
			slog.String("reference", value),
			slog.String("error", err.Error()))
		return value, true
	}
	if r.Source() != m.oldKey {
		return value, true
	}

	if _, ok := m.index[f.Category][r.ID()]; ok {
		next = r.WithSource(m.newKey).String()
		m.report.Changes = append(m.report.Changes, Change{Field: f.Name, Path: path, From: value, To: next, Outcome: Rewritten})
		m.logger.Debug("reference rewritten",
			slog.String("field", f.Name),
			slog.String("reference", value))
		return next, true
	}

	switch f.Policy {
	case KeepStaleOnOrphan:
		m.report.Changes = append(m.report.Changes, Change{Field: f.Name, Path: path, From: value, Outcome: Stale})
		m.logger.Warn("orphaned reference kept stale",
			slog.String("field", f.Name),
			slog.String("reference", value),
			slog.String("category", f.Category.String()))
		return value, true
	case DropOnOrphan:
		m.report.Changes = append(m.report.Changes, Change{Field: f.Name, Path: path, From: value, Outcome: Dropped})
		m.logger.Warn("orphaned reference dropped",
			slog.String("field", f.Name),
			slog.String("reference", value),
			slog.String("category", f.Category.String()))
		return "", false
	}
	panic(fmt.Sprintf("migrate: field %s has no orphan policy", f.Name))
}

func (m *migration) recordMetrics() {
	if m.metrics == nil {
		return
	}
	counts := make(map[[2]string]int)
	for _, c := range m.report.Changes {
		counts[[2]string{c.Field, string(c.Outcome)}]++
	}
	ctx := context.Background()
	for k, n := range counts {
		m.metrics.RecordMigration(ctx, k[0], k[1], n)
	}
}
