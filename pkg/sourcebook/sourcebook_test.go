package sourcebook

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-solli/sourcebook/pkg/catalog"
	"github.com/dan-solli/sourcebook/pkg/content"
	"github.com/dan-solli/sourcebook/pkg/document"
	"github.com/dan-solli/sourcebook/pkg/key"
	"github.com/dan-solli/sourcebook/pkg/metrics"
	"github.com/dan-solli/sourcebook/pkg/migrate"
	"github.com/dan-solli/sourcebook/pkg/trace"
)

var (
	core1 = key.MustParseSourceKey("core@1.0.0")
	core2 = key.MustParseSourceKey("core@2.0.0")
)

func coreSource() *content.Source {
	return &content.Source{
		Metadata: content.Metadata{ID: "core", Version: core1.Version(), Name: "Core"},
		Data: content.Collections{
			Origins: []content.Entity{{ID: "dwarf", Name: "Dwarf"}},
			Paths:   []content.Entity{{ID: "warrior", Name: "Warrior"}},
			Skills:  []content.Entity{{ID: "climb", Name: "Climb"}, {ID: "swim", Name: "Swim"}},
		},
	}
}

func core2Source() *content.Source {
	return &content.Source{
		Metadata: content.Metadata{ID: "core", Version: core2.Version(), Name: "Core 2"},
		Data: content.Collections{
			Origins: []content.Entity{{ID: "dwarf", Name: "Dwarf"}},
			Paths:   []content.Entity{{ID: "knight", Name: "Knight"}},
			Skills:  []content.Entity{{ID: "climb", Name: "Climb"}},
		},
	}
}

func newCharacter() *content.Character {
	return &content.Character{
		Name:         "Brakka",
		Dependencies: content.Dependencies{Primary: core1},
		Data: content.CharacterData{
			Character: content.Sheet{OriginRef: "core@1.0.0:dwarf", PathRef: "core@1.0.0:warrior"},
			Skills:    []content.SkillEntry{{Ref: "core@1.0.0:climb", Rank: 1}, {Ref: "core@1.0.0:swim", Rank: 2}},
		},
	}
}

func TestCharacterLifecycle(t *testing.T) {
	sb := newMemorySourcebook(t, Config{})
	ctx := context.Background()

	saved, err := sb.SaveCharacter(ctx, newCharacter())
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())
	assert.Equal(t, saved.CreatedAt, saved.UpdatedAt)

	got, err := sb.GetCharacter(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Data, got.Data)

	list, err := sb.ListCharacters(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)
	assert.Equal(t, "Brakka", list[0].Name)
	assert.Equal(t, core1, list[0].Primary)
	assert.True(t, saved.UpdatedAt.Equal(list[0].UpdatedAt))

	using, err := sb.CharactersUsing(ctx, "core")
	require.NoError(t, err)
	assert.Len(t, using, 1)
	using, err = sb.CharactersUsing(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, using)

	deleted, err := sb.DeleteCharacter(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = sb.GetCharacter(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrCharacterNotFound)
}

func TestSaveCharacter_KeepsIDAndCreatedAt(t *testing.T) {
	sb := newMemorySourcebook(t, Config{})
	ctx := context.Background()

	first, err := sb.SaveCharacter(ctx, newCharacter())
	require.NoError(t, err)

	first.Name = "Brakka the Bold"
	second, err := sb.SaveCharacter(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
}

func TestSaveCharacter_Invalid(t *testing.T) {
	sb := newMemorySourcebook(t, Config{})
	ch := newCharacter()
	ch.Data.Character.PathRef = ""
	_, err := sb.SaveCharacter(context.Background(), ch)
	assert.ErrorIs(t, err, document.ErrInvalidDocument)
}

func TestMigrateCharacter(t *testing.T) {
	exporter := trace.NewMemoryExporter()
	collector := metrics.NewCollector()
	sb := newMemorySourcebook(t, Config{TraceExporter: exporter, Metrics: collector})
	ctx := context.Background()

	_, err := sb.Publish(ctx, coreSource())
	require.NoError(t, err)
	_, err = sb.Publish(ctx, core2Source())
	require.NoError(t, err)
	saved, err := sb.SaveCharacter(ctx, newCharacter())
	require.NoError(t, err)

	migrated, report, err := sb.MigrateCharacter(ctx, saved.ID, core1, core2)
	require.NoError(t, err)

	assert.Equal(t, core2, migrated.Dependencies.Primary)
	assert.Equal(t, "core@2.0.0:dwarf", migrated.Data.Character.OriginRef)
	assert.Equal(t, "core@1.0.0:warrior", migrated.Data.Character.PathRef)
	assert.Equal(t, []content.SkillEntry{{Ref: "core@2.0.0:climb", Rank: 1}}, migrated.Data.Skills)
	assert.Equal(t, 1, report.Count(migrate.Stale))

	stored, err := sb.GetCharacter(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, migrated.Data, stored.Data)

	// the stale path reference still passes validation on the next save
	_, err = sb.SaveCharacter(ctx, stored)
	assert.NoError(t, err)

	records := exporter.Records()
	require.NotEmpty(t, records)
	last := records[len(records)-1]
	assert.Equal(t, "migrate", last.Operation)
	assert.Equal(t, "success", last.Status)
	assert.Equal(t, saved.ID, last.IDs["character"])
	var names []string
	for _, s := range last.Spans {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"fetch", "rewrite", "persist"}, names)
	assert.Equal(t, int64(1), last.Spans[1].Counters["dropped"])

	assert.Equal(t, 1.0, counterValue(t, collector, "sourcebook_operations_total",
		map[string]string{"operation": "migrate", "status": "success"}))
	assert.Equal(t, 1.0, counterValue(t, collector, "sourcebook_migrated_references_total",
		map[string]string{"field": "skills", "outcome": "dropped"}))
}

func TestMigrateCharacter_SecondaryMatchingNewPrimary(t *testing.T) {
	sb := newMemorySourcebook(t, Config{})
	ctx := context.Background()
	for _, src := range []*content.Source{coreSource(), core2Source()} {
		_, err := sb.Publish(ctx, src)
		require.NoError(t, err)
	}
	ch := newCharacter()
	ch.Dependencies.Secondary = []key.SourceKey{core2}
	saved, err := sb.SaveCharacter(ctx, ch)
	require.NoError(t, err)

	migrated, report, err := sb.MigrateCharacter(ctx, saved.ID, core1, core2)
	require.NoError(t, err)
	assert.Equal(t, core2, migrated.Dependencies.Primary)
	assert.Empty(t, migrated.Dependencies.Secondary)
	assert.True(t, report.SecondaryChanged)

	stored, err := sb.GetCharacter(ctx, saved.ID)
	require.NoError(t, err)
	_, err = sb.SaveCharacter(ctx, stored)
	assert.NoError(t, err, "a migrated character must stay saveable")
}

func TestMigrateCharacter_Errors(t *testing.T) {
	sb := newMemorySourcebook(t, Config{})
	ctx := context.Background()
	_, err := sb.Publish(ctx, coreSource())
	require.NoError(t, err)
	saved, err := sb.SaveCharacter(ctx, newCharacter())
	require.NoError(t, err)

	_, _, err = sb.MigrateCharacter(ctx, "nobody", core1, core2)
	assert.ErrorIs(t, err, ErrCharacterNotFound)

	_, _, err = sb.MigrateCharacter(ctx, saved.ID, core1, core2)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, _, err = sb.MigrateCharacter(ctx, saved.ID, key.MustParseSourceKey("core@0.9.0"), core1)
	assert.ErrorIs(t, err, migrate.ErrInvalidKeyPair)

	stored, err := sb.GetCharacter(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, core1, stored.Dependencies.Primary, "failed migrations leave the stored character alone")
}

func TestCheckUpdates(t *testing.T) {
	sb := newMemorySourcebook(t, Config{})
	ctx := context.Background()
	_, err := sb.Publish(ctx, coreSource())
	require.NoError(t, err)
	saved, err := sb.SaveCharacter(ctx, newCharacter())
	require.NoError(t, err)

	updates, err := sb.CheckUpdates(ctx, saved.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.False(t, updates[0].HasUpdate)

	// publish through a second facade sharing the store; the first sees it
	// after refreshing metadata
	other, err := NewWithStore(Config{}, sb.kv)
	require.NoError(t, err)
	_, err = other.Publish(ctx, core2Source())
	require.NoError(t, err)

	updates, err = sb.CheckUpdates(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, updates[0].HasUpdate)
	assert.Equal(t, core2, updates[0].Latest)
}

func TestGroupsAndLoadDependencies(t *testing.T) {
	sb := newMemorySourcebook(t, Config{})
	ctx := context.Background()
	for _, src := range []*content.Source{coreSource(), core2Source()} {
		_, err := sb.Publish(ctx, src)
		require.NoError(t, err)
	}
	require.NoError(t, sb.Catalog().Close())

	groups, err := sb.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups.Core, 1)
	assert.Equal(t, []key.SourceKey{core2, core1}, groups.Core[0].Versions)

	fetched, err := sb.LoadDependencies(ctx, newCharacter())
	require.NoError(t, err)
	assert.Equal(t, []key.SourceKey{core1}, fetched)

	e := sb.Resolve("core@1.0.0:swim", content.Skills, nil)
	require.NotNil(t, e)
	assert.Equal(t, "core@1.0.0:swim", e.ID)
}

func TestPublishDocumentAndImport(t *testing.T) {
	exporter := trace.NewMemoryExporter()
	sb := newMemorySourcebook(t, Config{TraceExporter: exporter})
	ctx := context.Background()

	sk, err := sb.PublishDocument(ctx, strings.NewReader(`
id: core
version: 1.0.0
name: Core
data:
  origins: [{id: dwarf, name: Dwarf}]
  paths: [{id: warrior, name: Warrior}]
`), document.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, core1, sk)

	ch, err := sb.ImportCharacter(ctx, strings.NewReader(`{
		"name": "Imported",
		"dependencies": {"primary": "core@1.0.0"},
		"data": {"character": {"originRef": "core@1.0.0:dwarf", "pathRef": "core@1.0.0:warrior"}, "backpack": {}, "custom": {}}
	}`), document.FormatJSON)
	require.NoError(t, err)
	assert.NotEmpty(t, ch.ID)

	unresolved, err := sb.UnresolvedReferences(ctx, ch.ID)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	_, err = sb.PublishDocument(ctx, strings.NewReader(`{"id": "bad id"}`), document.FormatJSON)
	assert.ErrorIs(t, err, document.ErrInvalidDocument)

	records := exporter.Records()
	require.GreaterOrEqual(t, len(records), 2)
	first := records[0]
	assert.Equal(t, "publish", first.Operation)
	assert.Equal(t, "core@1.0.0", first.IDs["source"])
	failed := records[len(records)-1]
	assert.Equal(t, "error", failed.Status)
	assert.Equal(t, ErrTypeValidation, failed.ErrorType)
}

func TestNew_OpensConfiguredStore(t *testing.T) {
	sb, err := New(context.Background(), Config{StorageDriver: "sqlite", DBPath: ":memory:"})
	require.NoError(t, err)
	_, err = sb.Publish(context.Background(), coreSource())
	assert.NoError(t, err)
	assert.NoError(t, sb.Close())

	_, err = New(context.Background(), Config{StorageDriver: "tape"})
	assert.Error(t, err)
}

func counterValue(t *testing.T, c *metrics.MetricsCollector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
				}
			}
			if match {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
