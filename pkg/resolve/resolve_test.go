package resolve

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-solli/sourcebook/pkg/content"
	"github.com/dan-solli/sourcebook/pkg/key"
)

type staticSnapshots map[key.SourceKey]*content.Source

func (s staticSnapshots) Snapshot(sk key.SourceKey) (*content.Source, bool) {
	src, ok := s[sk]
	return src, ok
}

type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func coreSnapshots() staticSnapshots {
	core := &content.Source{
		Metadata: content.Metadata{ID: "core", Version: key.Version{Major: 1}, Name: "Core"},
		Data: content.Collections{
			Skills: []content.Entity{{ID: "climb", Name: "Climb", Tags: []string{"physical"}}},
			Items:  []content.Entity{{ID: "rope", Name: "Rope"}},
		},
	}
	return staticSnapshots{key.MustParseSourceKey("core@1.0.0"): core}
}

func TestLookup_Qualified(t *testing.T) {
	r := New(coreSnapshots())

	e, err := r.Lookup("core@1.0.0:climb", content.Skills, nil)
	require.NoError(t, err)
	assert.Equal(t, "core@1.0.0:climb", e.ID)
	assert.Equal(t, "Climb", e.Name)
}

func TestLookup_ReturnsCopy(t *testing.T) {
	snaps := coreSnapshots()
	r := New(snaps)

	e, err := r.Lookup("core@1.0.0:climb", content.Skills, nil)
	require.NoError(t, err)
	e.Tags[0] = "mutated"
	e.Name = "mutated"

	src, _ := snaps.Snapshot(key.MustParseSourceKey("core@1.0.0"))
	assert.Equal(t, "climb", src.Data.Skills[0].ID)
	assert.Equal(t, "physical", src.Data.Skills[0].Tags[0])
}

func TestLookup_NotLoadedDistinctFromNotFound(t *testing.T) {
	r := New(coreSnapshots())

	_, err := r.Lookup("core@2.0.0:climb", content.Skills, nil)
	assert.ErrorIs(t, err, ErrUnresolvedReference)
	assert.ErrorIs(t, err, ErrSourceNotLoaded)
	assert.NotErrorIs(t, err, ErrEntityNotFound)

	_, err = r.Lookup("core@1.0.0:swim", content.Skills, nil)
	assert.ErrorIs(t, err, ErrUnresolvedReference)
	assert.ErrorIs(t, err, ErrEntityNotFound)
	assert.NotErrorIs(t, err, ErrSourceNotLoaded)

	// present in the snapshot, but in another category
	_, err = r.Lookup("core@1.0.0:rope", content.Skills, nil)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestLookup_Local(t *testing.T) {
	r := New(coreSnapshots())
	local := &content.Collections{Edges: []content.Entity{{ID: "lucky", Name: "Lucky"}}}

	e, err := r.Lookup("lucky", content.Edges, local)
	require.NoError(t, err)
	assert.Equal(t, "lucky", e.ID)

	_, err = r.Lookup("lucky", content.Skills, local)
	assert.ErrorIs(t, err, ErrEntityNotFound)

	_, err = r.Lookup("lucky", content.Edges, nil)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestLookup_Malformed(t *testing.T) {
	r := New(coreSnapshots())
	for _, p := range []string{"", "core@1.0.0", "core:climb", "core@1.0.0:climb:x", "a.b"} {
		_, err := r.Lookup(p, content.Skills, nil)
		assert.ErrorIs(t, err, ErrUnresolvedReference, p)
	}

	_, err := r.Lookup("core@1.0.0:climb", content.Category(99), nil)
	assert.ErrorIs(t, err, ErrUnresolvedReference)
}

func TestResolve_SoftFailsAndLogs(t *testing.T) {
	h := &captureHandler{}
	r := New(coreSnapshots(), WithLogger(slog.New(h)))

	assert.Nil(t, r.Resolve("core@9.0.0:climb", content.Skills, nil))
	require.Len(t, h.records, 1)
	assert.Equal(t, slog.LevelWarn, h.records[0].Level)
	assert.Equal(t, "unresolved reference", h.records[0].Message)

	assert.NotNil(t, r.Resolve("core@1.0.0:climb", content.Skills, nil))
	assert.Len(t, h.records, 1)
}

func TestResolve_Pure(t *testing.T) {
	r := New(coreSnapshots())
	local := &content.Collections{}
	first := r.Resolve("core@1.0.0:climb", content.Skills, local)
	second := r.Resolve("core@1.0.0:climb", content.Skills, local)
	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
}

func TestUnresolved(t *testing.T) {
	r := New(coreSnapshots())
	ch := &content.Character{
		Dependencies: content.Dependencies{Primary: key.MustParseSourceKey("core@1.0.0")},
		Data: content.CharacterData{
			Character: content.Sheet{OriginRef: "home", PathRef: "core@1.0.0:warrior"},
			Skills:    []content.SkillEntry{{Ref: "core@1.0.0:climb"}},
			Custom:    content.Collections{Origins: []content.Entity{{ID: "home"}}},
		},
	}

	failures := r.Unresolved(ch)
	require.Len(t, failures, 1)
	assert.Equal(t, "data.character.pathRef", failures[0].Path)
	assert.Equal(t, content.Paths, failures[0].Category)
	assert.ErrorIs(t, failures[0].Err, ErrEntityNotFound)
}
