package catalog

import (
	"slices"
	"strings"

	"github.com/dan-solli/sourcebook/pkg/content"
	"github.com/dan-solli/sourcebook/pkg/key"
)

// IdentityGroup is every known version of one content identity.
type IdentityGroup struct {
	ID string `json:"id"`
	// Name and Requires come from the newest known version.
	Name     string `json:"name"`
	Requires string `json:"requires,omitempty"`
	// Versions is sorted newest first.
	Versions []key.SourceKey `json:"versions"`
}

// Latest returns the newest known version.
func (g IdentityGroup) Latest() key.SourceKey {
	if len(g.Versions) == 0 {
		return key.SourceKey{}
	}
	return g.Versions[0]
}

// Groups partitions known identities into core and extra sources.
type Groups struct {
	Core  []IdentityGroup `json:"core"`
	Extra []IdentityGroup `json:"extra"`
}

// Find looks an identity up in either partition.
func (g Groups) Find(id string) (IdentityGroup, bool) {
	for _, list := range [][]IdentityGroup{g.Core, g.Extra} {
		if i := slices.IndexFunc(list, func(ig IdentityGroup) bool { return ig.ID == id }); i >= 0 {
			return list[i], true
		}
	}
	return IdentityGroup{}, false
}

// ExtrasFor returns the extra identities that require the core identity id.
func (g Groups) ExtrasFor(id string) []IdentityGroup {
	var out []IdentityGroup
	for _, ig := range g.Extra {
		if ig.Requires == id {
			out = append(out, ig)
		}
	}
	return out
}

// buildGroups groups metadata by identity. The newest version of an
// identity decides whether it is core or extra.
func buildGroups(meta map[key.SourceKey]content.Metadata) Groups {
	byID := make(map[string][]content.Metadata)
	for _, m := range meta {
		byID[m.ID] = append(byID[m.ID], m)
	}

	var groups Groups
	for id, versions := range byID {
		slices.SortFunc(versions, func(a, b content.Metadata) int {
			return b.Version.Compare(a.Version)
		})
		ig := IdentityGroup{
			ID:       id,
			Name:     versions[0].Name,
			Requires: versions[0].Requires,
			Versions: make([]key.SourceKey, 0, len(versions)),
		}
		for _, m := range versions {
			// metadata in the map was keyed by a valid SourceKey already
			sk, _ := m.Key()
			ig.Versions = append(ig.Versions, sk)
		}
		if versions[0].Kind() == content.KindCore {
			groups.Core = append(groups.Core, ig)
		} else {
			groups.Extra = append(groups.Extra, ig)
		}
	}

	byName := func(a, b IdentityGroup) int { return strings.Compare(a.ID, b.ID) }
	slices.SortFunc(groups.Core, byName)
	slices.SortFunc(groups.Extra, byName)
	return groups
}
