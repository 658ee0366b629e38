package content

import (
	"fmt"
	"slices"
	"time"

	"github.com/dan-solli/sourcebook/pkg/key"
)

// Dependencies lists the snapshots a character draws content from.
type Dependencies struct {
	Primary   key.SourceKey   `json:"primary"`
	Secondary []key.SourceKey `json:"secondary,omitempty"`
}

// All returns the primary key followed by the secondaries.
func (d Dependencies) All() []key.SourceKey {
	out := make([]key.SourceKey, 0, 1+len(d.Secondary))
	if !d.Primary.IsZero() {
		out = append(out, d.Primary)
	}
	return append(out, d.Secondary...)
}

// Declares reports whether sk is the primary or a secondary dependency.
func (d Dependencies) Declares(sk key.SourceKey) bool {
	return d.Primary == sk || slices.Contains(d.Secondary, sk)
}

// Sheet holds the single-valued fields of a character. OriginRef and PathRef
// are required.
type Sheet struct {
	OriginRef string `json:"originRef"`
	PathRef   string `json:"pathRef"`
	Level     int    `json:"level,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Held is an entity a character possesses, such as an edge or aspect.
type Held struct {
	Ref   string `json:"ref"`
	Notes string `json:"notes,omitempty"`
}

// SkillEntry is a held skill with its rank.
type SkillEntry struct {
	Ref  string `json:"ref"`
	Rank int    `json:"rank,omitempty"`
}

// BackpackEntry is an item stack; Tags point into the tags category.
type BackpackEntry struct {
	Ref      string   `json:"ref"`
	Quantity int      `json:"quantity,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// Backpack groups item entries by where they are kept.
type Backpack struct {
	Equipped []BackpackEntry `json:"equipped,omitempty"`
	Carried  []BackpackEntry `json:"carried,omitempty"`
	Stored   []BackpackEntry `json:"stored,omitempty"`
}

// BackpackSection names one slice of the backpack.
type BackpackSection struct {
	Name    string
	Entries *[]BackpackEntry
}

// Sections returns every backpack section in a fixed order.
func (b *Backpack) Sections() []BackpackSection {
	return []BackpackSection{
		{Name: "equipped", Entries: &b.Equipped},
		{Name: "carried", Entries: &b.Carried},
		{Name: "stored", Entries: &b.Stored},
	}
}

// CharacterData is the body of a character document.
type CharacterData struct {
	Character  Sheet        `json:"character"`
	Edges      []Held       `json:"edges,omitempty"`
	Skills     []SkillEntry `json:"skills,omitempty"`
	Aspects    []Held       `json:"aspects,omitempty"`
	Conditions []Held       `json:"conditions,omitempty"`
	Backpack   Backpack     `json:"backpack"`
	// Custom holds entities owned by the character itself, addressed by
	// bare Id.
	Custom Collections `json:"custom"`
}

// Character is a mutable user record pointing into the catalog.
type Character struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Dependencies Dependencies  `json:"dependencies"`
	Data         CharacterData `json:"data"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// EmbeddedRef is one pointer found inside a character, with a path
// describing where it lives.
type EmbeddedRef struct {
	Path     string
	Category Category
	Value    string
}

// Refs lists every embedded pointer in document order.
func (c *Character) Refs() []EmbeddedRef {
	d := &c.Data
	refs := []EmbeddedRef{
		{Path: "data.character.originRef", Category: Origins, Value: d.Character.OriginRef},
		{Path: "data.character.pathRef", Category: Paths, Value: d.Character.PathRef},
	}
	for i, h := range d.Edges {
		refs = append(refs, EmbeddedRef{Path: fmt.Sprintf("data.edges[%d].ref", i), Category: Edges, Value: h.Ref})
	}
	for i, s := range d.Skills {
		refs = append(refs, EmbeddedRef{Path: fmt.Sprintf("data.skills[%d].ref", i), Category: Skills, Value: s.Ref})
	}
	for i, h := range d.Aspects {
		refs = append(refs, EmbeddedRef{Path: fmt.Sprintf("data.aspects[%d].ref", i), Category: Aspects, Value: h.Ref})
	}
	for i, h := range d.Conditions {
		refs = append(refs, EmbeddedRef{Path: fmt.Sprintf("data.conditions[%d].ref", i), Category: Conditions, Value: h.Ref})
	}
	for _, sec := range d.Backpack.Sections() {
		for i, e := range *sec.Entries {
			base := fmt.Sprintf("data.backpack.%s[%d]", sec.Name, i)
			refs = append(refs, EmbeddedRef{Path: base + ".ref", Category: Items, Value: e.Ref})
			for j, tag := range e.Tags {
				refs = append(refs, EmbeddedRef{Path: fmt.Sprintf("%s.tags[%d]", base, j), Category: Tags, Value: tag})
			}
		}
	}
	return refs
}

// Clone returns a deep copy that shares no slices or maps with c.
func (c *Character) Clone() *Character {
	out := *c
	out.Dependencies.Secondary = slices.Clone(c.Dependencies.Secondary)
	out.Data.Edges = slices.Clone(c.Data.Edges)
	out.Data.Skills = slices.Clone(c.Data.Skills)
	out.Data.Aspects = slices.Clone(c.Data.Aspects)
	out.Data.Conditions = slices.Clone(c.Data.Conditions)
	out.Data.Backpack = Backpack{
		Equipped: cloneEntries(c.Data.Backpack.Equipped),
		Carried:  cloneEntries(c.Data.Backpack.Carried),
		Stored:   cloneEntries(c.Data.Backpack.Stored),
	}
	out.Data.Custom = c.Data.Custom.Clone()
	return &out
}

func cloneEntries(in []BackpackEntry) []BackpackEntry {
	if in == nil {
		return nil
	}
	out := make([]BackpackEntry, len(in))
	for i, e := range in {
		e.Tags = slices.Clone(e.Tags)
		out[i] = e
	}
	return out
}
