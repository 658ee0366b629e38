package content

import (
	"fmt"
	"slices"
)

// Entity is one record of a collection. Category specific fields live in
// Properties; the engine only relies on ID.
type Entity struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Clone returns a deep copy of e. Nested property values are copied when
// they are maps or slices produced by JSON decoding.
func (e Entity) Clone() Entity {
	out := e
	out.Tags = slices.Clone(e.Tags)
	if e.Properties != nil {
		out.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			out.Properties[k] = cloneValue(v)
		}
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// Collections is the set of named entity collections carried by a source
// payload, and by a character for its custom entities.
type Collections struct {
	Origins    []Entity `json:"origins,omitempty"`
	Paths      []Entity `json:"paths,omitempty"`
	Tags       []Entity `json:"tags,omitempty"`
	Items      []Entity `json:"items,omitempty"`
	Aspects    []Entity `json:"aspects,omitempty"`
	Skills     []Entity `json:"skills,omitempty"`
	Edges      []Entity `json:"edges,omitempty"`
	Conditions []Entity `json:"conditions,omitempty"`
}

// Get returns the collection for c. The slice is shared with the receiver.
func (c *Collections) Get(cat Category) []Entity {
	if c == nil {
		return nil
	}
	switch cat {
	case Origins:
		return c.Origins
	case Paths:
		return c.Paths
	case Tags:
		return c.Tags
	case Items:
		return c.Items
	case Aspects:
		return c.Aspects
	case Skills:
		return c.Skills
	case Edges:
		return c.Edges
	case Conditions:
		return c.Conditions
	}
	panic(fmt.Sprintf("content: unhandled category %v", cat))
}

// Set replaces the collection for c.
func (c *Collections) Set(cat Category, entities []Entity) {
	switch cat {
	case Origins:
		c.Origins = entities
	case Paths:
		c.Paths = entities
	case Tags:
		c.Tags = entities
	case Items:
		c.Items = entities
	case Aspects:
		c.Aspects = entities
	case Skills:
		c.Skills = entities
	case Edges:
		c.Edges = entities
	case Conditions:
		c.Conditions = entities
	default:
		panic(fmt.Sprintf("content: unhandled category %v", cat))
	}
}

// Find returns the entity with the given Id in category cat.
func (c *Collections) Find(cat Category, id string) (Entity, bool) {
	for _, e := range c.Get(cat) {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// Has reports whether category cat contains id.
func (c *Collections) Has(cat Category, id string) bool {
	_, ok := c.Find(cat, id)
	return ok
}

// Index builds an id set per category, used when many lookups hit the same
// collections.
func (c *Collections) Index() map[Category]map[string]struct{} {
	idx := make(map[Category]map[string]struct{}, len(categoryNames))
	for _, cat := range Categories() {
		ids := make(map[string]struct{})
		for _, e := range c.Get(cat) {
			ids[e.ID] = struct{}{}
		}
		idx[cat] = ids
	}
	return idx
}

// DuplicateIDs returns, per category, Ids that appear more than once.
func (c *Collections) DuplicateIDs() map[Category][]string {
	dups := map[Category][]string{}
	for _, cat := range Categories() {
		seen := map[string]int{}
		for _, e := range c.Get(cat) {
			seen[e.ID]++
			if seen[e.ID] == 2 {
				dups[cat] = append(dups[cat], e.ID)
			}
		}
	}
	return dups
}

// Clone deep-copies every collection.
func (c Collections) Clone() Collections {
	var out Collections
	for _, cat := range Categories() {
		src := c.Get(cat)
		if src == nil {
			continue
		}
		dst := make([]Entity, len(src))
		for i, e := range src {
			dst[i] = e.Clone()
		}
		out.Set(cat, dst)
	}
	return out
}

// Len returns the total number of entities across categories.
func (c *Collections) Len() int {
	n := 0
	for _, cat := range Categories() {
		n += len(c.Get(cat))
	}
	return n
}

// Counts returns the number of entities per category name.
func (c *Collections) Counts() map[string]int {
	out := make(map[string]int, len(categoryNames))
	for _, cat := range Categories() {
		out[cat.String()] = len(c.Get(cat))
	}
	return out
}
