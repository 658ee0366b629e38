// Package content holds the catalog data model: sources, their entity
// collections, and the characters that point into them.
package content

import (
	"fmt"
)

// Category names one entity collection of a source (and the matching custom
// collection of a character). It is a closed set; every switch over it must
// be exhaustive.
type Category int

const (
	Origins Category = iota + 1
	Paths
	Tags
	Items
	Aspects
	Skills
	Edges
	Conditions
)

var categoryNames = map[Category]string{
	Origins:    "origins",
	Paths:      "paths",
	Tags:       "tags",
	Items:      "items",
	Aspects:    "aspects",
	Skills:     "skills",
	Edges:      "edges",
	Conditions: "conditions",
}

// Categories returns every category in declaration order.
func Categories() []Category {
	return []Category{Origins, Paths, Tags, Items, Aspects, Skills, Edges, Conditions}
}

// ParseCategory maps a collection name to its Category.
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
