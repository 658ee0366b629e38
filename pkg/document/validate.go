package document

import (
	"fmt"

	"github.com/dan-solli/sourcebook/pkg/content"
	"github.com/dan-solli/sourcebook/pkg/key"
)

// ValidateSource checks identifier grammar, entity uniqueness and the
// core/extra rule. It returns a *ValidationError or nil.
func ValidateSource(src *content.Source) error {
	c := &collector{kind: "source"}
	if src == nil {
		c.add("", "document is empty")
		return c.err()
	}

	if err := key.ValidateID(src.ID); err != nil {
		c.add("id", "%v", err)
	}
	if src.Name == "" {
		c.add("name", "is required")
	}
	if !src.Status.Valid() {
		c.add("status", "unknown status %q", src.Status)
	}
	if src.Requires != "" {
		if err := key.ValidateID(src.Requires); err != nil {
			c.add("requires", "%v", err)
		} else if src.Requires == src.ID {
			c.add("requires", "source cannot require its own identity")
		}
	}
	validateCollections(c, "data", &src.Data)
	return c.err()
}

func validateCollections(c *collector, base string, cols *content.Collections) {
	for _, cat := range content.Categories() {
		seen := make(map[string]int)
		for i, e := range cols.Get(cat) {
			path := fmt.Sprintf("%s.%s[%d].id", base, cat, i)
			if err := key.ValidateID(e.ID); err != nil {
				c.add(path, "%v", err)
				continue
			}
			if first, dup := seen[e.ID]; dup {
				c.add(path, "duplicate id %q (first at index %d)", e.ID, first)
				continue
			}
			seen[e.ID] = i
		}
	}
}

// ValidateCharacter checks required fields and every embedded reference.
// Qualified references must point into the identity of a declared
// dependency; a reference left on an older version by migration stays valid.
// Bare Ids must exist in the character's custom collection of the same
// category.
func ValidateCharacter(ch *content.Character) error {
	c := &collector{kind: "character"}
	if ch == nil {
		c.add("", "document is empty")
		return c.err()
	}

	if ch.Name == "" {
		c.add("name", "is required")
	}
	validateDependencies(c, ch.Dependencies)
	validateCollections(c, "data.custom", &ch.Data.Custom)

	for _, ref := range ch.Refs() {
		if ref.Value == "" {
			c.add(ref.Path, "is required")
			continue
		}
		if key.IsLocal(ref.Value) {
			if !ch.Data.Custom.Has(ref.Category, ref.Value) {
				c.add(ref.Path, "local %s %q not found in custom entities", ref.Category, ref.Value)
			}
			continue
		}
		r, err := key.ParseReference(ref.Value)
		if err != nil {
			c.add(ref.Path, "%v", err)
			continue
		}
		if !declaresIdentity(ch.Dependencies, r.Source()) {
			c.add(ref.Path, "source %s is not a declared dependency", r.Source())
		}
	}
	return c.err()
}

func validateDependencies(c *collector, deps content.Dependencies) {
	if deps.Primary.IsZero() {
		c.add("dependencies.primary", "is required")
	}
	seen := map[key.SourceKey]bool{deps.Primary: true}
	for i, sk := range deps.Secondary {
		path := fmt.Sprintf("dependencies.secondary[%d]", i)
		switch {
		case sk.IsZero():
			c.add(path, "is empty")
		case seen[sk]:
			c.add(path, "duplicate dependency %s", sk)
		default:
			seen[sk] = true
		}
	}
}

func declaresIdentity(deps content.Dependencies, sk key.SourceKey) bool {
	for _, d := range deps.All() {
		if d.SameIdentity(sk) {
			return true
		}
	}
	return false
}
