package migrate

import "github.com/dan-solli/sourcebook/pkg/content"

// Policy decides what happens to a reference whose entity no longer exists
// in the new snapshot.
type Policy int

const (
	// DropOnOrphan removes the containing array entry.
	DropOnOrphan Policy = iota + 1
	// KeepStaleOnOrphan leaves the old reference in place. Used by required
	// single-value fields that must never be empty.
	KeepStaleOnOrphan
)

func (p Policy) String() string {
	switch p {
	case DropOnOrphan:
		return "drop"
	case KeepStaleOnOrphan:
		return "keep_stale"
	}
	return "unknown"
}

// Field is one place in a character that holds references.
type Field struct {
	Name     string
	Category content.Category
	Policy   Policy
}

// Field names used in reports, logs and metrics.
const (
	FieldOrigin           = "origin"
	FieldPath             = "path"
	FieldEdges            = "edges"
	FieldSkills           = "skills"
	FieldAspects          = "aspects"
	FieldConditions       = "conditions"
	FieldBackpackEquipped = "backpack.equipped"
	FieldBackpackCarried  = "backpack.carried"
	FieldBackpackStored   = "backpack.stored"
	FieldBackpackTags     = "backpack.tags"
)

var fieldTable = map[string]Field{
	FieldOrigin:           {FieldOrigin, content.Origins, KeepStaleOnOrphan},
	FieldPath:             {FieldPath, content.Paths, KeepStaleOnOrphan},
	FieldEdges:            {FieldEdges, content.Edges, DropOnOrphan},
	FieldSkills:           {FieldSkills, content.Skills, DropOnOrphan},
	FieldAspects:          {FieldAspects, content.Aspects, DropOnOrphan},
	FieldConditions:       {FieldConditions, content.Conditions, DropOnOrphan},
	FieldBackpackEquipped: {FieldBackpackEquipped, content.Items, DropOnOrphan},
	FieldBackpackCarried:  {FieldBackpackCarried, content.Items, DropOnOrphan},
	FieldBackpackStored:   {FieldBackpackStored, content.Items, DropOnOrphan},
	FieldBackpackTags:     {FieldBackpackTags, content.Tags, DropOnOrphan},
}

// Fields returns the field table in a stable order.
func Fields() []Field {
	names := []string{
		FieldOrigin, FieldPath, FieldEdges, FieldSkills, FieldAspects, FieldConditions,
		FieldBackpackEquipped, FieldBackpackCarried, FieldBackpackStored, FieldBackpackTags,
	}
	out := make([]Field, len(names))
	for i, n := range names {
		out[i] = fieldTable[n]
	}
	return out
}

func lookupField(name string) Field {
	f, ok := fieldTable[name]
	if !ok {
		panic("migrate: field " + name + " missing from field table")
	}
	return f
}
