package content

import (
	"fmt"

	"github.com/dan-solli/sourcebook/pkg/key"
)

// Status describes the publication state of a snapshot.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPublished  Status = "published"
	StatusDeprecated Status = "deprecated"
)

// Valid reports whether s is a known status. The empty status is treated as
// published by callers.
func (s Status) Valid() bool {
	switch s {
	case "", StatusDraft, StatusPublished, StatusDeprecated:
		return true
	}
	return false
}

// Kind separates sources that stand alone from those layered on a core.
type Kind string

const (
	KindCore  Kind = "core"
	KindExtra Kind = "extra"
)

// Metadata is the immutable header of a snapshot.
type Metadata struct {
	ID          string      `json:"id"`
	Version     key.Version `json:"version"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Status      Status      `json:"status,omitempty"`
	// Requires names the core identity an extra source builds on. Empty for
	// core sources.
	Requires string `json:"requires,omitempty"`
}

// Key returns the SourceKey addressing this snapshot.
func (m Metadata) Key() (key.SourceKey, error) {
	sk, err := key.SourceKeyOf(m.ID, m.Version)
	if err != nil {
		return key.SourceKey{}, fmt.Errorf("source metadata: %w", err)
	}
	return sk, nil
}

// Kind derives core/extra from the dependency declaration.
func (m Metadata) Kind() Kind {
	if m.Requires == "" {
		return KindCore
	}
	return KindExtra
}

// Source is one immutable snapshot: metadata plus its entity payload.
type Source struct {
	Metadata
	Data Collections `json:"data"`
}

// Key returns the SourceKey of the snapshot.
func (s *Source) Key() (key.SourceKey, error) {
	return s.Metadata.Key()
}

// Qualified returns a copy of the collection for cat with every entity Id
// rewritten to its fully qualified Reference string.
func (s *Source) Qualified(cat Category) ([]Entity, error) {
	sk, err := s.Key()
	if err != nil {
		return nil, err
	}
	src := s.Data.Get(cat)
	out := make([]Entity, 0, len(src))
	for _, e := range src {
		ref, err := key.NewReference(sk, e.ID)
		if err != nil {
			return nil, fmt.Errorf("qualify %s in %s: %w", e.ID, sk, err)
		}
		q := e.Clone()
		q.ID = ref.String()
		out = append(out, q)
	}
	return out, nil
}
