// Package key implements the composite key grammar used to address source
// snapshots (Id@Version) and entities inside them (Id@Version:Id).
//
// String forms exist for storage and serialization only. Every value of
// SourceKey or Reference has been through the parser, so holding one is proof
// that the grammar was satisfied.
package key

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// SourceSeparator splits a SourceKey into identity and version.
	SourceSeparator = "@"
	// ReferenceSeparator splits a Reference into SourceKey and entity Id.
	ReferenceSeparator = ":"

	maxIDLength = 64
)

var (
	ErrInvalidIdentifier  = errors.New("invalid identifier")
	ErrInvalidVersion     = errors.New("invalid version")
	ErrMalformedKey       = errors.New("malformed source key")
	ErrMalformedReference = errors.New("malformed reference")
	ErrInvalidValue       = errors.New("invalid value")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidateID checks an Id against the identifier grammar.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidIdentifier, id, maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return nil
}

// IsLocal reports whether s is a bare Id, i.e. a local reference.
func IsLocal(s string) bool {
	return ValidateID(s) == nil
}

// SourceKey identifies one immutable published snapshot of a source.
// The zero value is not a valid key; see IsZero.
type SourceKey struct {
	id      string
	version Version
}

// NewSourceKey builds a SourceKey from its two components.
func NewSourceKey(id, version string) (SourceKey, error) {
	if err := ValidateID(id); err != nil {
		return SourceKey{}, err
	}
	v, err := ParseVersion(version)
	if err != nil {
		return SourceKey{}, err
	}
	return SourceKey{id: id, version: v}, nil
}

// SourceKeyOf builds a SourceKey from an Id and an already parsed Version.
func SourceKeyOf(id string, version Version) (SourceKey, error) {
	if err := ValidateID(id); err != nil {
		return SourceKey{}, err
	}
	return SourceKey{id: id, version: version}, nil
}

// ParseSourceKey parses the Id@Version form.
func ParseSourceKey(s string) (SourceKey, error) {
	id, version, ok := strings.Cut(s, SourceSeparator)
	if !ok || strings.Contains(version, SourceSeparator) {
		return SourceKey{}, fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}
	sk, err := NewSourceKey(id, version)
	if err != nil {
		return SourceKey{}, fmt.Errorf("%w: %q: %w", ErrMalformedKey, s, err)
	}
	return sk, nil
}

// MustParseSourceKey is ParseSourceKey for literals known to be valid.
func MustParseSourceKey(s string) SourceKey {
	sk, err := ParseSourceKey(s)
	if err != nil {
		panic(err)
	}
	return sk
}

// ID returns the content identity shared by every version.
func (k SourceKey) ID() string { return k.id }

// Version returns the snapshot version.
func (k SourceKey) Version() Version { return k.version }

// IsZero reports whether k was never produced by the codec.
func (k SourceKey) IsZero() bool { return k.id == "" }

// SameIdentity reports whether both keys name revisions of the same source.
func (k SourceKey) SameIdentity(other SourceKey) bool { return k.id == other.id }

func (k SourceKey) String() string {
	if k.IsZero() {
		return ""
	}
	return k.id + SourceSeparator + k.version.String()
}

// MarshalText implements encoding.TextMarshaler.
func (k SourceKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input leaves
// the zero key so optional fields decode cleanly.
func (k *SourceKey) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = SourceKey{}
		return nil
	}
	parsed, err := ParseSourceKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Reference points at one entity inside one snapshot.
type Reference struct {
	source SourceKey
	id     string
}

// NewReference qualifies an entity Id with a SourceKey.
func NewReference(source SourceKey, id string) (Reference, error) {
	if source.IsZero() {
		return Reference{}, fmt.Errorf("%w: empty source key", ErrMalformedReference)
	}
	if err := ValidateID(id); err != nil {
		return Reference{}, err
	}
	return Reference{source: source, id: id}, nil
}

// ParseReference parses the Id@Version:Id form.
func ParseReference(s string) (Reference, error) {
	sourcePart, id, ok := strings.Cut(s, ReferenceSeparator)
	if !ok || strings.Contains(id, ReferenceSeparator) {
		return Reference{}, fmt.Errorf("%w: %q", ErrMalformedReference, s)
	}
	sk, err := ParseSourceKey(sourcePart)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %q: %w", ErrMalformedReference, s, err)
	}
	if err := ValidateID(id); err != nil {
		return Reference{}, fmt.Errorf("%w: %q: %w", ErrMalformedReference, s, err)
	}
	return Reference{source: sk, id: id}, nil
}

// MustParseReference is ParseReference for literals known to be valid.
func MustParseReference(s string) Reference {
	ref, err := ParseReference(s)
	if err != nil {
		panic(err)
	}
	return ref
}

// Normalize promotes shorthand input to a Reference qualified against
// source. Already qualified references are returned unchanged, even when
// they point at a different snapshot.
func Normalize(source SourceKey, refOrID string) (Reference, error) {
	if ref, err := ParseReference(refOrID); err == nil {
		return ref, nil
	}
	if IsLocal(refOrID) {
		return NewReference(source, refOrID)
	}
	return Reference{}, fmt.Errorf("%w: %q is neither a reference nor an id", ErrInvalidValue, refOrID)
}

// Source returns the snapshot the reference points into.
func (r Reference) Source() SourceKey { return r.source }

// ID returns the entity Id inside the snapshot.
func (r Reference) ID() string { return r.id }

// IsZero reports whether r was never produced by the codec.
func (r Reference) IsZero() bool { return r.id == "" }

// WithSource returns the same entity Id qualified by another snapshot.
func (r Reference) WithSource(source SourceKey) Reference {
	return Reference{source: source, id: r.id}
}

func (r Reference) String() string {
	if r.IsZero() {
		return ""
	}
	return r.source.String() + ReferenceSeparator + r.id
}

// MarshalText implements encoding.TextMarshaler.
func (r Reference) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reference) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*r = Reference{}
		return nil
	}
	parsed, err := ParseReference(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
