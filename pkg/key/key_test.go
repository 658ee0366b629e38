package key

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceKeyRoundTrip(t *testing.T) {
	cases := []struct {
		id      string
		version string
	}{
		{"core", "1.0.0"},
		{"extra-pack", "3.2.1"},
		{"A_1", "0.0.0"},
		{"x", "10.200.3000"},
	}

	for _, tc := range cases {
		sk, err := NewSourceKey(tc.id, tc.version)
		require.NoError(t, err)

		parsed, err := ParseSourceKey(sk.String())
		require.NoError(t, err)
		assert.Equal(t, tc.id, parsed.ID())
		assert.Equal(t, tc.version, parsed.Version().String())
		assert.Equal(t, sk, parsed)
	}
}

func TestReferenceRoundTrip(t *testing.T) {
	sk := MustParseSourceKey("core@1.2.3")
	ref, err := NewReference(sk, "fireball")
	require.NoError(t, err)
	assert.Equal(t, "core@1.2.3:fireball", ref.String())

	parsed, err := ParseReference(ref.String())
	require.NoError(t, err)
	assert.Equal(t, ref, parsed)
	assert.Equal(t, sk, parsed.Source())
	assert.Equal(t, "fireball", parsed.ID())
}

func TestConstructionRejectsSeparators(t *testing.T) {
	_, err := NewSourceKey("co@re", "1.0.0")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = NewSourceKey("co:re", "1.0.0")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = NewSourceKey("core", "1.0@0")
	assert.ErrorIs(t, err, ErrInvalidVersion)

	_, err = NewSourceKey("core", "1:0.0")
	assert.ErrorIs(t, err, ErrInvalidVersion)

	_, err = NewReference(MustParseSourceKey("core@1.0.0"), "a:b")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = NewReference(MustParseSourceKey("core@1.0.0"), "a@b")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestParseSourceKeyMalformed(t *testing.T) {
	inputs := []string{
		"",
		"core",
		"core@",
		"@1.0.0",
		"core@1.0",
		"core@1.0.0@2.0.0",
		"core@01.0.0",
		"core@1.0.-1",
		"co re@1.0.0",
		"core@1.0.0:item",
	}
	for _, in := range inputs {
		_, err := ParseSourceKey(in)
		assert.ErrorIs(t, err, ErrMalformedKey, "input %q", in)
	}
}

func TestParseReferenceMalformed(t *testing.T) {
	inputs := []string{
		"",
		"item",
		"core@1.0.0",
		"core@1.0.0:",
		":item",
		"core:item",
		"core@1.0.0:item:extra",
		"core@1.x.0:item",
	}
	for _, in := range inputs {
		_, err := ParseReference(in)
		assert.ErrorIs(t, err, ErrMalformedReference, "input %q", in)
	}
}

func TestMalformedKeyWrapsComponentError(t *testing.T) {
	_, err := ParseSourceKey("core@1.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedKey))
	assert.True(t, errors.Is(err, ErrInvalidVersion))
}

func TestIDLength(t *testing.T) {
	assert.NoError(t, ValidateID(strings.Repeat("a", maxIDLength)))
	assert.ErrorIs(t, ValidateID(strings.Repeat("a", maxIDLength+1)), ErrInvalidIdentifier)
	assert.ErrorIs(t, ValidateID("-leading"), ErrInvalidIdentifier)
	assert.ErrorIs(t, ValidateID("has.dot"), ErrInvalidIdentifier)
}

func TestNormalize(t *testing.T) {
	sk := MustParseSourceKey("core@1.0.0")

	ref, err := Normalize(sk, "sword")
	require.NoError(t, err)
	assert.Equal(t, "core@1.0.0:sword", ref.String())

	ref, err = Normalize(sk, "extra@2.0.0:shield")
	require.NoError(t, err)
	assert.Equal(t, "extra@2.0.0:shield", ref.String(), "qualified input keeps its own snapshot")

	_, err = Normalize(sk, "not valid!")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = Normalize(sk, "core@1.0:sword")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestIsLocal(t *testing.T) {
	assert.True(t, IsLocal("my-custom-edge"))
	assert.False(t, IsLocal("core@1.0.0:edge"))
	assert.False(t, IsLocal(""))
}

func TestZeroValues(t *testing.T) {
	var sk SourceKey
	assert.True(t, sk.IsZero())
	assert.Equal(t, "", sk.String())

	_, err := NewReference(sk, "x")
	assert.ErrorIs(t, err, ErrMalformedReference)
}

func TestTextMarshalling(t *testing.T) {
	type doc struct {
		Primary SourceKey   `json:"primary"`
		Others  []SourceKey `json:"others"`
		Ref     Reference   `json:"ref"`
	}
	in := doc{
		Primary: MustParseSourceKey("core@1.0.0"),
		Others:  []SourceKey{MustParseSourceKey("extra@0.1.0")},
		Ref:     MustParseReference("core@1.0.0:origin1"),
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"primary":"core@1.0.0","others":["extra@0.1.0"],"ref":"core@1.0.0:origin1"}`, string(b))

	var out doc
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	err = json.Unmarshal([]byte(`{"primary":"core"}`), &out)
	assert.ErrorIs(t, err, ErrMalformedKey)
}

func TestSourceKeyAsMapKey(t *testing.T) {
	m := map[SourceKey]int{}
	m[MustParseSourceKey("core@1.0.0")] = 1
	m[MustParseSourceKey("core@1.0.0")]++
	assert.Equal(t, 2, m[MustParseSourceKey("core@1.0.0")])
	assert.Len(t, m, 1)
}
