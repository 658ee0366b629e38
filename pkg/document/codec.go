package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dan-solli/sourcebook/pkg/content"
)

// DecodeSource reads and validates a source document.
func DecodeSource(r io.Reader, f Format) (*content.Source, error) {
	var src content.Source
	if err := decode(r, f, "source", &src); err != nil {
		return nil, err
	}
	if err := ValidateSource(&src); err != nil {
		return nil, err
	}
	return &src, nil
}

// DecodeCharacter reads and validates a character document.
func DecodeCharacter(r io.Reader, f Format) (*content.Character, error) {
	var ch content.Character
	if err := decode(r, f, "character", &ch); err != nil {
		return nil, err
	}
	if err := ValidateCharacter(&ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// EncodeSource writes src in format f.
func EncodeSource(w io.Writer, src *content.Source, f Format) error {
	return encode(w, f, src)
}

// EncodeCharacter writes ch in format f.
func EncodeCharacter(w io.Writer, ch *content.Character, f Format) error {
	return encode(w, f, ch)
}

// decode normalizes YAML through a generic tree so both formats share the
// JSON field names and text unmarshallers of the content model.
func decode(r io.Reader, f Format, kind string, v any) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s document: %w", kind, err)
	}

	switch f {
	case FormatJSON:
	case FormatYAML:
		var tree any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return decodeFailure(kind, "", err)
		}
		if raw, err = json.Marshal(tree); err != nil {
			return decodeFailure(kind, "", err)
		}
	default:
		return fmt.Errorf("document: unsupported format %q", f)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return decodeFailure(kind, jsonErrorPath(err), err)
	}
	if dec.More() {
		return decodeFailure(kind, "", errors.New("unexpected data after document"))
	}
	return nil
}

func decodeFailure(kind, path string, err error) error {
	return &ValidationError{Kind: kind, Fields: []FieldError{{Path: path, Message: err.Error()}}}
}

func jsonErrorPath(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field
	}
	const unknown = `json: unknown field "`
	if msg := err.Error(); strings.HasPrefix(msg, unknown) {
		return strings.TrimSuffix(strings.TrimPrefix(msg, unknown), `"`)
	}
	return ""
}

func encode(w io.Writer, f Format, v any) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		// Round-trip through JSON so YAML output uses the same field names
		// and string forms for keys and versions.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var tree any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("document: unsupported format %q", f)
}
