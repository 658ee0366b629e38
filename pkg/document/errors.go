package document

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDocument matches every *ValidationError.
var ErrInvalidDocument = errors.New("document: invalid")

// FieldError locates one problem inside a document.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	if f.Path == "" {
		return f.Message
	}
	return f.Path + ": " + f.Message
}

// ValidationError collects every field-level problem found in a document.
type ValidationError struct {
	// Kind is "source" or "character".
	Kind   string       `json:"kind"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("invalid %s document: %s", e.Kind, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidDocument
}

// collector accumulates field errors while walking a document.
type collector struct {
	kind   string
	fields []FieldError
}

func (c *collector) add(path, format string, args ...any) {
	c.fields = append(c.fields, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return &ValidationError{Kind: c.kind, Fields: c.fields}
}
