package sourcebook

import (
	"context"
	"errors"
	"strings"

	"github.com/dan-solli/sourcebook/pkg/catalog"
	"github.com/dan-solli/sourcebook/pkg/document"
	"github.com/dan-solli/sourcebook/pkg/key"
	"github.com/dan-solli/sourcebook/pkg/migrate"
	"github.com/dan-solli/sourcebook/pkg/resolve"
	"github.com/dan-solli/sourcebook/pkg/store"
)

// Error type constants for classification
const (
	ErrTypeValidation = "validation"
	ErrTypeNotFound   = "not_found"
	ErrTypeNotLoaded  = "not_loaded"
	ErrTypeConflict   = "conflict"
	ErrTypeBatchLoad  = "batch_load"
	ErrTypeDatabase   = "database"
	ErrTypeTimeout    = "timeout"
	ErrTypeUnknown    = "unknown"
)

// ClassifyError inspects an error and returns its type classification.
// The result labels metrics and traces.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrTypeTimeout
	case errors.Is(err, catalog.ErrBatchLoadFailure):
		return ErrTypeBatchLoad
	case errors.Is(err, catalog.ErrNotLoaded), errors.Is(err, resolve.ErrSourceNotLoaded):
		return ErrTypeNotLoaded
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, ErrCharacterNotFound),
		errors.Is(err, resolve.ErrEntityNotFound):
		return ErrTypeNotFound
	case errors.Is(err, catalog.ErrAlreadyPublished):
		return ErrTypeConflict
	case errors.Is(err, document.ErrInvalidDocument),
		errors.Is(err, migrate.ErrInvalidKeyPair),
		errors.Is(err, key.ErrInvalidIdentifier),
		errors.Is(err, key.ErrInvalidVersion),
		errors.Is(err, key.ErrMalformedKey),
		errors.Is(err, key.ErrMalformedReference),
		errors.Is(err, key.ErrInvalidValue),
		errors.Is(err, store.ErrInvalidArgument),
		errors.Is(err, catalog.ErrUnknownCategory):
		return ErrTypeValidation
	case errors.Is(err, catalog.ErrCorruptRecord):
		return ErrTypeDatabase
	}

	// Driver errors arrive unwrapped from database/sql, pgx and the S3 SDK.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return ErrTypeTimeout
	}
	for _, s := range []string{"sql", "database", "constraint", "s3:", "nosuchbucket", "connection refused"} {
		if strings.Contains(msg, s) {
			return ErrTypeDatabase
		}
	}
	return ErrTypeUnknown
}
