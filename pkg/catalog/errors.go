package catalog

import (
	"errors"
	"fmt"

	"github.com/dan-solli/sourcebook/pkg/key"
)

var (
	// ErrNotFound means the requested snapshot is absent from storage.
	ErrNotFound = errors.New("source not found")
	// ErrNotLoaded means the snapshot exists (or may exist) but is not cached.
	ErrNotLoaded = errors.New("source not loaded")
	// ErrAlreadyPublished is returned when publishing an existing SourceKey.
	ErrAlreadyPublished = errors.New("source version already published")
	// ErrBatchLoadFailure matches every *BatchLoadError.
	ErrBatchLoadFailure = errors.New("batch load failed")
	// ErrCorruptRecord means a stored record does not decode to the snapshot
	// its key names.
	ErrCorruptRecord = errors.New("corrupt source record")
	// ErrUnknownCategory is returned for a content.Category outside the
	// declared set.
	ErrUnknownCategory = errors.New("unknown category")
)

// BatchLoadError reports the fetch that aborted a LoadMany call.
type BatchLoadError struct {
	Key key.SourceKey
	Err error
}

func (e *BatchLoadError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrBatchLoadFailure, e.Key, e.Err)
}

func (e *BatchLoadError) Unwrap() []error {
	return []error{ErrBatchLoadFailure, e.Err}
}
