package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrSelectorNotFound  = errors.New("selector matched no nodes")
	ErrSelectorAmbiguous = errors.New("selector matched more than one node")
	ErrMissingAttribute  = errors.New("attribute missing or empty")
	ErrUnexpectedStatus  = errors.New("unexpected HTTP status")
	ErrPlaylistShape     = errors.New("playlist is not a single-element array of objects")
	ErrNoRenditions      = errors.New("record has no rendition list")
	ErrMissingUID        = errors.New("record has no usable uid")
	ErrUnknownRendition  = errors.New("rendition not offered by playlist")
	ErrSourceMissing     = errors.New("source video file does not exist")
	ErrInvalidURL        = errors.New("invalid URL")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure looked transient. Nothing in this
// module retries; the flag is there for callers that want to.
func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError means the page or playlist did not have the expected structure.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("parse error for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DownloadError wraps a failed rendition retrieval.
type DownloadError struct {
	Rendition string
	URL       string
	Err       error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s (%s): %v", e.Rendition, e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur while persisting artifacts.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
