package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced across subsystem boundaries.
var (
	// ErrMissingBlob is returned when a digest has no bytes in the store.
	ErrMissingBlob = errors.New("blob not found")
	// ErrFileTooLarge is returned when a download crosses the size ceiling.
	ErrFileTooLarge = errors.New("file exceeds maximum download size")
	// ErrUnknownExtractionType is returned for types outside the closed set.
	ErrUnknownExtractionType = errors.New("unknown extraction type")
	// ErrAmbiguousDate is returned when a localized date parses
	// differently under the candidate languages.
	ErrAmbiguousDate = errors.New("ambiguous date")
	// ErrNoDownload is returned by LastDownloadInfo when the origin URL
	// has never been fetched.
	ErrNoDownload = errors.New("no prior download for url")
)

// RequestError wraps an HTTP-layer failure that survived the retry
// policy. Status is zero for transport-level failures.
type RequestError struct {
	URL    string
	Method string
	Status int
	Err    error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *RequestError) Unwrap() error { return e.Err }
