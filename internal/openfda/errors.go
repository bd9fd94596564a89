package openfda

import (
	"errors"
	"fmt"
)

// SourceError classifies record-source failures. Transient errors
// (rate-limiting, 5xx, timeouts) are retried with bounded backoff;
// permanent errors (malformed query, other 4xx) are not.
type SourceError struct {
	StatusCode int
	Transient  bool
	Message    string
	Err        error
}

func (e *SourceError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("source error (%s, status %d): %s", kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("source error (%s): %s", kind, e.Message)
}

func (e *SourceError) Unwrap() error { return e.Err }

// NewTransientError builds a retryable source error.
func NewTransientError(status int, msg string, err error) *SourceError {
	return &SourceError{StatusCode: status, Transient: true, Message: msg, Err: err}
}

// NewPermanentError builds a non-retryable source error.
func NewPermanentError(status int, msg string, err error) *SourceError {
	return &SourceError{StatusCode: status, Transient: false, Message: msg, Err: err}
}

// IsTransient reports whether err is a retryable source error.
func IsTransient(err error) bool {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}
