package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidParams     = errors.New("invalid generation parameters")
	ErrNoRecords         = errors.New("input contains no usable records")
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrMissingAPIKey     = errors.New("provider API key is required")
	ErrStorageDisabled   = errors.New("object storage is not configured")
	ErrLedgerDisabled    = errors.New("job ledger is not configured")
)

// InputError reports tabular input that could not be read at all.
type InputError struct {
	Op  string
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input error (%s): %v", e.Op, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// TransportError reports a failed provider round trip. StatusCode is 0 when no
// HTTP response was received; Body holds the provider's response verbatim.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("provider %s failed (status %d): %v: %s", e.Op, e.StatusCode, e.Err, e.Body)
	default:
		return fmt.Sprintf("provider %s failed (status %d): %s", e.Op, e.StatusCode, e.Body)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NotReadyError is returned when output is requested for a job that has not
// completed, or that completed without an output file.
type NotReadyError struct {
	JobID  string
	Status JobStatus
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("job %s is not ready: status %s", e.JobID, e.Status)
}

// ParseError is returned when a non-empty output document yields no rows at
// all. Raw carries the document back so the caller can show it.
type ParseError struct {
	Lines int
	Raw   []byte
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("output document has %d non-empty lines but none could be parsed", e.Lines)
}

// NewInputError wraps err as an InputError for the given operation.
func NewInputError(op string, err error) *InputError {
	return &InputError{Op: op, Err: err}
}
