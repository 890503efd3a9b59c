package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks synchronous rejections of caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks lookups of records that do not exist.
	ErrNotFound = errors.New("not found")
)

// InvalidInput wraps ErrInvalidInput with a formatted detail.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// FailureKind classifies a failed fetch.
type FailureKind string

const (
	FailureTimeout    FailureKind = "timeout"
	FailureHTTP       FailureKind = "http_error"
	FailureConnection FailureKind = "connection_error"
	FailureBlocked    FailureKind = "blocked"
)

// FetchError is returned by the fetcher once all attempts are spent.
type FetchError struct {
	Kind     FailureKind
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind carried by err, or "" when err is not a
// fetch failure.
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsBlocked reports whether err is a blocked fetch.
func IsBlocked(err error) bool {
	return KindOf(err) == FailureBlocked
}
