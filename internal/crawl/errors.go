package crawl

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies execution failures so retry decisions are made from
// explicit classification rather than error type inspection at call sites.
type ErrorKind string

// Failure classes from the error taxonomy.
const (
	ErrKindFetch     ErrorKind = "fetch"
	ErrKindParse     ErrorKind = "parse"
	ErrKindExecution ErrorKind = "execution"
	ErrKindTimeout   ErrorKind = "timeout"
)

// CrawlError wraps a failure with its classification.
type CrawlError struct {
	Kind ErrorKind
	Err  error
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *CrawlError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps a network/HTTP failure.
func NewFetchError(err error) error {
	return &CrawlError{Kind: ErrKindFetch, Err: err}
}

// NewParseError wraps a malformed-document failure.
func NewParseError(err error) error {
	return &CrawlError{Kind: ErrKindParse, Err: err}
}

// NewExecutionError wraps an unexpected runtime failure.
func NewExecutionError(err error) error {
	return &CrawlError{Kind: ErrKindExecution, Err: err}
}

// ClassifyError maps an error to its kind. Unwrapped errors default to the
// execution class, which is retryable.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *CrawlError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrKindFetch
	}
	return ErrKindExecution
}

// IsRetryable reports whether a failure of this kind should be retried.
// Parse failures are not: retrying will not fix malformed upstream content.
func (k ErrorKind) IsRetryable() bool {
	return k != ErrKindParse
}
