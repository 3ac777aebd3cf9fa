package loader

import (
	"errors"
	"fmt"
)

// Kind classifies a load failure. Only timeout and fetch failures are worth
// retrying; a malformed artifact stays malformed no matter how often it is
// fetched.
type Kind int

const (
	// KindTimeout means the fetch/evaluate operation exceeded its deadline.
	KindTimeout Kind = iota
	// KindFetch means the underlying source could not produce the module body.
	KindFetch
	// KindEvaluation means the module body was produced but could not be
	// evaluated (malformed artifact).
	KindEvaluation
	// KindContract means evaluation produced a value that does not satisfy
	// the module contract.
	KindContract
)

// String returns the wire-stable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindFetch:
		return "fetchError"
	case KindEvaluation:
		return "evaluationError"
	case KindContract:
		return "contractViolation"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind may succeed on retry.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindFetch
}

// Error is a classified load failure for a single module.
type Error struct {
	Kind Kind
	ID   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load %s: %s", e.ID, e.Kind)
	}
	return fmt.Sprintf("load %s: %s: %v", e.ID, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a classified load failure.
func NewError(kind Kind, id string, err error) *Error {
	return &Error{Kind: kind, ID: id, Err: err}
}

// KindOf extracts the classification from err. Unclassified errors are
// treated as fetch failures, the retryable default for transport problems.
func KindOf(err error) (Kind, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return KindFetch, false
}

// Retryable reports whether err may succeed on a subsequent attempt.
func Retryable(err error) bool {
	kind, _ := KindOf(err)
	return kind.Retryable()
}
