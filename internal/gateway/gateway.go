// Package gateway is the thin client boundary to the remote
// construction-documentation backend.
//
// A captured form becomes one base-record write plus one form-type-specific
// write on the remote side. The gateway owns duplicate detection (the base
// payload carries the queue-local ID); callers retry the same logical
// operation and never fabricate a new one.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/conformly/fieldsync/internal/domain"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SubmitResult carries the outcome of a successful submission.
type SubmitResult struct {
	// ServerID is the opaque identifier the backend assigned to the base
	// form record.
	ServerID string
}

// Gateway pushes a validated captured form to the remote backend.
//
// Submit performs the base write and the form-type-specific sub-write as one
// logical operation: if either fails, the whole submission failed and no
// partial state is reported. Errors are classified as TransientError
// (worth retrying blindly) or RejectedError (needs user correction).
type Gateway interface {
	Submit(ctx context.Context, form *domain.CapturedForm) (*SubmitResult, error)
}

// =============================================================================
// Error Taxonomy
// =============================================================================

// TransientError indicates a transport or availability failure. The
// submission may succeed if simply retried later.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient sync error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// RejectedError indicates the backend refused the payload (validation or
// authorization). Retrying without user correction will not help.
type RejectedError struct {
	StatusCode int
	Detail     string
}

func (e *RejectedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("rejected by server (HTTP %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("rejected by server (HTTP %d)", e.StatusCode)
}

// NewTransientError wraps an error as transient.
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether the error chain contains a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRejected reports whether the error chain contains a RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
