// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"errors"
	"fmt"
)

// ConstructionError describes fatal error of transaction assembling: dust output, oversize
// runestone, script encoding failure. Such errors are not retried.
type ConstructionError struct {
	Reason string
	Err    error
}

// NewConstructionError is a constructor for ConstructionError.
func NewConstructionError(reason string, err error) *ConstructionError {
	return &ConstructionError{Reason: reason, Err: err}
}

// Error returns error description.
func (e *ConstructionError) Error() string {
	if e.Err == nil {
		return "construction error: " + e.Reason
	}

	return fmt.Sprintf("construction error: %s: %v", e.Reason, e.Err)
}

// Unwrap returns wrapped error.
func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// SigningError describes failed or malformed signer oracle response.
type SigningError struct {
	Input int // -1 when not related to the exact input.
	Err   error
}

// Error returns error description.
func (e *SigningError) Error() string {
	if e.Input < 0 {
		return fmt.Sprintf("signing failed: %v", e.Err)
	}

	return fmt.Sprintf("signing input %d failed: %v", e.Input, e.Err)
}

// Unwrap returns wrapped error.
func (e *SigningError) Unwrap() error {
	return e.Err
}

// BroadcastError describes rejected transaction submission.
type BroadcastError struct {
	TxID string
	Err  error
}

// Error returns error description.
func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast of %s failed: %v", e.TxID, e.Err)
}

// Unwrap returns wrapped error.
func (e *BroadcastError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the caller may retry the operation as is.
func IsRetryable(err error) bool {
	var (
		signingErr   *SigningError
		broadcastErr *BroadcastError
	)

	return errors.As(err, &signingErr) || errors.As(err, &broadcastErr)
}
