// Package apperr defines the error classes shared across the service. Package
// level sentinels wrap one of these so callers (the HTTP layer in particular)
// can classify a failure with errors.Is without knowing every sentinel.
package apperr

import "errors"

var (
	// ErrValidation marks input rejected before any mutation.
	ErrValidation = errors.New("invalid request")
	// ErrData marks missing or insufficient price data.
	ErrData = errors.New("data unavailable")
	// ErrConsistency marks a request that would break ledger invariants.
	ErrConsistency = errors.New("inconsistent request")
	// ErrNotFound marks an unknown portfolio or record.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an attempt to create something that already exists.
	ErrConflict = errors.New("already exists")
)
