// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import "errors"

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSubmissionBlocked means a send is already in flight or the pending
	// slot is occupied. Transient: surfaced as an info toast, no state is
	// mutated, the caller should simply skip.
	ErrSubmissionBlocked = errors.New("a message is already being sent")

	// ErrStorageUnavailable means the storage gate reached its error phase.
	// Fatal until restart.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNoActiveConversation is returned by operations that need a
	// selected conversation.
	ErrNoActiveConversation = errors.New("no active conversation")
)

// RetryExhaustedText is the fixed content of a message finalized after the
// bounded retry policy gives up.
const RetryExhaustedText = "Unable to get a response. Please try again."

// StuckStreamText is the fallback content for a force-finalized stream that
// produced no tokens.
const StuckStreamText = "Response timed out."

// CreditDeniedError means the usage limiter rejected the submission. The
// denial is terminal for that submission: routed to an upgrade path, never
// queued or retried.
type CreditDeniedError struct {
	Reason string
}

// Error implements the error interface.
func (e *CreditDeniedError) Error() string {
	if e.Reason == "" {
		return "submission denied by usage limits"
	}
	return "submission denied: " + e.Reason
}

// IsCreditDenied reports whether err is a credit denial.
func IsCreditDenied(err error) bool {
	var ce *CreditDeniedError
	return errors.As(err, &ce)
}
