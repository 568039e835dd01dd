// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"time"

	"github.com/lanternchat/lantern-tui/internal/util"
)

// =============================================================================
// RETRY POLICY
// =============================================================================

const (
	// DefaultMaxRetries bounds silent retries of a blank response. Three
	// total attempts, never a fourth.
	DefaultMaxRetries = 2

	// DefaultRetryBaseDelay is multiplied by the retry count: 1s before the
	// first retry, 2s before the second. Deliberately small and fixed, not
	// general exponential backoff with jitter.
	DefaultRetryBaseDelay = time.Second
)

// RetryPolicy decides whether a degenerate (blank) response should be
// silently retried.
//
// The policy only applies on the first user turn of a conversation. Blank
// responses on later turns are finalized as-is. That asymmetry is inherited
// behavior, kept deliberately pending product clarification.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// NewRetryPolicy returns the policy with defaults applied for zero values.
func NewRetryPolicy(maxRetries int, baseDelay time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultRetryBaseDelay
	}
	return RetryPolicy{MaxRetries: maxRetries, BaseDelay: baseDelay}
}

// ShouldRetry reports whether a completed response should be retried.
// All three conditions must hold: first user turn, blank content, and
// retries remaining.
func (p RetryPolicy) ShouldRetry(userTurns int, content string, retryCount int) bool {
	if userTurns != 1 {
		return false
	}
	if !util.IsBlank(content) {
		return false
	}
	return retryCount < p.MaxRetries
}

// Delay returns how long to wait before the given retry. retryCount is the
// value after incrementing, so the first retry waits 1×BaseDelay.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	return time.Duration(retryCount) * p.BaseDelay
}
