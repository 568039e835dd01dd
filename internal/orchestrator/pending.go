// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"sync"
	"time"
)

// DefaultQueueExpiry is how stale a pending submission may be at drain time
// before it is discarded instead of sent.
const DefaultQueueExpiry = 30 * time.Second

// =============================================================================
// PENDING SUBMISSION SLOT
// =============================================================================

// PendingSubmission is one send request queued while storage warms up.
type PendingSubmission struct {
	Content     string
	Attachments []string
	EnqueuedAt  time.Time

	// Optimistic message IDs shown while queued, removed if the submission
	// expires before draining.
	UserMessageID  string
	PlaceholderID  string
	ConversationID string
}

// Age returns how long the submission has been queued.
func (p *PendingSubmission) Age(now time.Time) time.Duration {
	return now.Sub(p.EnqueuedAt)
}

// Slot holds at most one pending submission process-wide. It is a single
// slot, not a queue of N: enqueueing while occupied fails, the caller
// surfaces that as a blocked submission.
type Slot struct {
	mu      sync.Mutex
	pending *PendingSubmission
	maxAge  time.Duration
}

// NewSlot creates an empty slot. maxAge <= 0 uses DefaultQueueExpiry.
func NewSlot(maxAge time.Duration) *Slot {
	if maxAge <= 0 {
		maxAge = DefaultQueueExpiry
	}
	return &Slot{maxAge: maxAge}
}

// Enqueue stores a submission if the slot is empty. No overwrite: returns
// false when occupied.
func (s *Slot) Enqueue(sub *PendingSubmission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return false
	}
	if sub.EnqueuedAt.IsZero() {
		sub.EnqueuedAt = time.Now()
	}
	s.pending = sub
	return true
}

// Take removes and returns the pending submission. expired reports whether
// it outlived the drain window; expired submissions must be discarded with
// placeholder cleanup, never sent stale.
func (s *Slot) Take(now time.Time) (sub *PendingSubmission, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil, false
	}
	sub = s.pending
	s.pending = nil
	return sub, sub.Age(now) > s.maxAge
}

// IsEmpty reports whether no submission is queued.
func (s *Slot) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending == nil
}

// Peek returns the queued submission without removing it, or nil.
func (s *Slot) Peek() *PendingSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
