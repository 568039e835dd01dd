// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// STREAM SESSION
// =============================================================================

// Session represents one in-flight request/response cycle. It exists from
// Open until the terminal event, an error, or cancellation, and is never
// reused.
//
// Producer contract: a single goroutine owns the event channel. It sends
// zero or more token events, then exactly one terminal event, then calls
// Close. After Cancel the producer stops sending and closes the channel
// without a terminal event.
type Session struct {
	// RequestID correlates the session with its originating submission.
	RequestID string

	// AssistantMessageID is the in-memory message this session writes to.
	// Set by the orchestrator before consuming events (single-writer rule:
	// only this session's consumer mutates that message).
	AssistantMessageID string

	// StartedAt is the wall-clock start, used for the response-time metric.
	StartedAt time.Time

	// RetryCount is how many times this logical turn has been silently
	// retried after an empty response. Range [0, 2].
	RetryCount int

	events chan Event

	mu       sync.Mutex
	cancel   context.CancelFunc
	canceled bool
}

// NewSession creates a session bound to a cancel function. The cancel
// function must stop the producer; Cancel invokes it at most once.
func NewSession(requestID string, cancel context.CancelFunc) *Session {
	return &Session{
		RequestID: requestID,
		StartedAt: time.Now(),
		events:    make(chan Event, 64),
		cancel:    cancel,
	}
}

// Events returns the session's event sequence. The channel is closed after
// the terminal event, or after cancellation with no terminal event.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Send delivers an event to the consumer. It returns false without sending
// if ctx is done, so a canceled producer never blocks on a departed
// consumer. Producer-side only.
func (s *Session) Send(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close ends the event sequence. Producer-side only, called exactly once.
func (s *Session) Close() {
	close(s.events)
}

// Cancel stops the session. Safe to call at any point after Open and at most
// the first call has effect. After Cancel no further events are delivered.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Canceled reports whether Cancel has been called.
func (s *Session) Canceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

// Elapsed returns the time since the session started.
func (s *Session) Elapsed() time.Duration {
	return time.Since(s.StartedAt)
}
