// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import "context"

// =============================================================================
// CHAT TYPES
// =============================================================================

// ChatMessage is one turn of history sent to the backend.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// NewUserMessage creates a user chat message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewSystemMessage creates a system chat message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// Options holds per-request generation options.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// =============================================================================
// EVENTS
// =============================================================================

// Event is one item in a session's event sequence. Exactly one of the three
// shapes appears per event: a token (Token non-empty), a successful terminal
// (Done true), or a failed terminal (Err non-nil).
type Event struct {
	Token string
	Done  bool
	Err   error

	// CompletionTokens is the backend-reported token count, set on Done.
	CompletionTokens int
}

// Terminal reports whether the event ends the session.
func (e Event) Terminal() bool {
	return e.Done || e.Err != nil
}

// =============================================================================
// TRANSPORT INTERFACE
// =============================================================================

// Transport opens streaming sessions against an inference backend.
//
// Implementations must guarantee at most one terminal event per session and
// must tolerate Cancel at any time after Open.
type Transport interface {
	Open(ctx context.Context, history []ChatMessage, model string, opts Options, requestID string) (*Session, error)
}
