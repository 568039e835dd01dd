// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"

	"github.com/lanternchat/lantern-tui/internal/model"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is the persistence boundary for conversations and messages.
//
// Implementations must tolerate calls before initialization has finished:
// every query method returns ErrNotReady in that window, never panics.
// Only finalized messages are persisted; SaveMessage rejects a message that
// is still streaming.
type Store interface {
	// Initialize opens the backing store and runs migrations. It is called
	// once, from the Gate's pre-warm goroutine, and honors ctx cancellation.
	Initialize(ctx context.Context) error

	// IsReady reports whether the store can serve queries.
	IsReady() bool

	// CreateConversation persists a new conversation and returns its ID.
	// Temporary conversations are stored but excluded from listings and
	// removed on Close.
	CreateConversation(title string, temporary bool) (string, error)

	// GetConversation loads a conversation with its full message history.
	GetConversation(id string) (*model.Conversation, error)

	// SaveMessage persists a finalized message, appending it to the
	// conversation's ordered history. Saving the same message ID again
	// updates content and statistics in place.
	SaveMessage(convID string, msg *model.Message) error

	// UpdateTitle sets the conversation title.
	UpdateTitle(convID, title string) error

	// ListConversations returns metadata for all non-temporary
	// conversations, most recently updated first.
	ListConversations() ([]model.ConversationMeta, error)

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(id string) error

	// Close releases the backing store. Temporary conversations are purged.
	Close() error
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotReady is returned by query methods called before the store finished
// initializing. Use errors.Is(err, ErrNotReady) to check for this error.
var ErrNotReady = &StoreError{Message: "storage not ready"}

// ErrConversationNotFound is returned when a conversation doesn't exist.
var ErrConversationNotFound = &StoreError{Message: "conversation not found"}

// ErrMessageStreaming is returned when a caller tries to persist a message
// that has not been finalized yet.
var ErrMessageStreaming = &StoreError{Message: "message is still streaming"}

// StoreError represents a storage-related error.
// It implements the error interface and can be compared using errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}
