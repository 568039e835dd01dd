// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/lanternchat/lantern-tui/internal/transport"
	"github.com/lanternchat/lantern-tui/internal/util"
)

// MaxMessages is the maximum number of messages kept in history. Older
// messages are pruned to bound memory.
const MaxMessages = 1000

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Temporary conversations are never persisted.
	Temporary bool `json:"temporary,omitempty"`

	// Messages
	Messages []*Message `json:"messages"`

	// System prompt (optional)
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        generateConversationID(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// NewTemporaryConversation creates a conversation that will not be persisted.
func NewTemporaryConversation() *Conversation {
	conv := NewConversation()
	conv.Temporary = true
	return conv
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage adds a message to the conversation.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.updateTitle()
	c.pruneOldMessages()
}

// AddUserMessage creates and adds a user message.
func (c *Conversation) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	c.AddMessage(msg)
	return msg
}

// AddAssistantMessage creates and adds a streaming assistant message.
func (c *Conversation) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	c.AddMessage(msg)
	return msg
}

// GetMessageByID returns a message by its ID, or nil.
func (c *Conversation) GetMessageByID(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// RemoveMessage removes a message by ID. Used to clean up optimistic
// placeholders for an expired queued submission.
func (c *Conversation) RemoveMessage(id string) bool {
	for i, msg := range c.Messages {
		if msg.ID == id {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			c.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// StreamingMessage returns the message currently streaming, or nil. The
// invariant is at most one streaming message per conversation.
func (c *Conversation) StreamingMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].IsStreaming {
			return c.Messages[i]
		}
	}
	return nil
}

// UserTurns counts the user messages in the conversation. The retry policy
// only applies on the first user turn.
func (c *Conversation) UserTurns() int {
	n := 0
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			n++
		}
	}
	return n
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// TRANSPORT CONVERSION
// =============================================================================

// History converts the conversation into the transport's chat format. The
// currently streaming message and error messages are excluded: neither is
// settled content the backend should see.
func (c *Conversation) History() []transport.ChatMessage {
	history := make([]transport.ChatMessage, 0, len(c.Messages)+1)

	if c.SystemPrompt != "" {
		history = append(history, transport.NewSystemMessage(c.SystemPrompt))
	}

	for _, msg := range c.Messages {
		if msg.IsStreaming || msg.IsError {
			continue
		}
		if msg.Content == "" {
			continue
		}
		history = append(history, transport.ChatMessage{
			Role:    msg.Role.String(),
			Content: msg.Content,
		})
	}

	return history
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle derives a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}

	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = util.Truncate(util.CollapseWhitespace(msg.Content), 50)
			return
		}
	}
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.UpdatedAt = time.Now()
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}

// =============================================================================
// METADATA
// =============================================================================

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Preview      string    `json:"preview"`
}

// Meta returns metadata about the conversation.
func (c *Conversation) Meta() ConversationMeta {
	preview := ""
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			preview = msg.Preview(80)
			break
		}
	}

	return ConversationMeta{
		ID:           c.ID,
		Title:        c.GetTitle(),
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Preview:      preview,
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "conv_" + hex.EncodeToString(bytes)
}

// pruneOldMessages trims history above MaxMessages, preserving system
// messages.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}

	var system []*Message
	var rest []*Message
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	if len(rest) > MaxMessages {
		rest = rest[len(rest)-MaxMessages:]
	}

	c.Messages = make([]*Message, 0, len(system)+len(rest))
	c.Messages = append(c.Messages, system...)
	c.Messages = append(c.Messages, rest...)
}
