// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/lanternchat/lantern-tui/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// Content
	Content string `json:"content"`

	// Streaming state (not persisted). While IsStreaming the accumulator is
	// the authoritative content; Content is set on finalize.
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	IsStreaming   bool            `json:"-"`
	streamContent strings.Builder `json:"-"`

	// interim holds a placeholder ("connecting", "retrying") shown only
	// while streaming and before any real token has arrived.
	interim string

	// Error state. An error message is finalized; its Content carries the
	// explanation (or partial output).
	IsError bool `json:"is_error,omitempty"`

	// Metrics (assistant messages)
	ResponseTime time.Duration `json:"response_time_ns,omitempty"`
	TTFT         time.Duration `json:"ttft_ns,omitempty"`
	TokenCount   int           `json:"token_count,omitempty"`
	TokensPerSec float64       `json:"tokens_per_sec,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new streaming assistant message.
func NewAssistantMessage() *Message {
	return &Message{
		ID:          generateID(),
		Role:        RoleAssistant,
		CreatedAt:   time.Now(),
		IsStreaming: true,
	}
}

// =============================================================================
// STREAMING MUTATION
// =============================================================================

// AppendToken appends a token to a streaming message. Append-only: tokens
// are never reordered or removed. No-op once finalized.
func (m *Message) AppendToken(token string) {
	if !m.IsStreaming {
		return
	}
	m.interim = ""
	m.streamContent.WriteString(token)
}

// SetInterim replaces the visible placeholder for a streaming message that
// has not yet produced tokens. Used for "connecting" and "retrying" states;
// the next real token clears it.
func (m *Message) SetInterim(text string) {
	if !m.IsStreaming {
		return
	}
	m.interim = text
}

// ResetStream discards accumulated tokens so a retry can reuse the same
// message. Only valid while streaming.
func (m *Message) ResetStream() {
	if !m.IsStreaming {
		return
	}
	m.streamContent.Reset()
}

// FinalizeStream completes streaming and records statistics. The message is
// immutable afterwards.
func (m *Message) FinalizeStream(stats *Statistics) {
	if !m.IsStreaming {
		return
	}

	m.Content = m.streamContent.String()
	m.streamContent.Reset()
	m.interim = ""
	m.IsStreaming = false

	if stats != nil {
		m.ResponseTime = stats.TotalDuration
		m.TTFT = stats.TTFT
		m.TokenCount = stats.CompletionTokens
		m.TokensPerSec = stats.TokensPerSecond
	}
}

// FinalizeError ends streaming in an error state with the given explanation.
// Any accumulated partial content is discarded in favor of the explanation.
func (m *Message) FinalizeError(explanation string) {
	m.Content = explanation
	m.streamContent.Reset()
	m.interim = ""
	m.IsStreaming = false
	m.IsError = true
}

// ForceFinalize ends a stuck streaming message: accumulated partial content
// is kept when present, otherwise fallback is used. Always flagged as an
// error so the user sees the turn did not complete normally.
func (m *Message) ForceFinalize(fallback string) {
	if !m.IsStreaming {
		return
	}

	partial := m.streamContent.String()
	if strings.TrimSpace(partial) != "" {
		m.Content = partial
	} else {
		m.Content = fallback
	}
	m.streamContent.Reset()
	m.interim = ""
	m.IsStreaming = false
	m.IsError = true
}

// =============================================================================
// ACCESSORS
// =============================================================================

// DisplayContent returns the content to render: the interim placeholder or
// accumulated tokens while streaming, final content otherwise.
func (m *Message) DisplayContent() string {
	if m.IsStreaming {
		if m.streamContent.Len() == 0 && m.interim != "" {
			return m.interim
		}
		return m.streamContent.String()
	}
	return m.Content
}

// PartialContent returns the tokens accumulated so far for a streaming
// message, excluding any interim placeholder.
func (m *Message) PartialContent() string {
	if m.IsStreaming {
		return m.streamContent.String()
	}
	return m.Content
}

// IsBlankResponse reports whether the finalized content is empty or
// whitespace-only. This is the condition the retry policy tests.
func (m *Message) IsBlankResponse() bool {
	return util.IsBlank(m.Content)
}

// Age returns how long ago the message was created.
func (m *Message) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}

// Preview returns a single-line truncated preview of the message content.
func (m *Message) Preview(maxLen int) string {
	return util.Truncate(util.CollapseWhitespace(m.DisplayContent()), maxLen)
}

// =============================================================================
// STATISTICS TYPE
// =============================================================================

// Statistics holds timing and token count information for one generation.
type Statistics struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	CompletionTokens int

	// Derived on Finalize
	TTFT            time.Duration
	TotalDuration   time.Duration
	TokensPerSecond float64
}

// NewStatistics creates a Statistics with the start time set.
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// RecordFirstToken records when the first token was received.
func (s *Statistics) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes the final statistics.
func (s *Statistics) Finalize(tokenCount int) {
	s.EndTime = time.Now()
	s.CompletionTokens = tokenCount
	s.TotalDuration = s.EndTime.Sub(s.StartTime)

	if s.TotalDuration > 0 {
		s.TokensPerSecond = float64(tokenCount) / s.TotalDuration.Seconds()
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)
}
