// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lanternchat/lantern-tui/internal/model"
	"github.com/lanternchat/lantern-tui/internal/orchestrator"
)

// =============================================================================
// BUBBLE TEA MESSAGES
// =============================================================================

// NoticeMsg is a background notice surfaced as a toast. The orchestrator's
// notifier and other background work push these via program.Send.
type NoticeMsg struct {
	Level orchestrator.Level
	Text  string
}

// SubmitDoneMsg reports the outcome of a submission pipeline. The pipeline
// runs in its own goroutine; this fires when it ends, success or not.
type SubmitDoneMsg struct {
	Err error
}

// RefreshTickMsg drives re-rendering while a stream or queue is active.
type RefreshTickMsg time.Time

// ConversationListMsg delivers the stored conversations for the picker.
type ConversationListMsg struct {
	Metas []model.ConversationMeta
	Err   error
}

// HydratedMsg reports the outcome of resuming a conversation.
type HydratedMsg struct {
	Skipped bool
	Err     error
}

// ExportDoneMsg reports the outcome of /export.
type ExportDoneMsg struct {
	Path string
	Err  error
}

// CompareFinishedMsg fires when every comparison attempt is terminal.
type CompareFinishedMsg struct{}

// CommitDoneMsg reports the outcome of committing a comparison response.
type CommitDoneMsg struct {
	Target string
	Err    error
}

// refreshTickCmd schedules the next render refresh.
func refreshTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return RefreshTickMsg(t)
	})
}
