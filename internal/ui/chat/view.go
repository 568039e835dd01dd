// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lanternchat/lantern-tui/internal/model"
	"github.com/lanternchat/lantern-tui/internal/orchestrator"
	"github.com/lanternchat/lantern-tui/internal/ui/components"
	"github.com/lanternchat/lantern-tui/internal/util"
)

// =============================================================================
// CHAT SURFACE
// =============================================================================

func (m Model) renderChat() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	if toasts := m.toasts.Render(m.theme); toasts != "" {
		b.WriteString("\n")
		b.WriteString(toasts)
	}

	return b.String()
}

func (m Model) renderHeader() string {
	brand := m.theme.HeaderBrand.Render("lantern")
	title := ""
	if conv := m.orch.Conversation(); conv != nil {
		if t := conv.GetTitle(); t != "" {
			title = "  " + m.theme.HeaderTitle.Render(t)
		}
	}
	width := m.width
	if width < 1 {
		width = 80
	}
	return m.theme.Header.Width(width).Render(brand + title)
}

func (m Model) renderInput() string {
	line := m.input.View()
	if m.statusMsg != "" {
		line += "\n" + m.theme.ShortcutDesc.Render(m.statusMsg)
	}
	return m.theme.InputContainer.Render(line)
}

// refreshViewport re-renders the message transcript from a race-free
// snapshot and pushes it into the viewport.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderMessages())
}

func (m Model) renderMessages() string {
	views := m.orch.MessageViews()
	if len(views) == 0 {
		return m.theme.InterimText.Render("Say something to get started.")
	}

	var b strings.Builder
	for i, v := range views {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderMessage(v))
	}

	if m.streamingNow() && !anyStreaming(views) {
		b.WriteString("\n\n")
		b.WriteString(components.ThinkingLine(m.theme, m.spinner.View(), time.Since(m.sendStart)))
	}

	return b.String()
}

func (m Model) renderMessage(v orchestrator.MessageView) string {
	var b strings.Builder

	switch v.Role {
	case model.RoleUser:
		b.WriteString(m.theme.UserLabel.Render("you"))
	case model.RoleAssistant:
		b.WriteString(m.theme.AssistantLabel.Render("assistant"))
	default:
		b.WriteString(m.theme.SystemLabel.Render("system"))
	}
	b.WriteString("\n")

	switch {
	case v.IsError:
		b.WriteString(m.theme.MessageError.Render(v.Content))
	case v.IsStreaming:
		// Streaming content renders raw; markdown waits for finalization.
		if v.Content == "" {
			b.WriteString(m.theme.InterimText.Render(m.spinner.View() + " ..."))
		} else {
			b.WriteString(m.theme.MessageBody.Render(v.Content))
		}
	case v.Role == model.RoleAssistant && m.markdown != nil:
		if rendered, err := m.markdown.Render(v.Content); err == nil {
			b.WriteString(strings.TrimRight(rendered, "\n"))
		} else {
			b.WriteString(m.theme.MessageBody.Render(v.Content))
		}
	default:
		b.WriteString(m.theme.MessageBody.Render(v.Content))
	}

	if m.cfg.ShowStats && v.Role == model.RoleAssistant && !v.IsStreaming && !v.IsError && v.TokenCount > 0 {
		b.WriteString("\n")
		b.WriteString(m.theme.MessageStats.Render(formatStats(v)))
	}

	return b.String()
}

func formatStats(v orchestrator.MessageView) string {
	return fmt.Sprintf("%d tokens | %.1f tok/s | %s",
		v.TokenCount, v.TokensPerSec, v.ResponseTime.Round(10*time.Millisecond))
}

func anyStreaming(views []orchestrator.MessageView) bool {
	for _, v := range views {
		if v.IsStreaming {
			return true
		}
	}
	return false
}

func (m Model) renderStatusBar() string {
	width := m.width
	if width < 1 {
		width = 80
	}

	views := m.orch.MessageViews()
	info := components.StatusInfo{
		Model:        m.cfg.Model,
		GatePhase:    m.orch.GatePhase(),
		SendState:    m.orch.State(),
		MessageCount: len(views),
	}
	for i := len(views) - 1; i >= 0; i-- {
		v := views[i]
		if v.Role == model.RoleAssistant && !v.IsStreaming && !v.IsError && v.TokenCount > 0 {
			info.LastTokens = v.TokenCount
			info.LastTokSec = v.TokensPerSec
			break
		}
	}
	return components.RenderStatusBar(m.theme, info, width)
}

// =============================================================================
// CONVERSATION PICKER
// =============================================================================

func (m Model) renderPicker() string {
	var b strings.Builder
	b.WriteString(m.theme.OverlayTitle.Render("Conversations"))
	b.WriteString("\n\n")

	for i, meta := range m.pickerMetas {
		line := fmt.Sprintf("%-40s %3d msgs  %s",
			util.Truncate(pickerLabel(meta), 40), meta.MessageCount,
			meta.UpdatedAt.Format("Jan 2 15:04"))
		if i == m.pickerIndex {
			b.WriteString(m.theme.ListItemSelected.Render(line))
		} else {
			b.WriteString(m.theme.ListItem.Render(line))
		}
		b.WriteString("\n")
		if meta.Preview != "" {
			b.WriteString(m.theme.ListMeta.Render("    " + meta.Preview))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.theme.ShortcutDesc.Render("enter resume | d delete | esc back"))

	return m.theme.OverlayBox.Render(b.String())
}

func pickerLabel(meta model.ConversationMeta) string {
	if meta.Title != "" {
		return meta.Title
	}
	return meta.ID
}

// =============================================================================
// COMPARISON OVERLAY
// =============================================================================

func (m Model) renderCompare() string {
	if m.comparator == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.theme.CompareHeader.Render("Comparing: " + m.comparePrompt))
	b.WriteString("\n\n")

	views := m.comparator.Views()
	panes := make([]string, 0, len(views))
	paneWidth := (m.width / max(len(views), 1)) - 4
	if paneWidth < 24 {
		paneWidth = 24
	}

	for i, v := range views {
		var pane strings.Builder
		pane.WriteString(m.theme.CompareHeader.Render(fmt.Sprintf("[%d] %s", i+1, v.Target)))
		pane.WriteString("\n")
		pane.WriteString(m.theme.ListMeta.Render(v.Status.String()))
		if v.Latency > 0 {
			pane.WriteString(m.theme.ListMeta.Render(fmt.Sprintf("  %s  %d tok", v.Latency.Round(10*time.Millisecond), v.Tokens)))
		}
		pane.WriteString("\n\n")
		if v.Err != "" {
			pane.WriteString(m.theme.CompareFailed.Render(v.Err))
		} else {
			pane.WriteString(m.theme.CompareStreamed.Render(v.Content))
		}

		style := m.theme.ComparePane
		if i == m.compareIndex {
			style = m.theme.CompareWinner
		}
		panes = append(panes, style.Width(paneWidth).Render(pane.String()))
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panes...))
	b.WriteString("\n\n")
	b.WriteString(m.theme.ShortcutDesc.Render("left/right select | enter keep | esc cancel"))

	return b.String()
}
