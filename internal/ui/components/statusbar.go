// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	runewidth "github.com/mattn/go-runewidth"

	"github.com/lanternchat/lantern-tui/internal/orchestrator"
	"github.com/lanternchat/lantern-tui/internal/storage"
	"github.com/lanternchat/lantern-tui/internal/ui/styles"
)

// StatusInfo carries everything the status bar renders.
type StatusInfo struct {
	Model        string
	GatePhase    storage.Phase
	SendState    orchestrator.State
	MessageCount int
	LastTokens   int
	LastTokSec   float64
}

// RenderStatusBar renders the one-line status bar at the bottom of the chat.
// Left side: storage and send state. Right side: model and last-response
// stats. The middle is padded to the terminal width using display cells, not
// bytes, so CJK model names don't shift the right block.
func RenderStatusBar(theme *styles.Theme, info StatusInfo, width int) string {
	left := storageSegment(theme, info.GatePhase)
	if send := sendSegment(theme, info.SendState); send != "" {
		left += "  " + send
	}

	right := fmt.Sprintf("%s | %d msgs", info.Model, info.MessageCount)
	if info.LastTokens > 0 {
		right += fmt.Sprintf(" | %d tok @ %.1f tok/s", info.LastTokens, info.LastTokSec)
	}

	gap := width - runewidth.StringWidth(stripForMeasure(left)) - runewidth.StringWidth(right) - 2
	if gap < 1 {
		gap = 1
	}

	return theme.StatusBar.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func storageSegment(theme *styles.Theme, phase storage.Phase) string {
	switch phase {
	case storage.PhaseReady:
		return theme.StorageReady.Render(styles.StatusIndicators.Success + " storage")
	case storage.PhaseError:
		return theme.StorageFailed.Render(styles.StatusIndicators.Error + " storage failed")
	default:
		return theme.StorageWaiting.Render(styles.StatusIndicators.Pending + " connecting")
	}
}

func sendSegment(theme *styles.Theme, state orchestrator.State) string {
	switch state {
	case orchestrator.StateQueued:
		return theme.StatusQueued.Render("queued")
	case orchestrator.StateSending:
		return theme.StatusStreaming.Render("sending")
	case orchestrator.StateStreaming:
		return theme.StatusStreaming.Render("streaming")
	case orchestrator.StateRecovering:
		return theme.StatusQueued.Render("retrying")
	default:
		return ""
	}
}

// stripForMeasure removes ANSI escape sequences so padding math uses the
// visible width of styled segments.
func stripForMeasure(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		case r == '\x1b':
			inEscape = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
