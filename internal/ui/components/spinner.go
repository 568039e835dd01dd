// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"

	"github.com/lanternchat/lantern-tui/internal/ui/styles"
)

// NewSpinner creates the thinking spinner. ASCII frames keep it legible on
// terminals without wide glyph support.
func NewSpinner(theme *styles.Theme) spinner.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = theme.Spinner
	return sp
}

// ThinkingLine renders the "waiting for first token" line shown while a
// request is in flight but nothing has streamed yet.
func ThinkingLine(theme *styles.Theme, frame string, elapsed time.Duration) string {
	text := fmt.Sprintf("%s thinking... %s", frame, formatElapsed(elapsed))
	return theme.ThinkingText.Render(text)
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return ""
	}
	return fmt.Sprintf("(%ds)", int(d.Seconds()))
}
