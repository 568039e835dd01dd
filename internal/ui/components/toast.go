// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lanternchat/lantern-tui/internal/orchestrator"
	"github.com/lanternchat/lantern-tui/internal/ui/styles"
)

// =============================================================================
// TOAST NOTIFICATIONS
// =============================================================================

// Non-blocking notices in the corner of the screen. Errors from background
// work (queue expiry, watchdog finalization, storage failure) surface here
// without stealing input focus.

// ToastDuration is how long a toast stays visible.
const ToastDuration = 5 * time.Second

// Toast is a single transient notice.
type Toast struct {
	ID      int
	Level   orchestrator.Level
	Text    string
	Created time.Time
}

// ToastTickMsg drives toast expiry.
type ToastTickMsg struct{}

// ToastTickCmd schedules the next expiry check.
func ToastTickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg {
		return ToastTickMsg{}
	})
}

// ToastManager holds the active toasts. Safe for concurrent use; the
// orchestrator's notifier may add toasts from background goroutines.
type ToastManager struct {
	mu     sync.Mutex
	toasts []Toast
	nextID int
}

// NewToastManager creates an empty toast manager.
func NewToastManager() *ToastManager {
	return &ToastManager{}
}

// Add appends a toast.
func (tm *ToastManager) Add(level orchestrator.Level, text string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.nextID++
	tm.toasts = append(tm.toasts, Toast{
		ID:      tm.nextID,
		Level:   level,
		Text:    text,
		Created: time.Now(),
	})
}

// Expire drops toasts older than ToastDuration and reports whether any
// remain.
func (tm *ToastManager) Expire() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	cutoff := time.Now().Add(-ToastDuration)
	kept := tm.toasts[:0]
	for _, t := range tm.toasts {
		if t.Created.After(cutoff) {
			kept = append(kept, t)
		}
	}
	tm.toasts = kept
	return len(tm.toasts) > 0
}

// Active returns a snapshot of the visible toasts.
func (tm *ToastManager) Active() []Toast {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return append([]Toast(nil), tm.toasts...)
}

// DismissOldest removes the oldest toast, if any.
func (tm *ToastManager) DismissOldest() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if len(tm.toasts) > 0 {
		tm.toasts = tm.toasts[1:]
	}
}

// Render renders the active toasts as stacked lines.
func (tm *ToastManager) Render(theme *styles.Theme) string {
	toasts := tm.Active()
	if len(toasts) == 0 {
		return ""
	}

	var out string
	for i, t := range toasts {
		if i > 0 {
			out += "\n"
		}
		switch t.Level {
		case orchestrator.LevelError:
			out += theme.ToastError.Render(styles.StatusIndicators.Error + " " + t.Text)
		case orchestrator.LevelWarn:
			out += theme.ToastWarn.Render(styles.StatusIndicators.Warning + " " + t.Text)
		default:
			out += theme.ToastInfo.Render(styles.StatusIndicators.Info + " " + t.Text)
		}
	}
	return out
}
