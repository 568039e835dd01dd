// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"testing"
	"time"

	"github.com/lanternchat/lantern-tui/internal/orchestrator"
)

func TestToastManager_AddAndActive(t *testing.T) {
	tm := NewToastManager()
	tm.Add(orchestrator.LevelInfo, "hello")
	tm.Add(orchestrator.LevelError, "boom")

	toasts := tm.Active()
	if len(toasts) != 2 {
		t.Fatalf("got %d toasts, want 2", len(toasts))
	}
	if toasts[0].Text != "hello" || toasts[1].Text != "boom" {
		t.Errorf("unexpected toast order: %v", toasts)
	}
	if toasts[0].ID == toasts[1].ID {
		t.Error("toast IDs should be unique")
	}
}

func TestToastManager_Expire(t *testing.T) {
	tm := NewToastManager()
	tm.Add(orchestrator.LevelInfo, "old")

	// Backdate the toast past its lifetime.
	tm.mu.Lock()
	tm.toasts[0].Created = time.Now().Add(-ToastDuration - time.Second)
	tm.mu.Unlock()

	tm.Add(orchestrator.LevelInfo, "fresh")

	if !tm.Expire() {
		t.Fatal("fresh toast should remain")
	}
	toasts := tm.Active()
	if len(toasts) != 1 || toasts[0].Text != "fresh" {
		t.Errorf("expected only the fresh toast, got %v", toasts)
	}
}

func TestToastManager_DismissOldest(t *testing.T) {
	tm := NewToastManager()
	tm.DismissOldest() // no-op on empty

	tm.Add(orchestrator.LevelInfo, "first")
	tm.Add(orchestrator.LevelInfo, "second")
	tm.DismissOldest()

	toasts := tm.Active()
	if len(toasts) != 1 || toasts[0].Text != "second" {
		t.Errorf("expected second toast to remain, got %v", toasts)
	}
}
