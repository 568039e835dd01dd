// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"

	"github.com/lanternchat/lantern-tui/internal/orchestrator"
	"github.com/lanternchat/lantern-tui/internal/storage"
	"github.com/lanternchat/lantern-tui/internal/ui/styles"
)

func TestRenderStatusBar(t *testing.T) {
	theme := styles.NewTheme()

	tests := []struct {
		name string
		info StatusInfo
		want []string
	}{
		{
			name: "ready with stats",
			info: StatusInfo{
				Model:        "llama3.2",
				GatePhase:    storage.PhaseReady,
				SendState:    orchestrator.StateIdle,
				MessageCount: 4,
				LastTokens:   120,
				LastTokSec:   33.5,
			},
			want: []string{"storage", "llama3.2", "4 msgs", "120 tok", "33.5 tok/s"},
		},
		{
			name: "connecting and queued",
			info: StatusInfo{
				Model:     "llama3.2",
				GatePhase: storage.PhaseConnecting,
				SendState: orchestrator.StateQueued,
			},
			want: []string{"connecting", "queued"},
		},
		{
			name: "storage failed",
			info: StatusInfo{
				Model:     "llama3.2",
				GatePhase: storage.PhaseError,
				SendState: orchestrator.StateIdle,
			},
			want: []string{"storage failed"},
		},
		{
			name: "streaming",
			info: StatusInfo{
				Model:     "llama3.2",
				GatePhase: storage.PhaseReady,
				SendState: orchestrator.StateStreaming,
			},
			want: []string{"streaming"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderStatusBar(theme, tt.info, 100)
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("status bar missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestStripForMeasure(t *testing.T) {
	styled := "\x1b[1mhello\x1b[0m world"
	if got := stripForMeasure(styled); got != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}
}
