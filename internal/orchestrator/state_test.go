// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateIdle, StateQueued},
		{StateIdle, StateSending},
		{StateQueued, StateIdle},
		{StateQueued, StateSending},
		{StateSending, StateStreaming},
		{StateStreaming, StateRecovering},
		{StateRecovering, StateStreaming},
		{StateStreaming, StateIdle},
		{StateRecovering, StateIdle},
		{StateIdle, StateIdle}, // self-transition always legal
	}
	for _, tr := range allowed {
		if !canTransition(tr.from, tr.to) {
			t.Errorf("canTransition(%s, %s) = false, want true", tr.from, tr.to)
		}
	}

	forbidden := []struct{ from, to State }{
		{StateIdle, StateStreaming},   // must pass through sending
		{StateIdle, StateRecovering},  // nothing to recover
		{StateQueued, StateStreaming}, // drain goes through sending
		{StateSending, StateQueued},   // queueing happens before sending
	}
	for _, tr := range forbidden {
		if canTransition(tr.from, tr.to) {
			t.Errorf("canTransition(%s, %s) = true, want false", tr.from, tr.to)
		}
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateIdle:       "idle",
		StateQueued:     "queued",
		StateSending:    "sending",
		StateStreaming:  "streaming",
		StateRecovering: "recovering",
		State(99):       "unknown",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
