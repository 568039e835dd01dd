// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

// =============================================================================
// STATE TYPE
// =============================================================================

// State is the orchestrator's position in the send lifecycle. Exactly one
// state holds at a time; scattered boolean flags are deliberately avoided so
// two flags can never disagree.
type State int

const (
	// StateIdle means no submission is in flight or queued.
	StateIdle State = iota
	// StateQueued means a submission waits in the pending slot for storage.
	StateQueued
	// StateSending means the pre-stream pipeline is running (credit check,
	// conversation creation, optimistic append).
	StateSending
	// StateStreaming means a stream session is consuming token events.
	StateStreaming
	// StateRecovering means a degenerate outcome is being handled (retry
	// wait, forced finalize).
	StateRecovering
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQueued:
		return "queued"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// validTransitions is the authoritative transition table.
var validTransitions = map[State][]State{
	StateIdle:       {StateQueued, StateSending},
	StateQueued:     {StateIdle, StateSending},
	StateSending:    {StateIdle, StateStreaming},
	StateStreaming:  {StateIdle, StateRecovering},
	StateRecovering: {StateIdle, StateStreaming},
}

// canTransition reports whether from → to is a legal transition.
func canTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
