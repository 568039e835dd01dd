// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator implements the message-send state machine.
//
// The orchestrator decides whether a prompt can be sent right now, queues it
// while storage warms up, prevents duplicate submissions, streams the
// response token-by-token, recovers from degenerate outcomes (empty
// responses, stalled streams), and reconciles optimistic in-memory state
// against the persisted conversation store.
//
// # Key Types
//
//   - Orchestrator: the core; all state behind one mutex
//   - Lock: single-owner submission lock with a 30s force-release watchdog
//   - Slot: single pending submission held while storage is connecting
//   - RetryPolicy: bounded retry for blank first-turn responses
//   - Watchdog: periodic sweep that force-finalizes stuck streams
//   - SkipMarker: one-shot hydration suppression for new conversations
//
// # State machine
//
// The orchestrator is always in exactly one of Idle, Queued, Sending,
// Streaming, or Recovering. Transitions happen only inside the mutex through
// a single transition function; stream readers run in the submitting
// goroutine and mutate messages only through orchestrator methods.
package orchestrator
