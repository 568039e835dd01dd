// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view for the lantern TUI.
//
// The view is a thin rendering layer over the send orchestrator: it reads
// race-free message snapshots, forwards input, and never owns streaming
// state itself. Background events (queue drain, watchdog, storage failure)
// arrive as notices pushed through the Bubble Tea program.
//
// Besides the main chat surface the package hosts two overlays: the
// conversation picker (/list, /resume) and the model comparison view
// (/compare, /use).
package chat
