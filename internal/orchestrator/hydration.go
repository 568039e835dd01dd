// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import "sync"

// =============================================================================
// HYDRATION SKIP MARKER
// =============================================================================

// SkipMarker suppresses exactly one store-load for a conversation id. It
// covers the window where a brand-new conversation is created and selected
// before its first message has been persisted: a hydration in that window
// would replace newer in-memory state with an empty persisted one.
type SkipMarker struct {
	mu     sync.Mutex
	convID string
}

// Set arms the marker for the given conversation id, replacing any previous
// value.
func (m *SkipMarker) Set(convID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convID = convID
}

// Consume reports whether the marker matches convID, clearing it on a
// match. One-shot: a second call with the same id returns false.
func (m *SkipMarker) Consume(convID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.convID == "" || m.convID != convID {
		return false
	}
	m.convID = ""
	return true
}
