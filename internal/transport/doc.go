// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport provides the streaming connection to an inference
// backend.
//
// A Session is a lazy, finite, non-restartable sequence of events delivered
// on a channel: zero or more token events followed by exactly one terminal
// event (done or error), after which the channel is closed. Cancellation
// closes the sequence early with no terminal event; the consumer finalizes
// with whatever partial content accumulated. The channel shape makes the
// one-terminal-event contract structural rather than conventional.
package transport
