// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A Message is owned by the Conversation it belongs to. While a message is
// streaming its content is append-only and mutated only by the stream
// session that created it; once finalized (and persisted) it is immutable.
package model
