// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package compare implements fan-out comparison of model responses.
//
// A Comparator opens one independent stream session per selected target for
// the same prompt, tracks each as its own attempt, and renders partial
// results incrementally. The comparison is complete when every attempt is
// terminal. Exactly one response can then be committed as the canonical
// assistant message; a compact record of all attempts is retained.
//
// This is the one place state legitimately fans out to multiple concurrent
// in-flight sessions sharing a single logical turn.
package compare
