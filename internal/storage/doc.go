// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for lantern TUI.
//
// The Store interface is the persistence boundary: a sqlite-backed
// implementation lives in this package, and every method tolerates being
// called before the database is ready by returning ErrNotReady instead of
// panicking. The Gate tracks readiness as an explicit tri-state phase
// (connecting, ready, error) and signals waiters on phase changes, so
// callers block on a channel rather than polling.
package storage
