// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides reusable UI widgets for the lantern TUI:
// the status bar, thinking spinner, and non-blocking toast notifications.
package components
