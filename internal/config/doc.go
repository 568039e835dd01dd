// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for lantern.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation with clamping. An optional fsnotify watcher
// reloads the file on change.
//
// Configuration file location:
//   - ~/.lantern/config.toml
//   - Built-in defaults when absent
package config
