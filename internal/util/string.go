// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "strings"

// Truncate shortens s to at most maxLen runes, appending "..." when content
// was cut. Rune-based so multibyte characters are never split.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// CollapseWhitespace flattens newlines and carriage returns into spaces.
// Used when deriving single-line titles and previews from message content.
func CollapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// IsBlank reports whether s is empty or whitespace-only. This is the test
// the retry policy applies to a finalized response.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
