package strings

import (
	"strings"
)

// StatusMaxLen bounds messages shown in the unit status line. Longer
// messages are unreadable in status output, and the full error is already
// in the unit log.
const StatusMaxLen = 120

// MinTruncateLen is the smallest maxLen Truncate honours, leaving room for
// one character plus "...".
const MinTruncateLen = 4

// Truncate collapses s to a single line and shortens it to at most maxLen
// runes, ending with "..." when it had to cut.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// StatusMessage prepares s for the status surface.
func StatusMessage(s string) string {
	return Truncate(s, StatusMaxLen)
}
