// Package sanitize cleans user-entered strings before they reach the store.
package sanitize

import (
	"strings"
	"unicode"
)

const (
	MaxTicketIDLen = 200
	MaxNoteLen     = 5000
	MaxTitleLen    = 120
)

// TicketID trims the input, drops control characters and clamps it to
// MaxTicketIDLen runes.
func TicketID(s string) string {
	return clamp(strings.TrimSpace(strip(s, false)), MaxTicketIDLen)
}

// Note drops control characters other than newlines and tabs and clamps the
// result to MaxNoteLen runes. Surrounding whitespace is kept.
func Note(s string) string {
	return clamp(strip(s, true), MaxNoteLen)
}

// Title cleans a single-line profile field.
func Title(s string) string {
	return clamp(strings.TrimSpace(strip(s, false)), MaxTitleLen)
}

func strip(s string, keepLayout bool) string {
	return strings.Map(func(r rune) rune {
		if keepLayout && (r == '\n' || r == '\t') {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
}

func clamp(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
