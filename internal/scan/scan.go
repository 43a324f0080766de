// Package scan implements literal, case-sensitive substring search over
// unit text and the bounded context windows shown in the candidate list.
package scan

import (
	"strings"
	"unicode/utf8"
)

// Occurrences returns the byte offset of every literal occurrence of needle
// in text. Overlapping occurrences are each reported: the scan advances one
// byte past each match start.
func Occurrences(text, needle string) []int {
	if needle == "" {
		return nil
	}
	var offs []int
	start := 0
	for {
		idx := strings.Index(text[start:], needle)
		if idx < 0 {
			return offs
		}
		offs = append(offs, start+idx)
		start += idx + 1
	}
}

// Snippet cuts a window of up to contextChars bytes either side of the
// match at idx, clipped at the text bounds, with the matched substring kept
// intact, then compacts it to a single display line. Window edges never
// split a UTF-8 sequence: a partial rune is dropped from the window.
func Snippet(text string, idx, needleLen, contextChars int) string {
	start := idx - contextChars
	if start < 0 {
		start = 0
	}
	end := idx + needleLen + contextChars
	if end > len(text) {
		end = len(text)
	}

	for start < idx && !utf8.RuneStart(text[start]) {
		start++
	}
	for end > idx+needleLen && end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}

	return CompactOneLine(text[start:end])
}

// CompactOneLine collapses whitespace runs to single spaces and trims.
func CompactOneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
