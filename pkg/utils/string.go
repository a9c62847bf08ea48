// Package utils provides common utility functions.
package utils

import (
	"strings"
	"unicode/utf8"
)

const byteOrderMark = "\uFEFF"

// StringHelper provides string utility functions.
type StringHelper struct{}

// NewStringHelper creates a new string helper.
func NewStringHelper() *StringHelper {
	return &StringHelper{}
}

// NormalizeWhitespace replaces multiple whitespace with single space.
func (s *StringHelper) NormalizeWhitespace(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// CanonicalText returns valid UTF-8 with LF line endings, no leading byte order mark
// and no characters XML cannot carry. Every output format reads back the same bytes
// for canonical text.
func (s *StringHelper) CanonicalText(str string) string {
	str = strings.TrimPrefix(str, byteOrderMark)
	str = strings.ToValidUTF8(str, "\uFFFD")

	if strings.ContainsRune(str, '\r') {
		str = strings.ReplaceAll(str, "\r\n", "\n")
		str = strings.ReplaceAll(str, "\r", "\n")
	}

	if strings.IndexFunc(str, isXMLIllegal) >= 0 {
		str = strings.Map(func(r rune) rune {
			if isXMLIllegal(r) {
				return -1
			}

			return r
		}, str)
	}

	return str
}

// isXMLIllegal reports control characters other than tab and LF, and the
// noncharacters U+FFFE and U+FFFF. XLSX cells would store them as U+FFFD.
func isXMLIllegal(r rune) bool {
	return (r < 0x20 && r != '\t' && r != '\n') || r == 0xFFFE || r == 0xFFFF
}

// StripBOM removes a leading UTF-8 byte order mark.
func (s *StringHelper) StripBOM(str string) string {
	return strings.TrimPrefix(str, byteOrderMark)
}

// SplitRunes splits str into chunks of at most size runes.
// An empty string yields a single empty chunk.
func (s *StringHelper) SplitRunes(str string, size int) []string {
	if size <= 0 || utf8.RuneCountInString(str) <= size {
		return []string{str}
	}

	runes := []rune(str)
	chunks := make([]string, 0, len(runes)/size+1)

	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}
