package text

import (
	"strings"
	"unicode/utf8"
)

// Truncate returns valid UTF-8 of at most n bytes. Invalid byte sequences
// become U+FFFD and a cut never lands inside a multi-byte rune.
func Truncate(s string, n int) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
