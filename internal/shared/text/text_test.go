package text

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "unlimited", Truncate("unlimited", 0))
}

func TestTruncate_BacksOffToRuneStart(t *testing.T) {
	// "é" is two bytes; a cut at 4 would split it.
	got := Truncate("abcé-tail", 4)
	assert.Equal(t, "abc", got)
	assert.True(t, utf8.ValidString(got))

	// four-byte rune straddling the limit
	s := strings.Repeat("x", 250) + "😀" + "yyyy"
	got = Truncate(s, 252)
	assert.Equal(t, strings.Repeat("x", 250), got)
	assert.True(t, utf8.ValidString(got))
}

func TestTruncate_ReplacesInvalidBytes(t *testing.T) {
	got := Truncate("bad\xffbody", 100)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "bad�body", got)
}
