package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lowercases s and collapses every run of non-alphanumerics into a
// single dash. It returns "" when nothing usable remains.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// FromName derives a catalog slug from a display name.
func FromName(s string) string {
	if n := Normalize(s); n != "" {
		return n
	}
	return "plan"
}

func Valid(s string) bool {
	return s != "" && Normalize(s) == s
}
