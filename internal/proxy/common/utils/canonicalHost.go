package utils

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// CanonicalHost returns a host name in canonical form:
// - Trimmed of surrounding whitespace
// - Lowercased, with internationalized labels converted to their ASCII (punycode) form
// - No trailing dot
//
// Names that fail IDNA mapping are only lowercased, so a bad label never hides a host
// from blacklist lookups.
func CanonicalHost(name string) string {
	name = strings.TrimSpace(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	if !isASCII(name) {
		if ascii, err := idna.Lookup.ToASCII(name); err == nil {
			name = ascii
		}
	}
	return strings.ToLower(name)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
