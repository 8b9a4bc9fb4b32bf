package parsers

import (
	"strings"
	"unicode"

	"github.com/haukened/phishguard/internal/proxy/common/utils"
)

// stripLineBOM removes a UTF-8 byte order mark from the start of a line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// stripInlineComment drops everything from the first '#'.
func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// isValidDomain checks that name looks like a host name:
//   - at most 255 characters
//   - at least two labels
//   - every label 1..63 characters
//   - labels hold only letters, digits, '-' and '_'
//   - the first label starts with a letter or digit
func isValidDomain(name string) bool {
	if len(name) > 255 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) > 63 || len(label) == 0 {
			return false
		}
		for _, r := range label {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
				return false
			}
		}
	}
	first := []rune(labels[0])
	return unicode.IsLetter(first[0]) || unicode.IsDigit(first[0])
}

// normalizeDomain strips wildcard markers and canonicalizes. Every blacklist
// entry already covers its subdomains, so "*.evil.com" and "evil.com" are equivalent.
func normalizeDomain(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.CanonicalHost(name)
}
