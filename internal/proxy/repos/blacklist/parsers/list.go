package parsers

import (
	"bufio"
	"io"
	"net/netip"
	"strings"

	"github.com/haukened/phishguard/internal/proxy/common/log"
)

// Entries is the parsed content of a deny list.
type Entries struct {
	Domains []string
	Cidrs   []string
}

// ParseList parses a newline-delimited deny list where each line is either a
// domain or a network (CIDR or bare address).
//
// Behavior:
//   - Supports comments starting with '#' (inline or whole-line)
//   - Skips empty lines and tokens that are neither a valid domain nor a network
//   - Canonicalizes domains; leading "*." or "." markers are accepted and dropped
//   - De-duplicates while preserving first-seen order
func ParseList(r io.Reader, source string, logger log.Logger) (Entries, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	var out Entries
	logger.Debug(map[string]any{"source": source}, "parse_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())
		s := strings.TrimSpace(stripInlineComment(line))
		if s == "" {
			continue
		}

		if isNetwork(s) {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out.Cidrs = append(out.Cidrs, s)
			continue
		}

		name := normalizeDomain(s)
		if !isValidDomain(name) {
			logger.Debug(map[string]any{"source": source, "line": lineNum, "raw": s}, "skip_invalid_entry")
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out.Domains = append(out.Domains, name)
	}

	if err := scanner.Err(); err != nil {
		return Entries{}, err
	}
	logger.Debug(map[string]any{
		"source":  source,
		"domains": len(out.Domains),
		"cidrs":   len(out.Cidrs),
	}, "parse_list_done")
	return out, nil
}

func isNetwork(s string) bool {
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
