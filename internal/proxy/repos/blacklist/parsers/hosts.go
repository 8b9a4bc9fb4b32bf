package parsers

import (
	"bufio"
	"io"
	"net/netip"
	"strings"

	"github.com/haukened/phishguard/internal/proxy/common/log"
)

// ParseHosts parses an /etc/hosts style deny list ("0.0.0.0 evil.example").
// The address column is ignored; every valid host name after it becomes a
// domain entry. Hosts lists carry no networks, so Cidrs is always empty.
//
// Rules:
//   - Skip comments (whole-line or inline after '#') and blank lines
//   - Skip wildcard tokens and names starting with '.'
//   - Skip single-label names such as "localhost" or "broadcasthost"
//   - De-duplicate by canonical name, preserving first-seen order
func ParseHosts(r io.Reader, source string, logger log.Logger) (Entries, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	var out Entries
	logger.Debug(map[string]any{"source": source}, "parse_hosts_start")

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(stripInlineComment(stripLineBOM(scanner.Text())))
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			logger.Debug(map[string]any{"source": source, "line": lineNum}, "hosts_no_hostnames")
			continue
		}

		for _, raw := range fields[1:] {
			if strings.HasPrefix(raw, ".") || strings.Contains(raw, "*") {
				logger.Debug(map[string]any{"source": source, "line": lineNum, "raw": raw}, "hosts_skip_invalid_token")
				continue
			}
			name := normalizeDomain(raw)
			if !isValidDomain(name) {
				logger.Debug(map[string]any{"source": source, "line": lineNum, "name": name}, "hosts_skip_invalid_name")
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out.Domains = append(out.Domains, name)
		}
	}

	if err := scanner.Err(); err != nil {
		return Entries{}, err
	}
	logger.Debug(map[string]any{"source": source, "domains": len(out.Domains)}, "parse_hosts_done")
	return out, nil
}

// Format names a deny list layout.
type Format int

const (
	// FormatList is one domain, CIDR or address per line.
	FormatList Format = iota
	// FormatHosts is "<address> <name> [<name>...]" per line.
	FormatHosts
)

func (f Format) String() string {
	if f == FormatHosts {
		return "hosts"
	}
	return "list"
}

// DetectFormat picks the layout of a deny list. Files named "hosts" or with a
// ".hosts" extension are hosts lists. Otherwise the first line that is not
// blank or a comment decides: an address followed by at least one more field
// marks a hosts list.
func DetectFormat(name string, data []byte) Format {
	base := strings.ToLower(name)
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if base == "hosts" || strings.HasSuffix(base, ".hosts") {
		return FormatHosts
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		fields := strings.Fields(stripInlineComment(stripLineBOM(scanner.Text())))
		if len(fields) == 0 {
			continue
		}
		if len(fields) >= 2 {
			if _, err := netip.ParseAddr(fields[0]); err == nil {
				return FormatHosts
			}
		}
		return FormatList
	}
	return FormatList
}

// Parse dispatches to the parser for format.
func Parse(r io.Reader, format Format, source string, logger log.Logger) (Entries, error) {
	if format == FormatHosts {
		return ParseHosts(r, source, logger)
	}
	return ParseList(r, source, logger)
}
