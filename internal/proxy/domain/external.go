package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCertificate marks a TLS certificate verification failure seen while
// probing an origin. It is a verdict-bearing result, not a transport error.
var ErrCertificate = errors.New("certificate verification failed")

// Threat is one entry reported by a threat-intelligence provider.
type Threat struct {
	Type string
	URL  string
}

// ThreatMatch is the result of a threat-intelligence lookup. The zero value
// means nothing was found.
type ThreatMatch struct {
	Threats []Threat
}

// Found reports whether any threat matched.
func (m ThreatMatch) Found() bool { return len(m.Threats) > 0 }

// Info renders every threat as "<type> (<url>)" joined by "; ".
func (m ThreatMatch) Info() string {
	parts := make([]string, 0, len(m.Threats))
	for _, t := range m.Threats {
		parts = append(parts, fmt.Sprintf("%s (%s)", t.Type, t.URL))
	}
	return strings.Join(parts, "; ")
}

// ProbeResult is the first response of an HTTPS request, redirects not followed.
type ProbeResult struct {
	Status   int
	Location string
}

// IsRedirect reports a 3xx status.
func (r ProbeResult) IsRedirect() bool { return r.Status >= 300 && r.Status < 400 }

// Downgrade reports a redirect whose target is plain http.
func (r ProbeResult) Downgrade() bool {
	return r.IsRedirect() && strings.HasPrefix(strings.ToLower(r.Location), "http://")
}
