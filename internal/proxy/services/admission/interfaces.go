package admission

import (
	"context"
	"net/netip"

	"github.com/haukened/phishguard/internal/proxy/domain"
)

// Blacklist answers whether a host or its address is explicitly denied.
type Blacklist interface {
	IsBlacklisted(ctx context.Context, host string, ip netip.Addr) (bool, string)
}

// DecisionCache memoizes heuristic results per host.
type DecisionCache interface {
	Get(host string) (float64, []string, bool)
	Put(host string, score float64, reasons []string)
}

// Heuristic is one scoring check. Evaluate never fails the admission: an
// internal error is reported in Signal.Err with a zero score.
type Heuristic interface {
	Name() string
	Evaluate(ctx context.Context, t domain.Target) domain.Signal
}

// ThreatLookup queries a threat-intelligence provider.
type ThreatLookup interface {
	Lookup(ctx context.Context, host string) (domain.ThreatMatch, error)
}

// Prober issues a non-redirect-following HTTPS request to a host.
type Prober interface {
	Probe(ctx context.Context, host string) (domain.ProbeResult, error)
}
