package admission

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/haukened/phishguard/internal/proxy/domain"
)

// Contributions of each check.
const (
	ThreatScore      = 1.0
	TLDScore         = 0.3
	SubdomainScore   = 0.3
	HyphenScore      = 0.3
	TyposquatScore   = 0.3
	IPLiteralScore   = 0.6
	DowngradeScore   = 0.3
	CertificateScore = 1.0

	MaxLabels          = 5
	MaxHyphens         = 2
	TyposquatThreshold = 0.9
)

// SuspiciousTLDs are top-level domains frequently abused for phishing.
var SuspiciousTLDs = []string{
	"xyz", "tk", "ml", "ga", "cf", "gq",
	"info", "top", "club", "pw",
	"zip", "review", "country", "kim",
	"work", "party", "click", "loan",
	"download", "racing", "science",
}

// Brands are names commonly imitated by typosquatted domains.
var Brands = []string{"google", "facebook", "amazon", "apple", "microsoft", "naver", "kakao", "daum"}

// DefaultHeuristics returns the checks in evaluation order. Either client may
// be nil to disable its check.
func DefaultHeuristics(threats ThreatLookup, prober Prober) []Heuristic {
	return []Heuristic{
		NewThreatIntelCheck(threats),
		NewTLDCheck(SuspiciousTLDs),
		SubdomainCheck{},
		HyphenCheck{},
		NewTyposquatCheck(Brands),
		IPLiteralCheck{},
		NewDowngradeCheck(prober),
	}
}

// ThreatIntelCheck flags hosts known to a threat-intelligence provider.
type ThreatIntelCheck struct {
	lookup ThreatLookup
}

func NewThreatIntelCheck(lookup ThreatLookup) *ThreatIntelCheck {
	return &ThreatIntelCheck{lookup: lookup}
}

func (c *ThreatIntelCheck) Name() string { return "threatintel" }

func (c *ThreatIntelCheck) Evaluate(ctx context.Context, t domain.Target) domain.Signal {
	if c.lookup == nil {
		return domain.NoSignal()
	}
	m, err := c.lookup.Lookup(ctx, t.Host)
	if err != nil {
		return domain.Inconclusive(err)
	}
	if !m.Found() {
		return domain.NoSignal()
	}
	return domain.Signal{Score: ThreatScore, Reason: "threat intelligence match: " + m.Info()}
}

// TLDCheck flags hosts under a suspicious top-level domain.
type TLDCheck struct {
	tlds map[string]struct{}
}

func NewTLDCheck(tlds []string) *TLDCheck {
	set := make(map[string]struct{}, len(tlds))
	for _, tld := range tlds {
		set[strings.ToLower(tld)] = struct{}{}
	}
	return &TLDCheck{tlds: set}
}

func (c *TLDCheck) Name() string { return "tld" }

func (c *TLDCheck) Evaluate(_ context.Context, t domain.Target) domain.Signal {
	tld := t.Host
	if i := strings.LastIndexByte(tld, '.'); i >= 0 {
		tld = tld[i+1:]
	}
	if _, ok := c.tlds[tld]; ok {
		return domain.Signal{Score: TLDScore, Reason: "suspicious TLD: " + tld}
	}
	return domain.NoSignal()
}

// SubdomainCheck flags hosts with more than MaxLabels labels.
type SubdomainCheck struct{}

func (SubdomainCheck) Name() string { return "subdomains" }

func (SubdomainCheck) Evaluate(_ context.Context, t domain.Target) domain.Signal {
	labels := strings.Count(t.Host, ".") + 1
	if labels > MaxLabels {
		return domain.Signal{Score: SubdomainScore, Reason: fmt.Sprintf("excessive subdomains: %d", labels-2)}
	}
	return domain.NoSignal()
}

// HyphenCheck flags hosts with more than MaxHyphens hyphens.
type HyphenCheck struct{}

func (HyphenCheck) Name() string { return "hyphens" }

func (HyphenCheck) Evaluate(_ context.Context, t domain.Target) domain.Signal {
	n := strings.Count(t.Host, "-")
	if n > MaxHyphens {
		return domain.Signal{Score: HyphenScore, Reason: fmt.Sprintf("excessive hyphens: %d", n)}
	}
	return domain.NoSignal()
}

// TyposquatCheck compares the leftmost label to each brand. Brands are tried
// in sorted order and the first close enough wins.
type TyposquatCheck struct {
	brands []string
}

func NewTyposquatCheck(brands []string) *TyposquatCheck {
	sorted := make([]string, len(brands))
	copy(sorted, brands)
	sort.Strings(sorted)
	return &TyposquatCheck{brands: sorted}
}

func (c *TyposquatCheck) Name() string { return "typosquat" }

func (c *TyposquatCheck) Evaluate(_ context.Context, t domain.Target) domain.Signal {
	label, _, _ := strings.Cut(t.Host, ".")
	for _, brand := range c.brands {
		sim := JaroWinkler(label, brand)
		if sim >= TyposquatThreshold {
			return domain.Signal{
				Score:  TyposquatScore,
				Reason: fmt.Sprintf("possible typosquatting of %s (similarity %.2f)", brand, sim),
			}
		}
	}
	return domain.NoSignal()
}

// IPLiteralCheck flags destinations given as a bare IPv4 or IPv6 address.
type IPLiteralCheck struct{}

func (IPLiteralCheck) Name() string { return "ip_literal" }

func (IPLiteralCheck) Evaluate(_ context.Context, t domain.Target) domain.Signal {
	if _, err := netip.ParseAddr(t.Host); err == nil {
		return domain.Signal{Score: IPLiteralScore, Reason: "IP address host"}
	}
	return domain.NoSignal()
}

// DowngradeCheck probes CONNECT targets for an HTTPS to HTTP redirect. A
// certificate verification failure is terminal; other probe errors are not.
type DowngradeCheck struct {
	prober Prober
}

func NewDowngradeCheck(p Prober) *DowngradeCheck {
	return &DowngradeCheck{prober: p}
}

func (c *DowngradeCheck) Name() string { return "downgrade" }

func (c *DowngradeCheck) Evaluate(ctx context.Context, t domain.Target) domain.Signal {
	if c.prober == nil || !t.IsConnect() {
		return domain.NoSignal()
	}
	res, err := c.prober.Probe(ctx, t.Host)
	if errors.Is(err, domain.ErrCertificate) {
		return domain.Signal{Score: CertificateScore, Reason: "certificate verification failed"}
	}
	if err != nil {
		return domain.Inconclusive(err)
	}
	if res.Downgrade() {
		return domain.Signal{Score: DowngradeScore, Reason: "insecure HTTPS to HTTP redirect"}
	}
	return domain.NoSignal()
}
