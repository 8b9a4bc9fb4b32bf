package utils

import (
	"net/netip"

	"golang.org/x/net/publicsuffix"
)

// ApexDomain returns the registrable domain (eTLD+1) for name, or the canonical
// name itself when it has none (IP literals, bare TLDs).
func ApexDomain(name string) string {
	name = CanonicalHost(name)
	if _, err := netip.ParseAddr(name); err == nil {
		return name
	}
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}
