package domain

import (
	"net/netip"
	"sort"
	"strings"
	"time"
)

// BlacklistSnapshot is an immutable, point-in-time view of denied domains and
// denied networks. It is replaced wholesale on refresh, never mutated.
type BlacklistSnapshot struct {
	domains  map[string]struct{}
	networks []netip.Prefix
	LoadedAt time.Time
}

// NewBlacklistSnapshot copies domains and networks into a new snapshot.
// Domains are expected in canonical form (lower-case, no trailing dot).
func NewBlacklistSnapshot(domains []string, networks []netip.Prefix, loadedAt time.Time) *BlacklistSnapshot {
	s := &BlacklistSnapshot{
		domains:  make(map[string]struct{}, len(domains)),
		networks: make([]netip.Prefix, 0, len(networks)),
		LoadedAt: loadedAt,
	}
	for _, d := range domains {
		if d == "" {
			continue
		}
		s.domains[d] = struct{}{}
	}
	seen := make(map[netip.Prefix]struct{}, len(networks))
	for _, n := range networks {
		n = n.Masked()
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		s.networks = append(s.networks, n)
	}
	return s
}

// EmptySnapshot returns a snapshot that matches nothing.
func EmptySnapshot() *BlacklistSnapshot {
	return NewBlacklistSnapshot(nil, nil, time.Time{})
}

// DomainCount returns the number of denied domains.
func (s *BlacklistSnapshot) DomainCount() int { return len(s.domains) }

// NetworkCount returns the number of denied networks.
func (s *BlacklistSnapshot) NetworkCount() int { return len(s.networks) }

// Domains returns the denied domains in sorted order.
func (s *BlacklistSnapshot) Domains() []string {
	out := make([]string, 0, len(s.domains))
	for d := range s.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Networks returns a copy of the denied networks.
func (s *BlacklistSnapshot) Networks() []netip.Prefix {
	out := make([]netip.Prefix, len(s.networks))
	copy(out, s.networks)
	return out
}

// ContainsDomain reports an exact membership test, without ancestor matching.
func (s *BlacklistSnapshot) ContainsDomain(name string) bool {
	_, ok := s.domains[name]
	return ok
}

// Candidates returns name followed by each ancestor formed by stripping the
// leftmost label, stopping before the bare top-level label:
// "x.a.evil.com" -> ["x.a.evil.com", "a.evil.com", "evil.com"].
func Candidates(name string) []string {
	out := []string{name}
	rest := name
	for {
		i := strings.IndexByte(rest, '.')
		if i < 0 {
			break
		}
		rest = rest[i+1:]
		if rest == "" || !strings.Contains(rest, ".") {
			break
		}
		out = append(out, rest)
	}
	return out
}

// MatchDomain returns the first denied entry equal to name or one of its ancestors.
func (s *BlacklistSnapshot) MatchDomain(name string) (string, bool) {
	if name == "" || len(s.domains) == 0 {
		return "", false
	}
	for _, c := range Candidates(name) {
		if _, ok := s.domains[c]; ok {
			return c, true
		}
	}
	return "", false
}

// MatchIP returns the first denied network containing addr.
func (s *BlacklistSnapshot) MatchIP(addr netip.Addr) (netip.Prefix, bool) {
	if !addr.IsValid() {
		return netip.Prefix{}, false
	}
	addr = addr.Unmap()
	for _, n := range s.networks {
		if n.Contains(addr) {
			return n, true
		}
	}
	return netip.Prefix{}, false
}

// SnapshotDiff lists entries that changed between two snapshots. It is used
// for observability only.
type SnapshotDiff struct {
	DomainsAdded    []string
	DomainsRemoved  []string
	NetworksAdded   []string
	NetworksRemoved []string
}

// Empty reports whether nothing changed.
func (d SnapshotDiff) Empty() bool {
	return len(d.DomainsAdded) == 0 && len(d.DomainsRemoved) == 0 &&
		len(d.NetworksAdded) == 0 && len(d.NetworksRemoved) == 0
}

// Diff compares s against prev. A nil prev is treated as empty.
func (s *BlacklistSnapshot) Diff(prev *BlacklistSnapshot) SnapshotDiff {
	if prev == nil {
		prev = EmptySnapshot()
	}
	var d SnapshotDiff
	for name := range s.domains {
		if _, ok := prev.domains[name]; !ok {
			d.DomainsAdded = append(d.DomainsAdded, name)
		}
	}
	for name := range prev.domains {
		if _, ok := s.domains[name]; !ok {
			d.DomainsRemoved = append(d.DomainsRemoved, name)
		}
	}
	cur := prefixSet(s.networks)
	old := prefixSet(prev.networks)
	for n := range cur {
		if _, ok := old[n]; !ok {
			d.NetworksAdded = append(d.NetworksAdded, n.String())
		}
	}
	for n := range old {
		if _, ok := cur[n]; !ok {
			d.NetworksRemoved = append(d.NetworksRemoved, n.String())
		}
	}
	sort.Strings(d.DomainsAdded)
	sort.Strings(d.DomainsRemoved)
	sort.Strings(d.NetworksAdded)
	sort.Strings(d.NetworksRemoved)
	return d
}

func prefixSet(ps []netip.Prefix) map[netip.Prefix]struct{} {
	m := make(map[netip.Prefix]struct{}, len(ps))
	for _, p := range ps {
		m[p] = struct{}{}
	}
	return m
}
