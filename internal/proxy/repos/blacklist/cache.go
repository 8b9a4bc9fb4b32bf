package blacklist

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haukened/phishguard/internal/proxy/common/clock"
	"github.com/haukened/phishguard/internal/proxy/common/log"
	"github.com/haukened/phishguard/internal/proxy/common/utils"
	"github.com/haukened/phishguard/internal/proxy/domain"
	"github.com/haukened/phishguard/internal/proxy/metrics"
)

// DefaultRefreshInterval is the minimum time between two refreshes.
const DefaultRefreshInterval = 10 * time.Second

// ErrNoSource is returned by New when no Source is configured.
var ErrNoSource = errors.New("blacklist source is required")

// published pairs a snapshot with the Bloom filter built over its domains.
// Both are immutable once stored.
type published struct {
	snapshot *domain.BlacklistSnapshot
	bloom    BloomFilter
}

// Cache holds the current blacklist snapshot and refreshes it lazily from a
// Source. Lookups read the snapshot through an atomic pointer and never block
// on a concurrent refresh; a failed refresh keeps the previous snapshot.
type Cache struct {
	source   Source
	clock    clock.Clock
	logger   log.Logger
	interval time.Duration
	factory  BloomFactory
	fpRate   float64

	current     atomic.Pointer[published]
	lastRefresh atomic.Int64 // unix nanos of the last successful refresh; 0 = never
	refreshMu   sync.Mutex
}

// Options configures a Cache.
type Options struct {
	Source          Source
	Clock           clock.Clock
	Logger          log.Logger
	RefreshInterval time.Duration
	// optional Bloom prefilter; nil disables it
	BloomFactory BloomFactory
	FPRate       float64
}

// New constructs a Cache and performs the initial load. A failed initial load
// is logged and leaves an empty snapshot; the next check retries.
func New(ctx context.Context, opts Options) (*Cache, error) {
	if opts.Source == nil {
		return nil, ErrNoSource
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	c := &Cache{
		source:   opts.Source,
		clock:    opts.Clock,
		logger:   opts.Logger,
		interval: opts.RefreshInterval,
		factory:  opts.BloomFactory,
		fpRate:   opts.FPRate,
	}
	c.current.Store(&published{snapshot: domain.EmptySnapshot()})
	if err := c.Refresh(ctx); err != nil {
		c.logger.Error(map[string]any{"error": err}, "Initial blacklist load failed")
	}
	return c, nil
}

// Snapshot returns the currently published snapshot.
func (c *Cache) Snapshot() *domain.BlacklistSnapshot {
	return c.current.Load().snapshot
}

// ShouldRefresh reports whether the refresh interval has elapsed since the
// last successful refresh.
func (c *Cache) ShouldRefresh() bool {
	last := c.lastRefresh.Load()
	if last == 0 {
		return true
	}
	return c.clock.Now().Sub(time.Unix(0, last)) >= c.interval
}

// Refresh fetches the active lists and publishes a new snapshot. On error the
// previous snapshot stays in place and the error is returned for logging.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx)
}

// maybeRefresh refreshes when due. If another worker is already refreshing it
// returns immediately and the caller reads the current snapshot.
func (c *Cache) maybeRefresh(ctx context.Context) {
	if !c.ShouldRefresh() {
		return
	}
	if !c.refreshMu.TryLock() {
		return
	}
	defer c.refreshMu.Unlock()
	if !c.ShouldRefresh() {
		return
	}
	if err := c.refreshLocked(ctx); err != nil {
		c.logger.Error(map[string]any{"error": err}, "Blacklist refresh failed")
	}
}

func (c *Cache) refreshLocked(ctx context.Context) error {
	rawDomains, err := c.source.FetchActiveDomains(ctx)
	if err != nil {
		metrics.RecordRefresh(false, 0, 0)
		return fmt.Errorf("fetch domains: %w", err)
	}
	rawCidrs, err := c.source.FetchActiveCidrs(ctx)
	if err != nil {
		metrics.RecordRefresh(false, 0, 0)
		return fmt.Errorf("fetch cidrs: %w", err)
	}

	domains := make([]string, 0, len(rawDomains))
	for _, d := range rawDomains {
		if cn := utils.CanonicalHost(d); cn != "" {
			domains = append(domains, cn)
		}
	}
	networks := make([]netip.Prefix, 0, len(rawCidrs))
	for _, raw := range rawCidrs {
		p, err := ParseCIDR(raw)
		if err != nil {
			c.logger.Error(map[string]any{"cidr": raw, "error": err}, "Invalid CIDR in blacklist, skipping")
			continue
		}
		networks = append(networks, p)
	}

	now := c.clock.Now()
	next := &published{snapshot: domain.NewBlacklistSnapshot(domains, networks, now)}
	if c.factory != nil {
		next.bloom = c.factory.Build(next.snapshot.Domains(), c.fpRate)
	}
	prev := c.current.Swap(next)
	c.lastRefresh.Store(now.UnixNano())

	metrics.RecordRefresh(true, next.snapshot.DomainCount(), next.snapshot.NetworkCount())
	c.logDiff(next.snapshot.Diff(prev.snapshot))
	return nil
}

func (c *Cache) logDiff(d domain.SnapshotDiff) {
	if d.Empty() {
		return
	}
	if len(d.DomainsAdded) > 0 {
		c.logger.Debug(map[string]any{"domains": d.DomainsAdded}, "Blacklist domains added")
	}
	if len(d.DomainsRemoved) > 0 {
		c.logger.Debug(map[string]any{"domains": d.DomainsRemoved}, "Blacklist domains removed")
	}
	if len(d.NetworksAdded) > 0 {
		c.logger.Debug(map[string]any{"cidrs": d.NetworksAdded}, "Blacklist CIDRs added")
	}
	if len(d.NetworksRemoved) > 0 {
		c.logger.Debug(map[string]any{"cidrs": d.NetworksRemoved}, "Blacklist CIDRs removed")
	}
}

// IsBlacklisted refreshes the snapshot if due, then checks host and each of its
// ancestor domains, followed by CIDR membership of ip. Domain matches win over
// IP matches. The returned reason is empty when nothing matched.
func (c *Cache) IsBlacklisted(ctx context.Context, host string, ip netip.Addr) (bool, string) {
	c.maybeRefresh(ctx)
	cur := c.current.Load()

	name := strings.ToLower(host)
	if matched, ok := c.matchDomain(cur, name); ok {
		c.logger.Debug(map[string]any{"host": name, "matched": matched}, "Blacklisted domain")
		return true, "blacklisted domain: " + matched
	}
	if n, ok := cur.snapshot.MatchIP(ip); ok {
		c.logger.Debug(map[string]any{"host": name, "ip": ip.String(), "cidr": n.String()}, "Blacklisted IP range")
		return true, "blacklisted ip range: " + n.String()
	}
	return false, ""
}

// matchDomain consults the Bloom prefilter for each candidate before the
// authoritative set; a definite negative skips the map lookup.
func (c *Cache) matchDomain(cur *published, name string) (string, bool) {
	if cur.bloom == nil {
		return cur.snapshot.MatchDomain(name)
	}
	for _, cand := range domain.Candidates(name) {
		if !cur.bloom.MightContain(cand) {
			continue
		}
		if cur.snapshot.ContainsDomain(cand) {
			return cand, true
		}
	}
	return "", false
}

// ParseCIDR parses a network in CIDR notation. A bare address is accepted as a
// single-host network; a prefix with host bits set is rejected.
func ParseCIDR(raw string) (netip.Prefix, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return netip.Prefix{}, errors.New("empty cidr")
	}
	if !strings.Contains(raw, "/") {
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return netip.Prefix{}, err
		}
		addr = addr.Unmap()
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}
	p, err := netip.ParsePrefix(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	if p != p.Masked() {
		return netip.Prefix{}, fmt.Errorf("%s has host bits set", raw)
	}
	return p, nil
}
