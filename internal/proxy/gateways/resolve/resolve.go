// Package resolve turns the Host a client asked for into a port and an address.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/haukened/phishguard/internal/proxy/common/log"
	"github.com/haukened/phishguard/internal/proxy/common/utils"
	"github.com/haukened/phishguard/internal/proxy/domain"
)

const (
	DefaultHTTPSPort = 443
	DefaultHTTPPort  = 80
	DefaultTimeout   = 5 * time.Second
)

// ErrParse reports a host[:port] value that cannot be used.
var ErrParse = errors.New("malformed host")

// LookupFunc resolves a name to its addresses.
type LookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// Options configures a Resolver. Lookup is injectable for tests.
type Options struct {
	Timeout time.Duration
	Logger  log.Logger
	Lookup  LookupFunc
}

// Resolver looks hosts up through the system resolver. Failure is never fatal:
// callers receive an invalid address and carry on with host-only checks.
type Resolver struct {
	timeout time.Duration
	logger  log.Logger
	lookup  LookupFunc
}

// New builds a Resolver with defaults for unset options.
func New(opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Lookup == nil {
		opts.Lookup = net.DefaultResolver.LookupIPAddr
	}
	return &Resolver{timeout: opts.Timeout, logger: opts.Logger, lookup: opts.Lookup}
}

// DefaultPort returns 443 for CONNECT and 80 for every other method.
func DefaultPort(method string) int {
	if method == domain.MethodConnect {
		return DefaultHTTPSPort
	}
	return DefaultHTTPPort
}

// Split separates host[:port]. Bracketed IPv6 literals are unwrapped, and a
// bare IPv6 literal is taken as a host without port.
func Split(hostport, method string) (string, int, error) {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return "", 0, fmt.Errorf("%w: empty host", ErrParse)
	}

	host, portStr := hostport, ""
	switch {
	case strings.HasPrefix(hostport, "["):
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return "", 0, fmt.Errorf("%w: unterminated bracket in %q", ErrParse, hostport)
		}
		host = hostport[1:end]
		rest := hostport[end+1:]
		if rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return "", 0, fmt.Errorf("%w: junk after bracket in %q", ErrParse, hostport)
			}
			portStr = rest[1:]
			if portStr == "" {
				return "", 0, fmt.Errorf("%w: empty port in %q", ErrParse, hostport)
			}
		}
	case strings.Count(hostport, ":") == 1:
		i := strings.IndexByte(hostport, ':')
		host, portStr = hostport[:i], hostport[i+1:]
		if portStr == "" {
			return "", 0, fmt.Errorf("%w: empty port in %q", ErrParse, hostport)
		}
	}

	if host == "" {
		return "", 0, fmt.Errorf("%w: empty host in %q", ErrParse, hostport)
	}
	if portStr == "" {
		return host, DefaultPort(method), nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: bad port %q", ErrParse, portStr)
	}
	return host, port, nil
}

// Resolve returns an address for host, preferring IPv4. IP literals resolve to
// themselves. The zero Addr means the host could not be resolved.
func (r *Resolver) Resolve(ctx context.Context, host string) netip.Addr {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addrs, err := r.lookup(ctx, host)
	if err != nil || len(addrs) == 0 {
		r.logger.Warn(map[string]any{"host": host, "error": err}, "could not resolve host")
		return netip.Addr{}
	}

	var fallback netip.Addr
	for _, a := range addrs {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if addr.Is4() {
			return addr
		}
		if !fallback.IsValid() {
			fallback = addr
		}
	}
	if !fallback.IsValid() {
		r.logger.Warn(map[string]any{"host": host}, "resolver returned no usable address")
	}
	return fallback
}

// Target splits hostport, canonicalizes the host and resolves it. Only a
// malformed hostport is an error; resolution failure leaves IP unset.
func (r *Resolver) Target(ctx context.Context, hostport, method string) (domain.Target, error) {
	host, port, err := Split(hostport, method)
	if err != nil {
		return domain.Target{}, err
	}
	host = utils.CanonicalHost(host)
	if host == "" {
		return domain.Target{}, fmt.Errorf("%w: empty host in %q", ErrParse, hostport)
	}
	return domain.Target{
		Host:   host,
		Port:   port,
		Method: method,
		IP:     r.Resolve(ctx, host),
	}, nil
}
