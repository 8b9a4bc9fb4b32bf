package domain

import "net/netip"

// MethodConnect is the HTTP method used to request an opaque tunnel.
const MethodConnect = "CONNECT"

// Target is the destination a client asked the proxy to reach.
type Target struct {
	Host   string     // canonical host, no port
	Port   int        // explicit or defaulted port
	Method string     // request method as sent by the client
	IP     netip.Addr // resolved address; invalid when resolution failed
}

// IsConnect reports whether the request is a CONNECT tunnel request.
// Methods are case-sensitive.
func (t Target) IsConnect() bool { return t.Method == MethodConnect }

// HasIP reports whether the host was resolved.
func (t Target) HasIP() bool { return t.IP.IsValid() }

// IPString returns the resolved address, or "" when absent.
func (t Target) IPString() string {
	if !t.IP.IsValid() {
		return ""
	}
	return t.IP.String()
}
