package handler

import (
	"context"
	"net"

	"github.com/haukened/phishguard/internal/proxy/domain"
	"github.com/haukened/phishguard/internal/proxy/services/tunnel"
)

// Admission scores a destination.
type Admission interface {
	Check(ctx context.Context, t domain.Target) domain.AdmissionDecision
}

// HostResolver turns a Host header into a Target. A resolution failure is
// not an error; only a malformed value is.
type HostResolver interface {
	Target(ctx context.Context, hostport, method string) (domain.Target, error)
}

// Relay runs a CONNECT tunnel and closes both ends when done.
type Relay interface {
	Run(ctx context.Context, client, origin net.Conn) tunnel.Stats
}

// PersistenceSink stores connection records. Failures are logged only.
type PersistenceSink interface {
	Save(ctx context.Context, r domain.LogRecord) error
}

// AlertSink is notified of warn-or-worse outcomes, fire-and-forget.
type AlertSink interface {
	Notify(ctx context.Context, r domain.LogRecord) error
}

// DialFunc establishes a connection to an origin.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)
