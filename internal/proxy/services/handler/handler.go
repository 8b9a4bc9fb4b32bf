// Package handler runs one proxied client connection from its first bytes to
// close: parse, admit, then deny, tunnel or forward once.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/haukened/phishguard/internal/proxy/common/clock"
	"github.com/haukened/phishguard/internal/proxy/common/log"
	"github.com/haukened/phishguard/internal/proxy/common/utils"
	"github.com/haukened/phishguard/internal/proxy/domain"
	"github.com/haukened/phishguard/internal/proxy/metrics"
)

const (
	DefaultSocketTimeout = 10 * time.Second
	DefaultBufferSize    = 4096

	sinkTimeout = 5 * time.Second
)

type Options struct {
	Admission Admission
	Resolver  HostResolver
	Relay     Relay

	// Persistence and Alerts are optional.
	Persistence PersistenceSink
	Alerts      AlertSink

	Dial          DialFunc
	Clock         clock.Clock
	Logger        log.Logger
	SocketTimeout time.Duration
	BufferSize    int
	// Template is the 403 page with {{host}} placeholders.
	Template string
}

// Handler serves proxied connections. One Handler is shared by all
// connection goroutines.
type Handler struct {
	admission   Admission
	resolver    HostResolver
	relay       Relay
	persistence PersistenceSink
	alerts      AlertSink
	dial        DialFunc
	clock       clock.Clock
	logger      log.Logger
	timeout     time.Duration
	bufferSize  int
	template    string

	// pending counts alert deliveries still in flight.
	pending sync.WaitGroup
}

var errMissingDependency = errors.New("handler: admission, resolver and relay are required")

func New(opts Options) (*Handler, error) {
	if opts.Admission == nil || opts.Resolver == nil || opts.Relay == nil {
		return nil, errMissingDependency
	}
	if opts.SocketTimeout <= 0 {
		opts.SocketTimeout = DefaultSocketTimeout
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Template == "" {
		opts.Template = fallbackTemplate
	}
	return &Handler{
		admission:   opts.Admission,
		resolver:    opts.Resolver,
		relay:       opts.Relay,
		persistence: opts.Persistence,
		alerts:      opts.Alerts,
		dial:        opts.Dial,
		clock:       opts.Clock,
		logger:      opts.Logger,
		timeout:     opts.SocketTimeout,
		bufferSize:  opts.BufferSize,
		template:    opts.Template,
	}, nil
}

// Serve handles conn until it is closed. It never returns an error: every
// failure is either answered with a literal status line or closed silently.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	cc := domain.NewConnectionContext(remoteHost(conn.RemoteAddr()), h.clock.Now())
	fields := map[string]any{"conn": cc.ID.String(), "client": cc.ClientAddr}

	_ = conn.SetReadDeadline(time.Now().Add(h.timeout))
	buf := make([]byte, h.bufferSize)
	n, _ := conn.Read(buf)
	data := buf[:n]
	if isPreconnect(data) {
		h.logger.Debug(fields, "preconnect or keepalive, closing")
		return
	}
	method, hostport, err := parseRequest(data)
	if err != nil {
		h.logger.Error(with(fields, "error", err), "failed to parse request")
		return
	}
	target, err := h.resolver.Target(ctx, hostport, method)
	if err != nil {
		h.logger.Error(with(fields, "error", err), "failed to parse host")
		return
	}
	cc.Target = target

	decision := h.admission.Check(ctx, target)
	if decision.IsDenied() {
		if _, err := conn.Write(forbiddenResponse(h.template, target.Host)); err != nil {
			h.logger.Debug(with(fields, "error", err), "failed to write 403")
		}
		h.finish(ctx, cc, decision, domain.OutcomeDeny, "")
		return
	}

	if target.IsConnect() {
		h.tunnel(ctx, conn, cc, decision)
		return
	}
	h.forward(ctx, conn, data, cc, decision)
}

// tunnel answers a CONNECT and relays until either side ends.
func (h *Handler) tunnel(ctx context.Context, conn net.Conn, cc *domain.ConnectionContext, d domain.AdmissionDecision) {
	origin, err := h.connectOrigin(ctx, conn, cc.Target)
	if err != nil {
		h.finish(ctx, cc, d, domain.OutcomeError, err.Error())
		return
	}
	if _, err := conn.Write(respEstablished); err != nil {
		_ = origin.Close()
		h.finish(ctx, cc, d, domain.OutcomeError, err.Error())
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	stats := h.relay.Run(ctx, conn, origin)
	h.logger.Debug(map[string]any{
		"conn":       cc.ID.String(),
		"upstream":   stats.Upstream,
		"downstream": stats.Downstream,
	}, "tunnel closed")
	h.finish(ctx, cc, d, domain.OutcomeAllow, "")
}

// forward sends the buffered request once and relays a single response chunk.
func (h *Handler) forward(ctx context.Context, conn net.Conn, data []byte, cc *domain.ConnectionContext, d domain.AdmissionDecision) {
	origin, err := h.connectOrigin(ctx, conn, cc.Target)
	if err != nil {
		h.finish(ctx, cc, d, domain.OutcomeError, err.Error())
		return
	}
	defer origin.Close()

	if err := h.exchange(conn, origin, data); err != nil {
		h.writeFailure(conn, err)
		h.finish(ctx, cc, d, domain.OutcomeError, err.Error())
		return
	}
	h.finish(ctx, cc, d, domain.OutcomeAllow, "")
}

func (h *Handler) exchange(conn, origin net.Conn, data []byte) error {
	_ = origin.SetDeadline(time.Now().Add(h.timeout))
	if _, err := origin.Write(data); err != nil {
		return classify(err)
	}
	buf := make([]byte, h.bufferSize)
	n, err := origin.Read(buf)
	if n > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(h.timeout))
		_, _ = conn.Write(buf[:n])
		return nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return classify(err)
	}
	return nil
}

// connectOrigin dials the target. On failure it writes the 504 or 502 status
// line to the client and returns the classified error.
func (h *Handler) connectOrigin(ctx context.Context, conn net.Conn, t domain.Target) (net.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	origin, err := h.dial(dctx, "tcp", addr)
	if err != nil {
		err = classify(err)
		h.logger.Error(map[string]any{"client": conn.RemoteAddr().String(), "origin": addr, "error": err}, "failed to connect to origin")
		h.writeFailure(conn, err)
		return nil, err
	}
	return origin, nil
}

func (h *Handler) writeFailure(conn net.Conn, err error) {
	resp := respBadGateway
	if errors.Is(err, ErrOriginTimeout) {
		resp = respGatewayTimeout
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.timeout))
	_, _ = conn.Write(resp)
}

// classify maps an I/O error to ErrOriginTimeout or ErrOriginRefused.
func classify(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrOriginTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrOriginRefused, err)
}

// finish emits the connection's single record to the log and the sinks.
func (h *Handler) finish(ctx context.Context, cc *domain.ConnectionContext, d domain.AdmissionDecision, outcome domain.Outcome, detail string) {
	rec := domain.NewLogRecord(cc, d, outcome, h.clock.Now())
	rec.Detail = detail
	metrics.ConnectionsTotal.WithLabelValues(outcome.String()).Inc()

	level := severity(outcome)
	fields := map[string]any{
		"conn":    rec.ConnID,
		"client":  rec.ClientAddr,
		"host":    rec.Host,
		"apex":    utils.ApexDomain(rec.Host),
		"ip":      rec.IP,
		"port":    rec.Port,
		"method":  rec.Method,
		"outcome": outcome.String(),
		"score":   rec.Score,
		"source":  d.Source.String(),
	}
	if len(rec.Reasons) > 0 {
		fields["reasons"] = rec.Reasons
	}
	if detail != "" {
		fields["detail"] = detail
	}
	log.Emit(h.logger, level, fields, "connection "+outcome.String())

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if h.persistence != nil {
		if err := h.persistence.Save(sctx, rec); err != nil {
			metrics.RecordSinkError("persistence")
			h.logger.Error(map[string]any{"conn": rec.ConnID, "error": err}, "failed to save log record")
		}
	}

	if h.alerts != nil && level.AtLeastWarn() {
		h.pending.Add(1)
		go func() {
			defer h.pending.Done()
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
			defer cancel()
			if err := h.alerts.Notify(actx, rec); err != nil {
				metrics.RecordSinkError("alert")
				h.logger.Warn(map[string]any{"conn": rec.ConnID, "error": err}, "failed to send alert")
			}
		}()
	}
}

// Wait blocks until every alert already handed to the alert sink has been
// delivered or has failed, or until ctx ends.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// severity maps an outcome to the level it is logged and alerted at.
func severity(o domain.Outcome) log.Level {
	switch o {
	case domain.OutcomeDeny:
		return log.LevelWarn
	case domain.OutcomeError:
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func with(fields map[string]any, k string, v any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for key, val := range fields {
		out[key] = val
	}
	out[k] = v
	return out
}
