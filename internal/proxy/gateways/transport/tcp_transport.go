// Package transport accepts client TCP connections and hands each one to a
// connection handler on its own goroutine.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/haukened/phishguard/internal/proxy/common/log"
	"github.com/haukened/phishguard/internal/proxy/metrics"
)

// ConnHandler serves one accepted connection and closes it when done.
type ConnHandler interface {
	Serve(ctx context.Context, conn net.Conn)
}

// TCPTransport listens on a TCP address. At most maxConns connections are
// served at once; beyond that the accept loop waits, leaving new clients in
// the kernel backlog.
type TCPTransport struct {
	addr     string
	maxConns int64
	logger   log.Logger

	sem      *semaphore.Weighted
	listener net.Listener
	wg       sync.WaitGroup

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
}

// NewTCPTransport creates a transport for addr. maxConns <= 0 means 1024.
func NewTCPTransport(addr string, maxConns int64, logger log.Logger) *TCPTransport {
	if maxConns <= 0 {
		maxConns = 1024
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &TCPTransport{
		addr:     addr,
		maxConns: maxConns,
		logger:   logger,
		sem:      semaphore.NewWeighted(maxConns),
	}
}

// Start binds the listener and begins accepting in the background.
func (t *TCPTransport) Start(ctx context.Context, handler ConnHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("TCP transport already running")
	}

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.addr, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.listener = ln
	t.cancel = cancel
	t.running = true

	t.logger.Info(map[string]any{
		"transport":       "tcp",
		"address":         ln.Addr().String(),
		"max_connections": t.maxConns,
	}, "proxy transport started")

	go t.acceptLoop(loopCtx, ln, handler)
	return nil
}

// Stop closes the listener. Connections already being served keep running;
// use Wait to drain them.
func (t *TCPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	t.running = false
	t.cancel()

	err := t.listener.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		t.logger.Warn(map[string]any{"error": err.Error()}, "Error closing TCP listener")
	} else {
		err = nil
	}

	t.logger.Info(map[string]any{
		"transport": "tcp",
		"address":   t.listener.Addr().String(),
	}, "proxy transport stopped")
	return err
}

// Wait blocks until every in-flight connection has finished or ctx ends.
func (t *TCPTransport) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Address returns the bound address once started, else the configured one.
func (t *TCPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

func (t *TCPTransport) isRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func (t *TCPTransport) acceptLoop(ctx context.Context, ln net.Listener, handler ConnHandler) {
	for {
		if err := t.sem.Acquire(ctx, 1); err != nil {
			t.logger.Debug(nil, "TCP transport stopping due to context cancellation")
			return
		}
		conn, err := ln.Accept()
		if err != nil {
			t.sem.Release(1)
			if !t.isRunning() || errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Warn(map[string]any{"error": err.Error()}, "Failed to accept connection")
			continue
		}

		t.wg.Add(1)
		metrics.ActiveConnections.Inc()
		go func() {
			defer t.wg.Done()
			defer t.sem.Release(1)
			defer metrics.ActiveConnections.Dec()
			handler.Serve(ctx, conn)
		}()
	}
}
