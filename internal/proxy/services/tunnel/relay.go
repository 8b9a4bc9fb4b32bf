// Package tunnel pumps bytes between a client and an origin until either side
// ends the stream or both go idle.
package tunnel

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haukened/phishguard/internal/proxy/common/log"
	"github.com/haukened/phishguard/internal/proxy/metrics"
)

const (
	DefaultIdleTimeout = 10 * time.Second
	DefaultBufferSize  = 4096
)

// Stats counts bytes relayed in each direction.
type Stats struct {
	Upstream   int64 // client to origin
	Downstream int64 // origin to client
}

type Options struct {
	IdleTimeout time.Duration
	BufferSize  int
	Logger      log.Logger
}

// Relay copies opaque bytes in both directions. The idle timeout applies to
// the pair: traffic in either direction keeps both directions alive.
type Relay struct {
	idle   time.Duration
	size   int
	logger log.Logger
}

func New(opts Options) *Relay {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Relay{idle: opts.IdleTimeout, size: opts.BufferSize, logger: opts.Logger}
}

// Run blocks until the tunnel ends and closes both connections before
// returning. Cancelling ctx ends the tunnel early.
func (r *Relay) Run(ctx context.Context, client, origin net.Conn) Stats {
	var (
		once     sync.Once
		wg       sync.WaitGroup
		lastSeen atomic.Int64
		stats    Stats
	)
	closeBoth := func() {
		once.Do(func() {
			_ = client.Close()
			_ = origin.Close()
		})
	}
	lastSeen.Store(time.Now().UnixNano())

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer closeBoth()
		stats.Upstream = r.pump(origin, client, &lastSeen)
	}()
	go func() {
		defer wg.Done()
		defer closeBoth()
		stats.Downstream = r.pump(client, origin, &lastSeen)
	}()
	wg.Wait()

	metrics.RecordTunnel(stats.Upstream, stats.Downstream)
	return stats
}

// pump copies src to dst and returns the byte count. It returns on EOF, on
// any error, or when neither direction has moved data for the idle timeout.
func (r *Relay) pump(dst, src net.Conn, lastSeen *atomic.Int64) int64 {
	buf := make([]byte, r.size)
	var total int64
	for {
		_ = src.SetReadDeadline(time.Now().Add(r.idle))
		n, err := src.Read(buf)
		if n > 0 {
			lastSeen.Store(time.Now().UnixNano())
			_ = dst.SetWriteDeadline(time.Now().Add(r.idle))
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				r.logger.Debug(map[string]any{"error": werr}, "tunnel write failed")
				return total
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			since := time.Since(time.Unix(0, lastSeen.Load()))
			if since < r.idle {
				continue
			}
			r.logger.Debug(map[string]any{"idle": since.String()}, "tunnel idle")
			return total
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			r.logger.Debug(map[string]any{"error": err}, "tunnel read failed")
		}
		return total
	}
}
