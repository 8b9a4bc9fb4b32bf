package transport

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockConnHandler records Serve calls and writes a greeting.
type MockConnHandler struct {
	mock.Mock
}

func (m *MockConnHandler) Serve(ctx context.Context, conn net.Conn) {
	m.Called(ctx, conn)
	defer conn.Close()
	_, _ = conn.Write([]byte("hello"))
}

// blockingHandler holds every connection open until release is closed.
type blockingHandler struct {
	active  atomic.Int32
	peak    atomic.Int32
	served  atomic.Int32
	release chan struct{}
}

func (b *blockingHandler) Serve(_ context.Context, conn net.Conn) {
	defer conn.Close()
	n := b.active.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-b.release
	b.active.Add(-1)
	b.served.Add(1)
}

func TestTCPTransport_ServesConnections(t *testing.T) {
	h := &MockConnHandler{}
	h.On("Serve", mock.Anything, mock.Anything).Return()

	tr := NewTCPTransport("127.0.0.1:0", 4, nil)
	require.NoError(t, tr.Start(context.Background(), h))
	defer tr.Stop()

	conn, err := net.Dial("tcp", tr.Address())
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	b, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	require.NoError(t, tr.Wait(context.Background()))
	h.AssertNumberOfCalls(t, "Serve", 1)
}

func TestTCPTransport_DoubleStart(t *testing.T) {
	tr := NewTCPTransport("127.0.0.1:0", 1, nil)
	h := &MockConnHandler{}
	require.NoError(t, tr.Start(context.Background(), h))
	defer tr.Stop()
	assert.Error(t, tr.Start(context.Background(), h))
}

func TestTCPTransport_BadAddress(t *testing.T) {
	tr := NewTCPTransport("256.0.0.1:99999", 1, nil)
	assert.Error(t, tr.Start(context.Background(), &MockConnHandler{}))
	assert.Equal(t, "256.0.0.1:99999", tr.Address())
}

func TestTCPTransport_StopIsIdempotent(t *testing.T) {
	tr := NewTCPTransport("127.0.0.1:0", 1, nil)
	assert.NoError(t, tr.Stop())
	require.NoError(t, tr.Start(context.Background(), &MockConnHandler{}))
	assert.NoError(t, tr.Stop())
	assert.NoError(t, tr.Stop())

	_, err := net.DialTimeout("tcp", tr.Address(), 200*time.Millisecond)
	assert.Error(t, err, "listener closed")
}

func TestTCPTransport_LimitsConcurrency(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{})}
	tr := NewTCPTransport("127.0.0.1:0", 2, nil)
	require.NoError(t, tr.Start(context.Background(), h))
	defer tr.Stop()

	var conns []net.Conn
	for i := 0; i < 5; i++ {
		c, err := net.Dial("tcp", tr.Address())
		require.NoError(t, err)
		conns = append(conns, c)
	}
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()

	require.Eventually(t, func() bool { return h.active.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), h.active.Load(), "no more than the limit are served")

	close(h.release)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.Eventually(t, func() bool { return h.served.Load() == 5 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, tr.Wait(ctx))
	assert.Equal(t, int32(2), h.peak.Load())
}
