package endpoint

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-serbridge/bus"
	"github.com/arloliu/go-serbridge/identity"
	"github.com/arloliu/go-serbridge/logger"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logger.InfoLevel
	}
	logger.SetLevel(level)

	os.Exit(m.Run())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "read timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type readResult struct {
	data []byte
	err  error
}

// fakeTransport is a scripted transport: reads come from the reads channel,
// writes are captured on the writes channel.
type fakeTransport struct {
	reads     chan readResult
	writes    chan []byte
	writeErr  error
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	flushes   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		reads:  make(chan readResult, 16),
		writes: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) push(data string, err error) {
	f.reads <- readResult{data: []byte(data), err: err}
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	select {
	case r := <-f.reads:
		return copy(p, r.data), r.err
	case <-f.closed:
		return 0, net.ErrClosed
	}
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	select {
	case <-f.closed:
		return 0, net.ErrClosed
	default:
	}

	if f.writeErr != nil {
		return 0, f.writeErr
	}

	f.writes <- append([]byte(nil), p...)

	return len(p), nil
}

func (f *fakeTransport) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++

	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) expectWrite(t *testing.T, want string) {
	t.Helper()

	select {
	case got := <-f.writes:
		require.Equal(t, want, string(got))
	case <-time.After(time.Second):
		t.Fatalf("expected write %q", want)
	}
}

func (f *fakeTransport) expectNoWrite(t *testing.T, wait time.Duration) {
	t.Helper()

	select {
	case got := <-f.writes:
		t.Fatalf("unexpected write %q", got)
	case <-time.After(wait):
	}
}

type runner struct {
	ep    *Endpoint
	errCh chan error
}

func (r *runner) wait(t *testing.T) error {
	t.Helper()

	select {
	case err := <-r.errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint did not terminate")
		return nil
	}
}

func startEndpoint(t *testing.T, b *bus.Bus, id identity.ID, tr Transport, opts ...Option) *runner {
	t.Helper()

	ep := New(id, fmt.Sprintf("ep-%d", id), tr, b, b.Subscribe(), opts...)
	r := &runner{ep: ep, errCh: make(chan error, 1)}
	go func() {
		r.errCh <- ep.Run(context.Background())
	}()
	t.Cleanup(ep.Close)

	return r
}

// pipeClient returns the client side of a net.Pipe whose server side is
// driven by a new endpoint.
func pipeClient(t *testing.T, b *bus.Bus, id identity.ID) (net.Conn, *runner) {
	t.Helper()

	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	return client, startEndpoint(t, b, id, server)
}

func expectRead(t *testing.T, conn net.Conn, want string) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, len(want))
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, want, string(buf))
}

func expectNoRead(t *testing.T, conn net.Conn, wait time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.Zero(t, n, "unexpected data %q", buf[:n])
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
}
