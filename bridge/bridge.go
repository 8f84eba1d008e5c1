package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-serbridge/bus"
	"github.com/arloliu/go-serbridge/endpoint"
	"github.com/arloliu/go-serbridge/identity"
	"github.com/arloliu/go-serbridge/internal/pool"
	"github.com/arloliu/go-serbridge/internal/task"
	"github.com/arloliu/go-serbridge/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	// ErrSerialLost is returned by Serve when the serial endpoint terminated
	// under SerialLossExit.
	ErrSerialLost = errors.New("bridge: serial endpoint lost")
	// ErrBridgeClosed is returned when Serve is called on a closed bridge.
	ErrBridgeClosed = errors.New("bridge: closed")
	// ErrAlreadyServing is returned when Serve is called twice.
	ErrAlreadyServing = errors.New("bridge: already serving")
	// ErrCloseTimeout is returned by Close when tasks outlive the close timeout.
	ErrCloseTimeout = errors.New("bridge: close timeout")
)

// SerialOpener opens the serial transport. It is called once by Serve and
// again for every reopen attempt under SerialLossReopen.
//
// If the transport has a Name() string method, its result names the endpoint.
type SerialOpener func() (endpoint.Transport, error)

// Bridge relays bytes between a serial endpoint and TCP endpoints.
type Bridge struct {
	cfg    *Config
	logger logger.Logger
	bus    *bus.Bus
	opener SerialOpener

	taskMgr   *task.Manager
	endpoints *xsync.MapOf[identity.ID, *endpoint.Endpoint]

	listener      net.Listener
	listenerMutex sync.Mutex
	serving       atomic.Bool
	shutdown      atomic.Bool // indicates if Close has been called
	clients       atomic.Int32
	backoff       backoff // acceptor task only
	failures      int     // consecutive accept failures, acceptor task only
	maxFailures   int

	fatal     chan error
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	stopWatch func() bool

	metrics   Metrics
	epMetrics endpoint.Metrics
}

// New creates a bridge. A nil opener creates a bridge without a serial
// endpoint, relaying between TCP clients only.
//
// Cancelling ctx closes the bridge, also before Serve was called.
func New(ctx context.Context, cfg *Config, opener SerialOpener) (*Bridge, error) {
	if cfg == nil {
		return nil, errors.New("bridge: config is nil")
	}

	b := &Bridge{
		cfg:         cfg,
		logger:      cfg.logger,
		bus:         bus.New(cfg.queueCapacity),
		opener:      opener,
		taskMgr:     task.NewManager(ctx, cfg.logger),
		endpoints:   xsync.NewMapOf[identity.ID, *endpoint.Endpoint](),
		fatal:       make(chan error, 1),
		closed:      make(chan struct{}),
		backoff:     backoff{min: DefaultAcceptBackoff, max: MaxAcceptBackoff},
		maxFailures: MaxAcceptFailures,
	}
	b.stopWatch = context.AfterFunc(ctx, func() {
		_ = b.Close()
	})

	return b, nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (b *Bridge) ListenAndServe() error {
	lc := net.ListenConfig{KeepAlive: b.cfg.keepAlive}

	b.logger.Debug("try to listen", "address", b.cfg.Addr())
	ln, err := lc.Listen(b.taskMgr.Context(), "tcp", b.cfg.Addr())
	if err != nil {
		b.logger.Error("failed to listen", "address", b.cfg.Addr(), "error", err)
		return fmt.Errorf("bridge: listen %s: %w", b.cfg.Addr(), err)
	}

	return b.Serve(ln)
}

// Serve opens the serial endpoint, accepts TCP clients on ln and blocks until
// the bridge stops. Serve takes ownership of ln.
//
// It returns nil after Close or cancellation of the bridge context,
// ErrSerialLost (wrapped) when the serial endpoint terminated under
// SerialLossExit, and the listener error when ln became unusable.
func (b *Bridge) Serve(ln net.Listener) error {
	if b.shutdown.Load() {
		_ = ln.Close()
		return ErrBridgeClosed
	}
	if !b.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}

	b.listenerMutex.Lock()
	b.listener = ln
	b.listenerMutex.Unlock()

	// Close may have run before the listener was stored
	if b.shutdown.Load() {
		_ = b.closeListener()
		return ErrBridgeClosed
	}

	b.logger.Info("bridge listening", "address", ln.Addr().String())

	if b.opener != nil {
		if err := b.startSerial(); err != nil {
			_ = b.Close()
			return err
		}
	}

	if err := b.taskMgr.Start("acceptor", b.acceptOnce); err != nil {
		_ = b.Close()
		return err
	}

	select {
	case err := <-b.fatal:
		b.logger.Error("bridge stopped", "error", err)
		_ = b.Close()

		return err

	case <-b.taskMgr.Context().Done():
		_ = b.Close()
		return nil

	case <-b.closed:
		return nil
	}
}

// Close stops accepting, terminates every endpoint and waits up to the close
// timeout for them to finish. It is safe to call Close more than once.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.shutdown.Store(true)
		b.stopWatch()
		b.logger.Debug("closing bridge", "endpoints", b.endpoints.Size())

		if err := b.closeListener(); err != nil && !errors.Is(err, net.ErrClosed) {
			b.logger.Debug("close listener", "error", err)
		}

		b.taskMgr.Stop()
		b.bus.Close()

		done := make(chan struct{})
		go func() {
			b.taskMgr.Wait()
			close(done)
		}()

		timer := pool.GetTimer(b.cfg.closeTimeout)
		defer pool.PutTimer(timer)

		select {
		case <-done:
		case <-timer.C:
			b.logger.Warn("close timeout, tasks still running",
				"timeout", b.cfg.closeTimeout, "task_count", b.taskMgr.TaskCount())
			b.closeErr = ErrCloseTimeout
		}

		close(b.closed)
		b.logger.Info("bridge closed")
	})

	return b.closeErr
}

// Done returns a channel that is closed once Close has finished.
func (b *Bridge) Done() <-chan struct{} {
	return b.closed
}

// Addr returns the listener address, or nil before Serve.
func (b *Bridge) Addr() net.Addr {
	b.listenerMutex.Lock()
	defer b.listenerMutex.Unlock()

	if b.listener == nil {
		return nil
	}

	return b.listener.Addr()
}

// Endpoints returns a snapshot of the live endpoints ordered by ID.
func (b *Bridge) Endpoints() []endpoint.Info {
	infos := make([]endpoint.Info, 0, b.endpoints.Size())
	b.endpoints.Range(func(_ identity.ID, ep *endpoint.Endpoint) bool {
		infos = append(infos, ep.Info())
		return true
	})

	slices.SortFunc(infos, func(a, c endpoint.Info) int {
		switch {
		case a.ID < c.ID:
			return -1
		case a.ID > c.ID:
			return 1
		default:
			return 0
		}
	})

	return infos
}

// ClientCount returns the number of connected TCP clients.
func (b *Bridge) ClientCount() int {
	return int(b.clients.Load())
}

// GetConfig returns the bridge configuration.
func (b *Bridge) GetConfig() *Config {
	return b.cfg
}

// GetMetrics returns the bridge metrics.
func (b *Bridge) GetMetrics() *Metrics {
	return &b.metrics
}

// GetBusMetrics returns the metrics of the bridge's bus.
func (b *Bridge) GetBusMetrics() *bus.Metrics {
	return b.bus.GetMetrics()
}

// GetEndpointMetrics returns the metrics aggregated over all endpoints.
func (b *Bridge) GetEndpointMetrics() *endpoint.Metrics {
	return &b.epMetrics
}

// runEndpoint registers ep and runs it as a task. onExit runs after the
// endpoint terminated and was unregistered.
func (b *Bridge) runEndpoint(ep *endpoint.Endpoint, onExit func(error)) error {
	id := ep.ID()
	b.endpoints.Store(id, ep)

	err := b.taskMgr.Go(fmt.Sprintf("endpoint-%d", id), func(ctx context.Context) {
		runErr := ep.Run(ctx)
		b.endpoints.Delete(id)
		onExit(runErr)
	})
	if err != nil {
		b.endpoints.Delete(id)
		ep.Close()

		return err
	}

	return nil
}

func (b *Bridge) newEndpoint(name string, kind endpoint.Kind, tr endpoint.Transport) *endpoint.Endpoint {
	id := b.cfg.allocator.NextID()

	// subscribe before the endpoint can read so no reply is missed
	sub := b.bus.Subscribe()

	return endpoint.New(id, name, tr, b.bus, sub,
		endpoint.WithKind(kind),
		endpoint.WithChunkSize(b.cfg.chunkSize),
		endpoint.WithLogger(b.logger),
		endpoint.WithMetrics(&b.epMetrics),
	)
}

// fail reports an error that stops the whole bridge.
func (b *Bridge) fail(err error) {
	select {
	case b.fatal <- err:
	default:
	}
}

func (b *Bridge) closeListener() error {
	b.listenerMutex.Lock()
	defer b.listenerMutex.Unlock()

	if b.listener != nil {
		return b.listener.Close()
	}

	return nil
}
