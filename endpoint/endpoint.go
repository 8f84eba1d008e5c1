package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-serbridge/bus"
	"github.com/arloliu/go-serbridge/identity"
	"github.com/arloliu/go-serbridge/internal/util"
	"github.com/arloliu/go-serbridge/logger"
)

// DefaultChunkSize is the default maximum number of bytes read per publish.
const DefaultChunkSize = 1024

var (
	// ErrEndOfStream is the termination reason of an endpoint whose peer closed its sending side.
	ErrEndOfStream = errors.New("endpoint: end of stream")
	// ErrClosed is the termination reason of an endpoint stopped by Close or by its context.
	ErrClosed = errors.New("endpoint: closed")
	// ErrAlreadyRunning is returned when Run is called more than once.
	ErrAlreadyRunning = errors.New("endpoint: already running")
)

// Kind describes the transport behind an endpoint.
type Kind string

const (
	KindSerial Kind = "serial"
	KindTCP    Kind = "tcp"
)

// Publisher is the part of a bus an endpoint publishes to.
type Publisher interface {
	Publish(msg bus.Message) int
}

// Info is a snapshot of an endpoint for introspection.
type Info struct {
	ID    identity.ID
	Name  string
	Kind  Kind
	State State
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithLogger sets the logger. The endpoint adds its id and name to every entry.
func WithLogger(l logger.Logger) Option {
	return func(e *Endpoint) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithChunkSize sets the read buffer size. Values lower than 1 are ignored.
func WithChunkSize(size int) Option {
	return func(e *Endpoint) {
		if size > 0 {
			e.chunkSize = size
		}
	}
}

// WithKind sets the endpoint kind reported by Info. The default is KindTCP.
func WithKind(kind Kind) Option {
	return func(e *Endpoint) {
		e.kind = kind
	}
}

// WithMetrics makes the endpoint record into m, which may be shared.
func WithMetrics(m *Metrics) Option {
	return func(e *Endpoint) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Endpoint relays bytes between one transport and the bus.
type Endpoint struct {
	id        identity.ID
	name      string
	kind      Kind
	transport Transport
	pub       Publisher
	sub       *bus.Subscription
	logger    logger.Logger
	chunkSize int
	metrics   *Metrics

	state     atomicState
	aborted   atomic.Bool // stop writing buffered messages
	started   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	reasonMu sync.Mutex
	reason   error
}

// New creates an endpoint that owns transport and sub.
//
// sub must have been obtained from the bus behind pub before New is called so
// that no message published after the endpoint exists is missed.
func New(id identity.ID, name string, transport Transport, pub Publisher, sub *bus.Subscription, opts ...Option) *Endpoint {
	e := &Endpoint{
		id:        id,
		name:      name,
		kind:      KindTCP,
		transport: transport,
		pub:       pub,
		sub:       sub,
		logger:    logger.GetLogger(),
		chunkSize: DefaultChunkSize,
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = &Metrics{}
	}

	e.logger = e.logger.With("endpoint_id", uint64(id), "endpoint", name)

	return e
}

// ID returns the endpoint identity.
func (e *Endpoint) ID() identity.ID {
	return e.id
}

// Name returns the endpoint name, e.g. the serial device path or the client address.
func (e *Endpoint) Name() string {
	return e.name
}

// Kind returns the endpoint kind.
func (e *Endpoint) Kind() Kind {
	return e.kind
}

// State returns the current lifecycle state.
func (e *Endpoint) State() State {
	return e.state.Get()
}

// Info returns a snapshot of the endpoint.
func (e *Endpoint) Info() Info {
	return Info{ID: e.id, Name: e.name, Kind: e.kind, State: e.state.Get()}
}

// GetMetrics returns the metrics the endpoint records into.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}

// Done returns a channel that is closed when Run has returned.
func (e *Endpoint) Done() <-chan struct{} {
	return e.done
}

// Reason returns why the endpoint left the Active state, or nil while it is active.
func (e *Endpoint) Reason() error {
	e.reasonMu.Lock()
	defer e.reasonMu.Unlock()

	return e.reason
}

// Run relays data until the transport ends, fails, Close is called or ctx is done.
//
// It returns nil for an orderly end (end-of-stream, Close, cancellation) and
// the fatal transport error otherwise. On return the transport is closed and
// the subscription is detached from the bus.
func (e *Endpoint) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	e.metrics.incActiveGauge()
	e.logger.Info("endpoint created", "kind", string(e.kind))

	stop := context.AfterFunc(ctx, func() {
		e.abort(ErrClosed)
	})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		e.readLoop()
		e.sub.Close()
	}()

	go func() {
		defer wg.Done()
		e.writeLoop()
		e.closeTransport()
	}()

	wg.Wait()
	stop()

	e.state.ToTerminated()
	e.metrics.decActiveGauge()
	close(e.done)

	reason := e.Reason()
	if isOrderly(reason) {
		e.logger.Info("endpoint terminated", "reason", reason)
		return nil
	}

	e.logger.Warn("endpoint terminated", "reason", reason)

	return reason
}

// Close stops the endpoint without draining buffered messages.
// It is safe to call Close more than once and from any goroutine.
func (e *Endpoint) Close() {
	e.abort(ErrClosed)
}

func (e *Endpoint) readLoop() {
	buf := make([]byte, e.chunkSize)

	for {
		n, err := e.transport.Read(buf)
		if n > 0 && e.state.IsActive() {
			e.pub.Publish(bus.Message{Payload: util.CloneSlice(buf[:n], 0), Origin: e.id})
			e.metrics.incRead(n)
		}

		if err == nil {
			continue
		}

		switch {
		case IsEndOfStream(err):
			if e.beginClose(ErrEndOfStream) {
				e.logger.Debug("end of stream, draining", "buffered", e.sub.Len())
			}

			return

		case IsTransient(err):
			if !e.state.IsActive() {
				return
			}
			e.metrics.incTimeoutCount()

		default:
			if e.beginClose(fmt.Errorf("read: %w", err)) {
				e.metrics.incErrorCount()
				e.logger.Error("read failed", "error", err)
				e.abort(nil)
			}

			return
		}
	}
}

func (e *Endpoint) writeLoop() {
	// the subscription wakes Recv on close; no context needed
	ctx := context.Background()

	for {
		msg, err := e.sub.Recv(ctx)
		if err != nil {
			if dropped, ok := bus.IsLagged(err); ok {
				e.metrics.incLag(dropped)
				e.logger.Warn("bus lag, messages dropped", "dropped", dropped)

				continue
			}

			return // subscription closed and drained
		}

		if e.aborted.Load() {
			return
		}

		if msg.Origin == e.id {
			e.metrics.incSelfSkipCount()
			continue
		}

		if err := writeAll(e.transport, msg.Payload); err != nil {
			if e.beginClose(fmt.Errorf("write: %w", err)) {
				e.metrics.incErrorCount()
				e.logger.Error("write failed", "error", err)
			}
			e.abort(nil)

			return
		}
		e.metrics.incWrite(len(msg.Payload))
	}
}

// beginClose moves the endpoint to Closing and records reason.
// It returns false if the endpoint was already closing.
func (e *Endpoint) beginClose(reason error) bool {
	if !e.state.ToClosing() {
		return false
	}

	e.reasonMu.Lock()
	e.reason = reason
	e.reasonMu.Unlock()

	return true
}

// abort closes the transport and the subscription. A non-nil reason is
// recorded when the endpoint is still active.
func (e *Endpoint) abort(reason error) {
	if reason != nil {
		e.beginClose(reason)
	}

	e.aborted.Store(true)
	e.closeTransport()
	e.sub.Close()
}

func (e *Endpoint) closeTransport() {
	e.closeOnce.Do(func() {
		if err := e.transport.Close(); err != nil {
			e.logger.Debug("close transport", "error", err)
		}
	})
}

func isOrderly(reason error) bool {
	return reason == nil || errors.Is(reason, ErrEndOfStream) || errors.Is(reason, ErrClosed)
}
