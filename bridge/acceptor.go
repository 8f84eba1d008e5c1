package bridge

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/arloliu/go-serbridge/endpoint"
	"github.com/arloliu/go-serbridge/internal/pool"
)

type deadlineListener interface {
	SetDeadline(t time.Time) error
}

// backoff doubles the accept retry delay up to max.
type backoff struct {
	min, max time.Duration
	cur      time.Duration
}

func (bo *backoff) next() time.Duration {
	if bo.cur == 0 {
		bo.cur = bo.min
	} else {
		bo.cur = min(bo.cur*2, bo.max)
	}

	return bo.cur
}

func (bo *backoff) reset() {
	bo.cur = 0
}

// acceptOnce accepts one connection. It returns false to stop the acceptor task.
func (b *Bridge) acceptOnce() bool {
	ln := b.getListener()
	// listener already closed, skip
	if ln == nil {
		return false
	}

	conn, err := ln.Accept()
	if err != nil {
		return b.handleAcceptErr(err)
	}

	b.backoff.reset()
	b.failures = 0
	b.admit(conn)

	return true
}

func (b *Bridge) getListener() net.Listener {
	b.listenerMutex.Lock()
	defer b.listenerMutex.Unlock()

	if b.listener == nil {
		return nil
	}

	if dl, ok := b.listener.(deadlineListener); ok {
		if err := dl.SetDeadline(time.Now().Add(b.cfg.acceptTimeout)); err != nil && !b.shutdown.Load() {
			b.logger.Debug("failed to set deadline for listener", "error", err)
		}
	}

	return b.listener
}

func (b *Bridge) handleAcceptErr(err error) bool {
	ctx := b.taskMgr.Context()

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		// re-accept if context is not done
		return ctx.Err() == nil
	}

	if b.shutdown.Load() || ctx.Err() != nil {
		return false // terminate this task
	}

	if errors.Is(err, net.ErrClosed) {
		b.logger.Error("listener closed unexpectedly", "method", "acceptOnce", "error", err)
		b.fail(err)

		return false
	}

	b.metrics.incAcceptErrCount()

	if isResourceExhausted(err) {
		delay := b.backoff.next()
		b.logger.Error("accept failed, resources exhausted", "method", "acceptOnce", "error", err, "backoff", delay)

		return pool.Sleep(ctx, delay) == nil
	}

	b.failures++
	if b.failures >= b.maxFailures {
		b.logger.Error("listener unusable", "method", "acceptOnce", "error", err, "failures", b.failures)
		b.fail(fmt.Errorf("bridge: accept failed %d times in a row: %w", b.failures, err))

		return false
	}

	delay := b.backoff.next()
	b.logger.Warn("accept failed", "method", "acceptOnce", "error", err, "backoff", delay, "failures", b.failures)

	return pool.Sleep(ctx, delay) == nil
}

func isResourceExhausted(err error) bool {
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ENOBUFS) ||
		errors.Is(err, syscall.ENOMEM)
}

// admit turns an accepted connection into a TCP endpoint.
func (b *Bridge) admit(conn net.Conn) {
	remote := conn.RemoteAddr().String()

	maxClients := b.cfg.maxClients
	if maxClients > 0 && int(b.clients.Load()) >= maxClients {
		b.metrics.incRejectCount()
		b.logger.Warn("client limit reached, connection rejected", "remote_address", remote, "max_clients", maxClients)
		_ = conn.Close()

		return
	}

	if tc, ok := conn.(*net.TCPConn); ok && b.cfg.keepAlive > 0 {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(b.cfg.keepAlive)
	}

	ep := b.newEndpoint(remote, endpoint.KindTCP, conn)

	b.clients.Add(1)
	b.metrics.incAcceptCount()
	b.metrics.incClientGauge()
	b.logger.Debug("connection accepted", "method", "admit", "remote_address", remote, "endpoint_id", uint64(ep.ID()))

	err := b.runEndpoint(ep, func(error) {
		b.clients.Add(-1)
		b.metrics.decClientGauge()
	})
	if err != nil {
		// the bridge is stopping
		b.clients.Add(-1)
		b.metrics.decClientGauge()
	}
}
