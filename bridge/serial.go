package bridge

import (
	"context"
	"fmt"

	"github.com/arloliu/go-serbridge/endpoint"
	"github.com/arloliu/go-serbridge/internal/pool"
)

type namedTransport interface {
	Name() string
}

func (b *Bridge) openSerial() (endpoint.Transport, error) {
	tr, err := b.opener()
	if err != nil {
		b.metrics.incSerialOpenErrCount()
		return nil, err
	}
	b.metrics.incSerialOpenCount()

	return tr, nil
}

// startSerial opens the serial transport and starts its supervisor.
// An open failure is returned unless the policy is SerialLossReopen, in which
// case the supervisor keeps retrying.
func (b *Bridge) startSerial() error {
	tr, err := b.openSerial()
	if err != nil {
		if b.cfg.lossPolicy != SerialLossReopen {
			b.logger.Error("failed to open serial", "error", err)
			return fmt.Errorf("bridge: open serial: %w", err)
		}
		b.logger.Warn("failed to open serial, will retry", "error", err, "interval", b.cfg.serialRetryInterval)
	}

	return b.taskMgr.Go("serial-supervisor", func(ctx context.Context) {
		b.superviseSerial(ctx, tr)
	})
}

// superviseSerial runs the serial endpoint and applies the loss policy when it ends.
func (b *Bridge) superviseSerial(ctx context.Context, tr endpoint.Transport) {
	for {
		if tr != nil {
			runErr := b.runSerial(ctx, tr)
			if ctx.Err() != nil || b.shutdown.Load() {
				return
			}

			b.metrics.incSerialLossCount()
			b.logger.Error("serial endpoint lost", "error", runErr, "policy", string(b.cfg.lossPolicy))
			tr = nil

			switch b.cfg.lossPolicy {
			case SerialLossContinue:
				b.logger.Warn("continue relaying without serial endpoint")
				return
			case SerialLossReopen:
			default:
				if runErr != nil {
					b.fail(fmt.Errorf("%w: %w", ErrSerialLost, runErr))
				} else {
					b.fail(ErrSerialLost)
				}

				return
			}
		}

		if err := pool.Sleep(ctx, b.cfg.serialRetryInterval); err != nil {
			return
		}

		var err error
		if tr, err = b.openSerial(); err != nil {
			b.logger.Warn("failed to reopen serial", "error", err, "interval", b.cfg.serialRetryInterval)
			tr = nil

			continue
		}
		b.logger.Info("serial reopened")
	}
}

// runSerial runs one serial endpoint inside the supervisor task until it terminates.
func (b *Bridge) runSerial(ctx context.Context, tr endpoint.Transport) error {
	name := "serial"
	if nt, ok := tr.(namedTransport); ok {
		name = nt.Name()
	}

	ep := b.newEndpoint(name, endpoint.KindSerial, tr)
	b.endpoints.Store(ep.ID(), ep)
	defer b.endpoints.Delete(ep.ID())

	return ep.Run(ctx)
}
