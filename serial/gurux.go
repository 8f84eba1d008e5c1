package serial

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Gurux/gxcommon-go"
	"github.com/Gurux/gxserial-go"
	"github.com/arloliu/go-serbridge/internal/pool"
)

type guruxMedia interface {
	Send(data any, receiver string) error
	Close() error
}

func openGurux(cfg Config) (Port, error) {
	parity, _ := ParseParity(string(cfg.Parity))

	var gxParity gxcommon.Parity
	switch parity {
	case ParityOdd:
		gxParity = gxcommon.ParityOdd
	case ParityEven:
		gxParity = gxcommon.ParityEven
	case ParityMark:
		gxParity = gxcommon.ParityMark
	case ParitySpace:
		gxParity = gxcommon.ParitySpace
	default:
		gxParity = gxcommon.ParityNone
	}

	media := gxserial.NewGXSerial(cfg.Path,
		gxcommon.BaudRate(cfg.BaudRate),
		cfg.DataBits,
		gxcommon.StopBits(cfg.StopBits),
		gxParity,
	)
	if err := media.Validate(); err != nil {
		return nil, wrapOpenErr(cfg, err)
	}

	p := newGuruxPort(cfg.Path, media, cfg.ReadTimeout)

	media.SetOnReceived(func(_ gxcommon.IGXMedia, e gxcommon.ReceiveEventArgs) {
		data, err := gxcommon.ToBytes(e.Data(), binary.BigEndian)
		if err != nil {
			p.fail(fmt.Errorf("serial: decode received data: %w", err))
			return
		}
		p.deliver(data)
	})
	media.SetOnError(func(_ gxcommon.IGXMedia, err error) {
		p.fail(err)
	})

	if err := media.Open(); err != nil {
		return nil, wrapOpenErr(cfg, err)
	}

	return p, nil
}

// guruxPort turns the callback-driven gurux media into a blocking reader.
type guruxPort struct {
	name        string
	media       guruxMedia
	readTimeout time.Duration

	data    chan []byte
	errs    chan error
	pending []byte // remainder of a chunk larger than the caller's buffer

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newGuruxPort(name string, media guruxMedia, readTimeout time.Duration) *guruxPort {
	return &guruxPort{
		name:        name,
		media:       media,
		readTimeout: readTimeout,
		data:        make(chan []byte, 64),
		errs:        make(chan error, 1),
		closed:      make(chan struct{}),
	}
}

func (p *guruxPort) Name() string {
	return p.name
}

// deliver hands a received chunk to Read. It blocks while the buffer is full
// so that the media reader slows down instead of losing bytes.
func (p *guruxPort) deliver(data []byte) {
	if len(data) == 0 {
		return
	}

	select {
	case p.data <- append([]byte(nil), data...):
	case <-p.closed:
	}
}

func (p *guruxPort) fail(err error) {
	select {
	case p.errs <- err:
	default: // an earlier error is still pending
	}
}

func (p *guruxPort) Read(b []byte) (int, error) {
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]

		return n, nil
	}

	timer := pool.GetTimer(p.readTimeout)
	defer pool.PutTimer(timer)

	select {
	case data := <-p.data:
		n := copy(b, data)
		p.pending = data[n:]

		return n, nil

	case err := <-p.errs:
		return 0, err

	case <-p.closed:
		return 0, os.ErrClosed

	case <-timer.C:
		return 0, ErrTimeout
	}
}

func (p *guruxPort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, os.ErrClosed
	default:
	}

	if err := p.media.Send(b, ""); err != nil {
		return 0, err
	}

	return len(b), nil
}

func (p *guruxPort) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.closeErr = p.media.Close()
	})

	return p.closeErr
}
