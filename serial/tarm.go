package serial

import (
	"errors"
	"io"
	"os"
	"sync/atomic"

	"github.com/tarm/serial"
)

var tarmParity = map[Parity]serial.Parity{
	ParityNone:  serial.ParityNone,
	ParityOdd:   serial.ParityOdd,
	ParityEven:  serial.ParityEven,
	ParityMark:  serial.ParityMark,
	ParitySpace: serial.ParitySpace,
}

var tarmStopBits = map[int]serial.StopBits{
	1: serial.Stop1,
	2: serial.Stop2,
}

func tarmConfig(cfg Config) *serial.Config {
	parity, _ := ParseParity(string(cfg.Parity))

	return &serial.Config{
		Name:        cfg.Path,
		Baud:        cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
		Size:        byte(cfg.DataBits),
		Parity:      tarmParity[parity],
		StopBits:    tarmStopBits[cfg.StopBits],
	}
}

func openTarm(cfg Config) (Port, error) {
	p, err := serial.OpenPort(tarmConfig(cfg))
	if err != nil {
		return nil, wrapOpenErr(cfg, err)
	}

	return newTarmPort(cfg.Path, p), nil
}

// tarmPort adapts a tarm port: with VTIME set, an expired read shows up as
// zero bytes with a nil error or io.EOF, which is reported as ErrTimeout.
type tarmPort struct {
	name   string
	raw    io.ReadWriteCloser
	closed atomic.Bool
}

func newTarmPort(name string, raw io.ReadWriteCloser) *tarmPort {
	return &tarmPort{name: name, raw: raw}
}

func (p *tarmPort) Name() string {
	return p.name
}

func (p *tarmPort) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}

	n, err := p.raw.Read(b)
	if n == 0 && (err == nil || errors.Is(err, io.EOF)) {
		if p.closed.Load() {
			return 0, os.ErrClosed
		}

		return 0, ErrTimeout
	}

	if errors.Is(err, io.EOF) {
		// data arrived; the timeout is reported on the next call
		err = nil
	}

	return n, err
}

func (p *tarmPort) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}

	return p.raw.Write(b)
}

func (p *tarmPort) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	return p.raw.Close()
}
