package endpoint

import (
	"errors"
	"io"
)

// Transport is a duplex byte stream owned by exactly one endpoint,
// such as a serial port or an accepted TCP connection.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Flusher is implemented by transports that buffer writes.
type Flusher interface {
	Flush() error
}

type timeoutError interface {
	Timeout() bool
}

// IsTransient reports whether err is a read error that should be retried,
// i.e. any error in the chain reporting Timeout() == true.
func IsTransient(err error) bool {
	var te timeoutError
	return errors.As(err, &te) && te.Timeout()
}

// IsEndOfStream reports whether err signals that the peer finished sending.
func IsEndOfStream(err error) bool {
	return errors.Is(err, io.EOF)
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}

	if f, ok := w.(Flusher); ok {
		return f.Flush()
	}

	return nil
}
