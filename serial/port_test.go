package serial

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rawRead struct {
	data string
	err  error
}

type fakeRaw struct {
	mu      sync.Mutex
	reads   []rawRead
	written []byte
	closed  int
}

func (f *fakeRaw) Read(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.reads) == 0 {
		return 0, io.EOF
	}
	r := f.reads[0]
	f.reads = f.reads[1:]

	return copy(b, r.data), r.err
}

func (f *fakeRaw) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, b...)

	return len(b), nil
}

func (f *fakeRaw) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++

	return nil
}

func TestTarmPort_TimeoutMapping(t *testing.T) {
	require := require.New(t)

	failure := errors.New("input/output error")
	raw := &fakeRaw{reads: []rawRead{
		{data: "", err: nil},
		{data: "", err: io.EOF},
		{data: "AB", err: nil},
		{data: "", err: failure},
	}}
	p := newTarmPort("/dev/ttyS0", raw)
	require.Equal("/dev/ttyS0", p.Name())

	buf := make([]byte, 8)

	_, err := p.Read(buf)
	require.ErrorIs(err, ErrTimeout)
	_, err = p.Read(buf)
	require.ErrorIs(err, ErrTimeout)

	var te interface{ Timeout() bool }
	require.ErrorAs(err, &te)
	require.True(te.Timeout())

	n, err := p.Read(buf)
	require.NoError(err)
	require.Equal("AB", string(buf[:n]))

	_, err = p.Read(buf)
	require.ErrorIs(err, failure)
}

func TestTarmPort_Close(t *testing.T) {
	raw := &fakeRaw{}
	p := newTarmPort("/dev/ttyS0", raw)

	n, err := p.Write([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, raw.closed)

	_, err = p.Read(make([]byte, 1))
	require.ErrorIs(t, err, os.ErrClosed)
	_, err = p.Write([]byte("x"))
	require.ErrorIs(t, err, os.ErrClosed)
	assert.Equal(t, "hi", string(raw.written))
}

type fakeMedia struct {
	mu     sync.Mutex
	sent   [][]byte
	sendFn func(data any) error
	closed int
}

func (m *fakeMedia) Send(data any, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendFn != nil {
		if err := m.sendFn(data); err != nil {
			return err
		}
	}
	b, _ := data.([]byte)
	m.sent = append(m.sent, append([]byte(nil), b...))

	return nil
}

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++

	return nil
}

func TestGuruxPort_Read(t *testing.T) {
	require := require.New(t)

	p := newGuruxPort("COM3", &fakeMedia{}, 30*time.Millisecond)
	require.Equal("COM3", p.Name())

	buf := make([]byte, 4)

	_, err := p.Read(buf)
	require.ErrorIs(err, ErrTimeout)

	p.deliver([]byte("0123456"))
	p.deliver(nil)

	n, err := p.Read(buf)
	require.NoError(err)
	require.Equal("0123", string(buf[:n]))

	n, err = p.Read(buf)
	require.NoError(err)
	require.Equal("456", string(buf[:n]))

	_, err = p.Read(buf)
	require.ErrorIs(err, ErrTimeout)
}

func TestGuruxPort_ErrorAndClose(t *testing.T) {
	require := require.New(t)

	media := &fakeMedia{}
	p := newGuruxPort("COM3", media, time.Second)

	failure := errors.New("device removed")
	p.fail(failure)
	p.fail(errors.New("second error is dropped"))

	_, err := p.Read(make([]byte, 4))
	require.ErrorIs(err, failure)

	n, err := p.Write([]byte("cmd"))
	require.NoError(err)
	require.Equal(3, n)
	require.Equal([][]byte{[]byte("cmd")}, media.sent)

	readErr := make(chan error, 1)
	go func() {
		_, err := p.Read(make([]byte, 4))
		readErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(p.Close())
	require.NoError(p.Close())
	require.Equal(1, media.closed)

	select {
	case err := <-readErr:
		require.ErrorIs(err, os.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Close")
	}

	_, err = p.Write([]byte("x"))
	require.ErrorIs(err, os.ErrClosed)

	// deliver after close must not block
	p.deliver([]byte("late"))
}

func TestGuruxPort_WriteError(t *testing.T) {
	sendErr := errors.New("write failed")
	p := newGuruxPort("COM3", &fakeMedia{sendFn: func(any) error { return sendErr }}, time.Second)

	n, err := p.Write([]byte("x"))
	require.ErrorIs(t, err, sendErr)
	require.Zero(t, n)
}
