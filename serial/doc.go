// Package serial opens the physical serial device used by the bridge.
//
// Two drivers are available. The "tarm" driver (the default) uses
// github.com/tarm/serial and reads the port directly. The "gurux" driver uses
// github.com/Gurux/gxserial-go, whose background reader delivers received
// bytes through a callback; the port buffers those bytes until Read is called.
//
// Both drivers return a port whose Read blocks for at most Config.ReadTimeout.
// A read that times out without data returns ErrTimeout, which reports
// Timeout() == true so that callers can retry it.
package serial
