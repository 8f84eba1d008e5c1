package serial

import (
	"fmt"
	"io"
)

// ErrTimeout is returned by Read when no byte arrived within the read timeout.
var ErrTimeout error = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string   { return "serial: read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// Port is an open serial device.
type Port interface {
	io.ReadWriteCloser
	// Name returns the device path.
	Name() string
}

// Open validates cfg and opens the device with the configured driver.
func Open(cfg Config) (Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	driver, _ := ParseDriver(string(cfg.Driver))
	switch driver {
	case DriverGurux:
		return openGurux(cfg)
	default:
		return openTarm(cfg)
	}
}

func wrapOpenErr(cfg Config, err error) error {
	return fmt.Errorf("serial: open %s (%s, %d baud): %w", cfg.Path, cfg.Driver, cfg.BaudRate, err)
}
