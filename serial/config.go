package serial

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Driver selects the serial library used to open the device.
type Driver string

const (
	DriverTarm  Driver = "tarm"
	DriverGurux Driver = "gurux"
)

// Parity is the parity mode of the line.
type Parity string

const (
	ParityNone  Parity = "none"
	ParityOdd   Parity = "odd"
	ParityEven  Parity = "even"
	ParityMark  Parity = "mark"
	ParitySpace Parity = "space"
)

const (
	// MinBaudRate is the lowest accepted baud rate.
	MinBaudRate = 9600
	// DefaultReadTimeout bounds every Read so that the reader can observe Close.
	DefaultReadTimeout = 500 * time.Millisecond
	DefaultDataBits    = 8
	DefaultStopBits    = 1
)

// Config describes the serial line.
type Config struct {
	Path        string
	BaudRate    int
	DataBits    int
	Parity      Parity
	StopBits    int
	ReadTimeout time.Duration
	Driver      Driver
}

// DefaultConfig returns an 8N1 configuration for path using the tarm driver.
func DefaultConfig(path string, baudRate int) Config {
	return Config{
		Path:        path,
		BaudRate:    baudRate,
		DataBits:    DefaultDataBits,
		Parity:      ParityNone,
		StopBits:    DefaultStopBits,
		ReadTimeout: DefaultReadTimeout,
		Driver:      DriverTarm,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error

	if c.Path == "" {
		errs = append(errs, errors.New("serial: device path is required"))
	}
	if c.BaudRate < MinBaudRate {
		errs = append(errs, fmt.Errorf("serial: baud rate %d is lower than %d", c.BaudRate, MinBaudRate))
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		errs = append(errs, fmt.Errorf("serial: invalid data bits %d, must be 5..8", c.DataBits))
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		errs = append(errs, fmt.Errorf("serial: invalid stop bits %d, must be 1 or 2", c.StopBits))
	}
	if _, err := ParseParity(string(c.Parity)); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDriver(string(c.Driver)); err != nil {
		errs = append(errs, err)
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("serial: read timeout must be positive, got %s", c.ReadTimeout))
	}

	return errors.Join(errs...)
}

// ParseParity converts a case-insensitive parity name, or its first letter, into a Parity.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "n", "":
		return ParityNone, nil
	case "odd", "o":
		return ParityOdd, nil
	case "even", "e":
		return ParityEven, nil
	case "mark", "m":
		return ParityMark, nil
	case "space", "s":
		return ParitySpace, nil
	default:
		return "", fmt.Errorf("serial: unknown parity %q", s)
	}
}

// ParseDriver converts a driver name into a Driver. An empty name selects DriverTarm.
func ParseDriver(s string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(s))) {
	case DriverTarm, "":
		return DriverTarm, nil
	case DriverGurux:
		return DriverGurux, nil
	default:
		return "", fmt.Errorf("serial: unknown driver %q", s)
	}
}
