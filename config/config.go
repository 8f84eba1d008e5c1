// Package config loads and validates the settings of the serbridge command.
//
// Settings start from Default, are overlaid with the keys present in an
// optional TOML file and finally with command-line flags. Validate must pass
// before the settings are turned into serial and bridge configurations.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/arloliu/go-serbridge/bridge"
	"github.com/arloliu/go-serbridge/logger"
	"github.com/arloliu/go-serbridge/serial"
)

const (
	DefaultBindHost = "0.0.0.0"
	DefaultBaudRate = serial.MinBaudRate
)

// Settings is the complete, flat configuration of one bridge process.
type Settings struct {
	SerialPort   string
	BaudRate     int
	SerialDriver string
	DataBits     int
	Parity       string
	StopBits     int
	ReadTimeout  time.Duration

	BindHost string
	TCPPort  int

	QueueCapacity       int
	ChunkSize           int
	MaxClients          int
	OnSerialLoss        string
	SerialRetryInterval time.Duration

	LogLevel    string
	MetricsAddr string
}

// Default returns the settings used when neither file nor flags set a value.
// SerialPort and TCPPort have no default.
func Default() Settings {
	return Settings{
		BaudRate:            DefaultBaudRate,
		SerialDriver:        string(serial.DriverTarm),
		DataBits:            serial.DefaultDataBits,
		Parity:              string(serial.ParityNone),
		StopBits:            serial.DefaultStopBits,
		ReadTimeout:         serial.DefaultReadTimeout,
		BindHost:            DefaultBindHost,
		QueueCapacity:       bridge.DefaultQueueCapacity,
		ChunkSize:           bridge.DefaultChunkSize,
		OnSerialLoss:        string(bridge.SerialLossExit),
		SerialRetryInterval: bridge.DefaultSerialRetryInterval,
		LogLevel:            "info",
	}
}

type fileConfig struct {
	SerialPort          string `toml:"serial_port"`
	BaudRate            int    `toml:"baudrate"`
	SerialDriver        string `toml:"serial_driver"`
	DataBits            int    `toml:"data_bits"`
	Parity              string `toml:"parity"`
	StopBits            int    `toml:"stop_bits"`
	ReadTimeout         string `toml:"read_timeout"`
	BindHost            string `toml:"bind_host"`
	TCPPort             int    `toml:"tcp_port"`
	QueueCapacity       int    `toml:"queue_capacity"`
	ChunkSize           int    `toml:"chunk_size"`
	MaxClients          int    `toml:"max_clients"`
	OnSerialLoss        string `toml:"on_serial_loss"`
	SerialRetryInterval string `toml:"serial_retry_interval"`
	LogLevel            string `toml:"log_level"`
	MetricsAddr         string `toml:"metrics_addr"`
}

// LoadFile overlays the keys defined in the TOML file at path onto base.
// Keys absent from the file keep the value from base.
func LoadFile(path string, base Settings) (Settings, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Settings{}, fmt.Errorf("config: load %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}

		return Settings{}, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	cfg := base

	if meta.IsDefined("serial_port") {
		cfg.SerialPort = strings.TrimSpace(raw.SerialPort)
	}
	if meta.IsDefined("baudrate") {
		cfg.BaudRate = raw.BaudRate
	}
	if meta.IsDefined("serial_driver") {
		cfg.SerialDriver = strings.TrimSpace(raw.SerialDriver)
	}
	if meta.IsDefined("data_bits") {
		cfg.DataBits = raw.DataBits
	}
	if meta.IsDefined("parity") {
		cfg.Parity = strings.TrimSpace(raw.Parity)
	}
	if meta.IsDefined("stop_bits") {
		cfg.StopBits = raw.StopBits
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return Settings{}, fmt.Errorf("config: parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("bind_host") {
		cfg.BindHost = strings.TrimSpace(raw.BindHost)
	}
	if meta.IsDefined("tcp_port") {
		cfg.TCPPort = raw.TCPPort
	}
	if meta.IsDefined("queue_capacity") {
		cfg.QueueCapacity = raw.QueueCapacity
	}
	if meta.IsDefined("chunk_size") {
		cfg.ChunkSize = raw.ChunkSize
	}
	if meta.IsDefined("max_clients") {
		cfg.MaxClients = raw.MaxClients
	}
	if meta.IsDefined("on_serial_loss") {
		cfg.OnSerialLoss = strings.TrimSpace(raw.OnSerialLoss)
	}
	if meta.IsDefined("serial_retry_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SerialRetryInterval))
		if err != nil {
			return Settings{}, fmt.Errorf("config: parse serial_retry_interval: %w", err)
		}
		cfg.SerialRetryInterval = d
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (s Settings) Validate() error {
	var errs []error

	if err := s.SerialConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.TCPPort < 1 || s.TCPPort > 65535 {
		errs = append(errs, fmt.Errorf("config: tcp port %d out of range [1, 65535]", s.TCPPort))
	}
	if s.QueueCapacity < 1 {
		errs = append(errs, errors.New("config: queue_capacity must be >= 1"))
	}
	if s.ChunkSize < 1 {
		errs = append(errs, errors.New("config: chunk_size must be >= 1"))
	}
	if s.MaxClients < 0 {
		errs = append(errs, errors.New("config: max_clients must be >= 0"))
	}
	if _, err := bridge.ParseSerialLossPolicy(s.OnSerialLoss); err != nil {
		errs = append(errs, err)
	}
	if s.SerialRetryInterval <= 0 {
		errs = append(errs, errors.New("config: serial_retry_interval must be positive"))
	}
	if _, err := logger.ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}

	return errors.Join(errs...)
}

// SerialConfig returns the serial line configuration.
func (s Settings) SerialConfig() serial.Config {
	return serial.Config{
		Path:        s.SerialPort,
		BaudRate:    s.BaudRate,
		DataBits:    s.DataBits,
		Parity:      serial.Parity(strings.ToLower(s.Parity)),
		StopBits:    s.StopBits,
		ReadTimeout: s.ReadTimeout,
		Driver:      serial.Driver(strings.ToLower(s.SerialDriver)),
	}
}

// BridgeConfig returns the bridge configuration for validated settings.
func (s Settings) BridgeConfig(l logger.Logger, opts ...bridge.Option) (*bridge.Config, error) {
	base := []bridge.Option{
		bridge.WithQueueCapacity(s.QueueCapacity),
		bridge.WithChunkSize(s.ChunkSize),
		bridge.WithMaxClients(s.MaxClients),
		bridge.WithSerialLossPolicy(bridge.SerialLossPolicy(s.OnSerialLoss)),
		bridge.WithSerialRetryInterval(s.SerialRetryInterval),
	}
	if l != nil {
		base = append(base, bridge.WithLogger(l))
	}

	return bridge.NewConfig(s.BindHost, s.TCPPort, append(base, opts...)...)
}
