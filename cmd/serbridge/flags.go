package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/arloliu/go-serbridge/config"
)

// cliOptions is the result of parsing the command line.
type cliOptions struct {
	settings     config.Settings
	configPath   string
	validateOnly bool
}

// parseArgs builds the settings from defaults, the optional TOML file given by
// --config and the flags explicitly set on the command line, in that order.
func parseArgs(args []string, output io.Writer) (*cliOptions, error) {
	fs := flag.NewFlagSet("serbridge", flag.ContinueOnError)
	fs.SetOutput(output)

	opts := &cliOptions{}
	v := config.Default()

	fs.StringVar(&opts.configPath, "config", "", "Path to a TOML configuration file")
	fs.BoolVar(&opts.validateOnly, "validate", false, "Validate the configuration and exit")

	fs.StringVar(&v.SerialPort, "serial-port", v.SerialPort, "The device path to a serial port (required)")
	fs.IntVar(&v.BaudRate, "baudrate", v.BaudRate, "The baudrate to connect at, at least 9600")
	fs.StringVar(&v.SerialDriver, "serial-driver", v.SerialDriver, "Serial driver: tarm or gurux")
	fs.IntVar(&v.DataBits, "data-bits", v.DataBits, "Data bits: 5, 6, 7 or 8")
	fs.StringVar(&v.Parity, "parity", v.Parity, "Parity: none, odd, even, mark or space")
	fs.IntVar(&v.StopBits, "stop-bits", v.StopBits, "Stop bits: 1 or 2")
	fs.DurationVar(&v.ReadTimeout, "read-timeout", v.ReadTimeout, "Serial read timeout")

	fs.StringVar(&v.BindHost, "bind-host", v.BindHost, "The host to bind the tcp server on")
	fs.IntVar(&v.TCPPort, "tcp-port", v.TCPPort, "The port to bind the tcp server on (required)")
	fs.IntVar(&v.MaxClients, "max-clients", v.MaxClients, "Maximum number of TCP clients, 0 for unlimited")
	fs.IntVar(&v.QueueCapacity, "queue-capacity", v.QueueCapacity, "Messages buffered per endpoint before the oldest is dropped")
	fs.IntVar(&v.ChunkSize, "chunk-size", v.ChunkSize, "Maximum bytes read per message")

	fs.StringVar(&v.OnSerialLoss, "on-serial-loss", v.OnSerialLoss, "Serial loss policy: exit, continue or reopen")
	fs.DurationVar(&v.SerialRetryInterval, "serial-retry-interval", v.SerialRetryInterval, "Delay between serial reopen attempts")

	fs.StringVar(&v.LogLevel, "log-level", v.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&v.MetricsAddr, "metrics-addr", v.MetricsAddr, "Address of the Prometheus metrics server, empty to disable")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	settings := config.Default()
	if opts.configPath != "" {
		var err error
		if settings, err = config.LoadFile(opts.configPath, settings); err != nil {
			return nil, err
		}
	}

	// flags given on the command line win over the file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "serial-port":
			settings.SerialPort = v.SerialPort
		case "baudrate":
			settings.BaudRate = v.BaudRate
		case "serial-driver":
			settings.SerialDriver = v.SerialDriver
		case "data-bits":
			settings.DataBits = v.DataBits
		case "parity":
			settings.Parity = v.Parity
		case "stop-bits":
			settings.StopBits = v.StopBits
		case "read-timeout":
			settings.ReadTimeout = v.ReadTimeout
		case "bind-host":
			settings.BindHost = v.BindHost
		case "tcp-port":
			settings.TCPPort = v.TCPPort
		case "max-clients":
			settings.MaxClients = v.MaxClients
		case "queue-capacity":
			settings.QueueCapacity = v.QueueCapacity
		case "chunk-size":
			settings.ChunkSize = v.ChunkSize
		case "on-serial-loss":
			settings.OnSerialLoss = v.OnSerialLoss
		case "serial-retry-interval":
			settings.SerialRetryInterval = v.SerialRetryInterval
		case "log-level":
			settings.LogLevel = v.LogLevel
		case "metrics-addr":
			settings.MetricsAddr = v.MetricsAddr
		}
	})

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	opts.settings = settings

	return opts, nil
}
