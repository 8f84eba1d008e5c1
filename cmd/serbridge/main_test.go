package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arloliu/go-serbridge/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs_Flags(t *testing.T) {
	opts, err := parseArgs([]string{
		"--serial-port", "/dev/ttyUSB0",
		"--baudrate", "115200",
		"--tcp-port", "5000",
		"--max-clients", "4",
		"--on-serial-loss", "reopen",
		"--read-timeout", "100ms",
	}, &bytes.Buffer{})
	require.NoError(t, err)

	s := opts.settings
	assert.Equal(t, "/dev/ttyUSB0", s.SerialPort)
	assert.Equal(t, 115200, s.BaudRate)
	assert.Equal(t, 5000, s.TCPPort)
	assert.Equal(t, 4, s.MaxClients)
	assert.Equal(t, "reopen", s.OnSerialLoss)
	assert.Equal(t, 100*time.Millisecond, s.ReadTimeout)
	assert.Equal(t, config.DefaultBindHost, s.BindHost)
	assert.False(t, opts.validateOnly)
}

func TestParseArgs_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
serial_port = "/dev/ttyS0"
baudrate = 19200
tcp_port = 6000
log_level = "warn"
`), 0o600))

	opts, err := parseArgs([]string{"--config", path, "--tcp-port", "7000", "--validate"}, &bytes.Buffer{})
	require.NoError(t, err)

	s := opts.settings
	assert.Equal(t, "/dev/ttyS0", s.SerialPort)
	assert.Equal(t, 19200, s.BaudRate)
	assert.Equal(t, 7000, s.TCPPort)
	assert.Equal(t, "warn", s.LogLevel)
	assert.True(t, opts.validateOnly)
	assert.Equal(t, path, opts.configPath)
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing serial port", args: []string{"--baudrate", "9600", "--tcp-port", "5000"}},
		{name: "missing tcp port", args: []string{"--serial-port", "/dev/ttyS0"}},
		{name: "low baud", args: []string{"--serial-port", "/dev/ttyS0", "--baudrate", "1200", "--tcp-port", "5000"}},
		{name: "bad flag", args: []string{"--no-such-flag"}},
		{name: "extra args", args: []string{"--serial-port", "/dev/ttyS0", "--tcp-port", "5000", "extra"}},
		{name: "bad file", args: []string{"--config", "/nonexistent/serbridge.toml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args, &bytes.Buffer{})
			require.Error(t, err)
		})
	}
}

func TestParseArgs_Help(t *testing.T) {
	out := &bytes.Buffer{}
	_, err := parseArgs([]string{"-h"}, out)
	require.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, out.String(), "serial-port")
}

func TestRun_SerialOpenFailure(t *testing.T) {
	s := config.Default()
	s.SerialPort = "/dev/serbridge-missing-device"
	s.BindHost = "127.0.0.1"
	s.TCPPort = 0
	s.LogLevel = "error"

	err := run(t.Context(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/serbridge-missing-device")
}
