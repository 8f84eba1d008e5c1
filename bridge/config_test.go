package bridge

import (
	"testing"
	"time"

	"github.com/arloliu/go-serbridge/identity"
	"github.com/arloliu/go-serbridge/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig("127.0.0.1", 5000)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host())
	assert.Equal(t, 5000, cfg.Port())
	assert.Equal(t, "127.0.0.1:5000", cfg.Addr())
	assert.Equal(t, DefaultQueueCapacity, cfg.QueueCapacity())
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize())
	assert.Zero(t, cfg.MaxClients())
	assert.Equal(t, DefaultAcceptTimeout, cfg.AcceptTimeout())
	assert.Equal(t, DefaultCloseTimeout, cfg.CloseTimeout())
	assert.Equal(t, DefaultKeepAlive, cfg.KeepAlive())
	assert.Equal(t, DefaultSerialRetryInterval, cfg.SerialRetryInterval())
	assert.Equal(t, SerialLossExit, cfg.SerialLossPolicy())
	assert.NotNil(t, cfg.IDAllocator())
	assert.NotNil(t, cfg.GetLogger())
}

func TestNewConfig_WithOptions(t *testing.T) {
	alloc := identity.NewSequentialAllocator(100)
	l := logger.NewPermissiveMockLogger()

	cfg, err := NewConfig("", 6000,
		WithQueueCapacity(32),
		WithChunkSize(256),
		WithMaxClients(8),
		WithAcceptTimeout(200*time.Millisecond),
		WithCloseTimeout(time.Second),
		WithKeepAlive(30*time.Second),
		WithSerialLossPolicy(SerialLossReopen),
		WithSerialRetryInterval(5*time.Second),
		WithIDAllocator(alloc),
		WithLogger(l),
	)
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Addr())
	assert.Equal(t, 32, cfg.QueueCapacity())
	assert.Equal(t, 256, cfg.ChunkSize())
	assert.Equal(t, 8, cfg.MaxClients())
	assert.Equal(t, 200*time.Millisecond, cfg.AcceptTimeout())
	assert.Equal(t, time.Second, cfg.CloseTimeout())
	assert.Equal(t, 30*time.Second, cfg.KeepAlive())
	assert.Equal(t, SerialLossReopen, cfg.SerialLossPolicy())
	assert.Equal(t, 5*time.Second, cfg.SerialRetryInterval())
	assert.Same(t, alloc, cfg.IDAllocator())
	assert.Same(t, l, cfg.GetLogger())
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		opt  Option
	}{
		{name: "port", host: "127.0.0.1", port: 70000},
		{name: "negative port", host: "127.0.0.1", port: -1},
		{name: "host", host: "no-such-host.invalid", port: 1},
		{name: "queue capacity", host: "127.0.0.1", opt: WithQueueCapacity(0)},
		{name: "chunk size", host: "127.0.0.1", opt: WithChunkSize(0)},
		{name: "max clients", host: "127.0.0.1", opt: WithMaxClients(-1)},
		{name: "accept timeout", host: "127.0.0.1", opt: WithAcceptTimeout(0)},
		{name: "close timeout", host: "127.0.0.1", opt: WithCloseTimeout(-time.Second)},
		{name: "loss policy", host: "127.0.0.1", opt: WithSerialLossPolicy("ignore")},
		{name: "retry interval", host: "127.0.0.1", opt: WithSerialRetryInterval(0)},
		{name: "allocator", host: "127.0.0.1", opt: WithIDAllocator(nil)},
		{name: "logger", host: "127.0.0.1", opt: WithLogger(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}
			_, err := NewConfig(tt.host, tt.port, opts...)
			require.Error(t, err)
		})
	}
}

func TestWithKeepAlive_ZeroUsesDefault(t *testing.T) {
	cfg, err := NewConfig("127.0.0.1", 1, WithKeepAlive(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultKeepAlive, cfg.KeepAlive())
}

func TestParseSerialLossPolicy(t *testing.T) {
	for in, want := range map[string]SerialLossPolicy{
		"":         SerialLossExit,
		"EXIT":     SerialLossExit,
		"continue": SerialLossContinue,
		" reopen ": SerialLossReopen,
	} {
		got, err := ParseSerialLossPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseSerialLossPolicy("crash")
	require.Error(t, err)
}
