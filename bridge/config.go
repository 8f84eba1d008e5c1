package bridge

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-serbridge/bus"
	"github.com/arloliu/go-serbridge/endpoint"
	"github.com/arloliu/go-serbridge/identity"
	"github.com/arloliu/go-serbridge/logger"
)

const (
	DefaultQueueCapacity       = bus.DefaultCapacity
	DefaultChunkSize           = endpoint.DefaultChunkSize
	DefaultAcceptTimeout       = 1 * time.Second // Accept deadline per iteration
	DefaultCloseTimeout        = 3 * time.Second
	DefaultKeepAlive           = 15 * time.Second
	DefaultSerialRetryInterval = 2 * time.Second

	DefaultAcceptBackoff = 50 * time.Millisecond
	MaxAcceptBackoff     = 1 * time.Second
	// MaxAcceptFailures is the number of consecutive accept failures, other
	// than timeouts and resource exhaustion, after which the listener is
	// considered unusable.
	MaxAcceptFailures = 10
)

// SerialLossPolicy decides what the bridge does when the serial endpoint terminates.
type SerialLossPolicy string

const (
	// SerialLossExit stops the bridge; Serve returns ErrSerialLost.
	SerialLossExit SerialLossPolicy = "exit"
	// SerialLossContinue keeps relaying between TCP clients without a serial endpoint.
	SerialLossContinue SerialLossPolicy = "continue"
	// SerialLossReopen reopens the device every retry interval.
	SerialLossReopen SerialLossPolicy = "reopen"
)

// ParseSerialLossPolicy converts a policy name. An empty name selects SerialLossExit.
func ParseSerialLossPolicy(s string) (SerialLossPolicy, error) {
	switch SerialLossPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case SerialLossExit, "":
		return SerialLossExit, nil
	case SerialLossContinue:
		return SerialLossContinue, nil
	case SerialLossReopen:
		return SerialLossReopen, nil
	default:
		return "", fmt.Errorf("bridge: unknown serial loss policy %q", s)
	}
}

// Config holds the configuration of a Bridge.
type Config struct {
	host string
	port int

	queueCapacity int
	chunkSize     int
	maxClients    int

	acceptTimeout       time.Duration
	closeTimeout        time.Duration
	keepAlive           time.Duration
	serialRetryInterval time.Duration
	lossPolicy          SerialLossPolicy

	allocator identity.Allocator
	logger    logger.Logger
}

// NewConfig creates a bridge configuration listening on host:port.
//
// An empty host binds every interface. Port 0 picks an ephemeral port.
// opts are functional options applied in order; see With* functions.
func NewConfig(host string, port int, opts ...Option) (*Config, error) {
	cfg := &Config{
		queueCapacity:       DefaultQueueCapacity,
		chunkSize:           DefaultChunkSize,
		acceptTimeout:       DefaultAcceptTimeout,
		closeTimeout:        DefaultCloseTimeout,
		keepAlive:           DefaultKeepAlive,
		serialRetryInterval: DefaultSerialRetryInterval,
		lossPolicy:          SerialLossExit,
		allocator:           identity.Default(),
		logger:              logger.GetLogger(),
	}

	if err := cfg.setHost(host); err != nil {
		return nil, err
	}
	if err := cfg.setPort(port); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (cfg *Config) setHost(host string) error {
	if host == "" {
		cfg.host = host
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		cfg.host = host
		return nil
	}

	host = strings.TrimPrefix(host, ".")
	host = strings.TrimSuffix(host, ".")
	if _, err := net.LookupHost(host); err == nil {
		cfg.host = host
		return nil
	}

	return fmt.Errorf("bridge: invalid host %q", host)
}

func (cfg *Config) setPort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("bridge: port %d out of range [0, 65535]", port)
	}
	cfg.port = port

	return nil
}

// --- Getters ---

// Host returns the bind host.
func (cfg *Config) Host() string { return cfg.host }

// Port returns the TCP port.
func (cfg *Config) Port() int { return cfg.port }

// Addr returns "host:port".
func (cfg *Config) Addr() string { return net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port)) }

// QueueCapacity returns the per-endpoint bus buffer capacity.
func (cfg *Config) QueueCapacity() int { return cfg.queueCapacity }

// ChunkSize returns the maximum number of bytes per published message.
func (cfg *Config) ChunkSize() int { return cfg.chunkSize }

// MaxClients returns the TCP client limit, 0 means unlimited.
func (cfg *Config) MaxClients() int { return cfg.maxClients }

// AcceptTimeout returns the accept deadline per iteration.
func (cfg *Config) AcceptTimeout() time.Duration { return cfg.acceptTimeout }

// CloseTimeout returns how long Close waits for tasks to finish.
func (cfg *Config) CloseTimeout() time.Duration { return cfg.closeTimeout }

// KeepAlive returns the TCP keep-alive period, a negative value disables keep-alive.
func (cfg *Config) KeepAlive() time.Duration { return cfg.keepAlive }

// SerialRetryInterval returns the delay between serial reopen attempts.
func (cfg *Config) SerialRetryInterval() time.Duration { return cfg.serialRetryInterval }

// SerialLossPolicy returns the serial loss policy.
func (cfg *Config) SerialLossPolicy() SerialLossPolicy { return cfg.lossPolicy }

// IDAllocator returns the endpoint identity allocator.
func (cfg *Config) IDAllocator() identity.Allocator { return cfg.allocator }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithQueueCapacity sets how many messages each endpoint may have buffered
// before the oldest one is dropped.
func WithQueueCapacity(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 {
			return errors.New("bridge: queue capacity must be >= 1")
		}
		cfg.queueCapacity = n

		return nil
	})
}

// WithChunkSize sets the read buffer size of every endpoint.
func WithChunkSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 {
			return errors.New("bridge: chunk size must be >= 1")
		}
		cfg.chunkSize = n

		return nil
	})
}

// WithMaxClients limits the number of concurrent TCP clients, 0 means unlimited.
// Connections over the limit are accepted and closed immediately.
func WithMaxClients(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 0 {
			return errors.New("bridge: max clients must be >= 0")
		}
		cfg.maxClients = n

		return nil
	})
}

// WithAcceptTimeout sets the accept deadline per iteration, which bounds how
// long the acceptor takes to notice cancellation.
func WithAcceptTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("bridge: accept timeout must be positive")
		}
		cfg.acceptTimeout = d

		return nil
	})
}

// WithCloseTimeout sets how long Close waits for endpoints to terminate.
func WithCloseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("bridge: close timeout must be positive")
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithKeepAlive sets the TCP keep-alive period of accepted connections.
// A negative value disables keep-alive.
func WithKeepAlive(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d == 0 {
			d = DefaultKeepAlive
		}
		cfg.keepAlive = d

		return nil
	})
}

// WithSerialLossPolicy sets what happens when the serial endpoint terminates.
func WithSerialLossPolicy(policy SerialLossPolicy) Option {
	return optFunc(func(cfg *Config) error {
		p, err := ParseSerialLossPolicy(string(policy))
		if err != nil {
			return err
		}
		cfg.lossPolicy = p

		return nil
	})
}

// WithSerialRetryInterval sets the delay between reopen attempts under SerialLossReopen.
func WithSerialRetryInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("bridge: serial retry interval must be positive")
		}
		cfg.serialRetryInterval = d

		return nil
	})
}

// WithIDAllocator sets the allocator of endpoint identities.
func WithIDAllocator(a identity.Allocator) Option {
	return optFunc(func(cfg *Config) error {
		if a == nil {
			return errors.New("bridge: id allocator must not be nil")
		}
		cfg.allocator = a

		return nil
	})
}

// WithLogger sets the logger for the bridge and its endpoints.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("bridge: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
