// Command serbridge shares one serial device with any number of TCP clients.
//
// Every byte read from the serial device is sent to all connected clients,
// and every byte received from a client is sent to the serial device and to
// all other clients.
//
// Usage:
//
//	serbridge --serial-port /dev/ttyUSB0 --baudrate 115200 --tcp-port 5000
//	serbridge --config /etc/serbridge.toml --log-level debug
//
// Set ENV=development for colored console logs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/go-serbridge/bridge"
	"github.com/arloliu/go-serbridge/config"
	"github.com/arloliu/go-serbridge/endpoint"
	"github.com/arloliu/go-serbridge/logger"
	"github.com/arloliu/go-serbridge/metrics"
	"github.com/arloliu/go-serbridge/serial"
)

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "serbridge: %v\n", err)
		os.Exit(2)
	}

	if opts.validateOnly {
		fmt.Println("serbridge: configuration ok")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exitSig := make(chan os.Signal, 1)
	signal.Notify(exitSig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(exitSig)

	go func() {
		select {
		case sig := <-exitSig:
			logger.Info("exit signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, opts.settings); err != nil {
		logger.Error("serbridge stopped", "error", err)
		cancel()
		os.Exit(1)
	}

	logger.Info("shutdown finished")
}

// run starts the bridge described by s and blocks until ctx is done or the
// bridge stops on its own.
func run(ctx context.Context, s config.Settings) error {
	level, err := logger.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	log := logger.NewSlog(level, false)
	logger.SetLogger(log)

	cfg, err := s.BridgeConfig(log)
	if err != nil {
		return err
	}

	serialCfg := s.SerialConfig()
	b, err := bridge.New(ctx, cfg, func() (endpoint.Transport, error) {
		return serial.Open(serialCfg)
	})
	if err != nil {
		return err
	}

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	metricsDone := make(chan struct{})

	if s.MetricsAddr != "" {
		reg, err := metrics.NewRegistry(b)
		if err != nil {
			stopMetrics()
			return fmt.Errorf("register metrics: %w", err)
		}

		go func() {
			defer close(metricsDone)
			_ = metrics.ListenAndServe(metricsCtx, s.MetricsAddr, metrics.NewHandler(reg), log)
		}()
	} else {
		close(metricsDone)
	}

	log.Info("starting serbridge",
		"serial_port", serialCfg.Path,
		"baudrate", serialCfg.BaudRate,
		"driver", string(serialCfg.Driver),
		"address", cfg.Addr(),
		"on_serial_loss", string(cfg.SerialLossPolicy()),
	)

	serveErr := b.ListenAndServe()
	closeErr := b.Close()

	stopMetrics()
	<-metricsDone

	return errors.Join(serveErr, closeErr)
}
