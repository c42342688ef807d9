// Command matter-device runs a dimmable light on the host network.
//
// The device commissions over the IP network (the Ethernet variant):
// it announces itself with DNS-SD, accepts a commissioner on its UDP
// port and, once it holds a fabric, serves the On/Off and Level Control
// clusters until stopped.
//
// Usage:
//
//	matter-device [flags]
//
// Flags:
//
//	-config string         YAML configuration file
//	-storage string        Storage directory or database path (default "matter-device.nvs")
//	-backend string        Storage backend: file, sqlite, memory (default "file")
//	-port int              Operational UDP port (default 5540)
//	-interface string      Network interface to watch and advertise on
//	-passcode uint         Setup passcode (default 20202021)
//	-discriminator uint    Discriminator (default 3840)
//	-log-level string      Log level: debug, info, warn, error (default "info")
//	-capture string        Protocol capture file
//	-simulate duration     Toggle the light at this interval
//	-factory-reset         Erase persisted state before starting
//
// Examples:
//
//	# Start with a persistent file partition
//	matter-device -storage /var/lib/matter-device
//
//	# Keep state in SQLite and capture protocol events
//	matter-device -backend sqlite -storage device.db -capture device.cbor
//
//	# Toggle the light every 5 seconds
//	matter-device -simulate 5s -log-level debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mash-protocol/matter-stack/pkg/discovery"
	"github.com/mash-protocol/matter-stack/pkg/examples"
	"github.com/mash-protocol/matter-stack/pkg/log"
	"github.com/mash-protocol/matter-stack/pkg/nvs"
	"github.com/mash-protocol/matter-stack/pkg/stack"
)

// captureMaxBytes rotates the capture file.
const captureMaxBytes = 16 << 20

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "matter-device: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	level, err := parseLevel(opts.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	part, closePart, err := openPartition(cfg.Backend, cfg.Storage)
	if err != nil {
		return err
	}
	defer closePart()

	loggers := []log.Logger{log.NewSlogAdapter(logger)}
	if cfg.Capture != "" {
		capture, err := log.NewFileLogger(cfg.Capture, captureMaxBytes)
		if err != nil {
			return fmt.Errorf("open capture: %w", err)
		}
		defer capture.Close()
		loggers = append(loggers, capture)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var s *stack.Stack
	light := examples.NewLight(examples.LightConfig{
		OnChange: func() {
			if s != nil {
				s.NotifyChanged()
			}
		},
	})

	scfg := cfg.Stack
	scfg.Logger = logger
	scfg.ProtocolLogger = log.NewMultiLogger(loggers...)
	scfg.OnModeChange = func(from, to stack.Mode) {
		logger.Info("mode changed", "from", from, "to", to)
	}
	if opts.Simulate > 0 {
		scfg.App = light.Simulate(opts.Simulate)
	}
	s, err = stack.Take(scfg)
	if err != nil {
		return err
	}

	adv := discovery.NewMDNSAdvertiser(cfg.Advertiser)
	defer adv.Shutdown()

	p := stack.Peripherals{
		Storage:    part,
		Netif:      watchInterfaces(ctx, hostSampler(cfg.Interface), pollInterval),
		Listen:     udpListener(cfg.Port),
		Advertiser: adv,
	}
	if err := s.Bind(p, light.Handler()); err != nil {
		return err
	}

	if opts.FactoryReset {
		if err := s.FactoryReset(); err != nil {
			return err
		}
		logger.Info("factory reset complete")
	}

	commissioned, err := s.IsCommissioned()
	if err != nil {
		return err
	}
	if !commissioned {
		if err := printCommissioningInfo(stderr, cfg.Commissioning); err != nil {
			return err
		}
	}

	logger.Info("device starting", "port", cfg.Port, "backend", cfg.Backend, "commissioned", commissioned)
	if err := s.Run(ctx, p, cfg.Commissioning, light.Handler()); err != nil {
		return err
	}
	logger.Info("device stopped")
	return nil
}

// openPartition opens the storage backend. The returned func closes it.
func openPartition(backend, path string) (nvs.Partition, func(), error) {
	switch backend {
	case BackendFile:
		p, err := nvs.OpenFilePartition(path)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	case BackendSQLite:
		p, err := nvs.OpenSQLitePartition(path)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	case BackendMemory:
		return nvs.NewMemoryPartition(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend: %s", backend)
}

// udpListener returns a Listen func for the operational port.
func udpListener(port int) func(ctx context.Context) (net.PacketConn, error) {
	return func(ctx context.Context) (net.PacketConn, error) {
		var lc net.ListenConfig
		return lc.ListenPacket(ctx, "udp", net.JoinHostPort("", strconv.Itoa(port)))
	}
}

func printCommissioningInfo(w io.Writer, cd stack.CommissioningData) error {
	code, err := cd.ManualPairingCode()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w, "  COMMISSIONING")
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "  Discriminator:  %d\n", cd.Discriminator)
	fmt.Fprintf(w, "  Passcode:       %08d\n", cd.Passcode)
	fmt.Fprintf(w, "  Pairing code:   %s\n", code)
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w, "")
	return nil
}
