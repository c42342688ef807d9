package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/discovery"
	"github.com/mash-protocol/matter-stack/pkg/stack"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultPort is the operational UDP port.
const DefaultPort = 5540

// options are the command-line flags.
type options struct {
	ConfigFile    string
	Storage       string
	Backend       string
	Port          int
	Interface     string
	Passcode      uint
	Discriminator uint
	LogLevel      string
	Capture       string
	Simulate      time.Duration
	FactoryReset  bool

	// set records the flags given explicitly; they override the file.
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("matter-device", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.ConfigFile, "config", "", "YAML configuration file")
	fs.StringVar(&o.Storage, "storage", "matter-device.nvs", "Storage directory (file) or database path (sqlite)")
	fs.StringVar(&o.Backend, "backend", BackendFile, "Storage backend: file, sqlite, memory")
	fs.IntVar(&o.Port, "port", DefaultPort, "Operational UDP port")
	fs.StringVar(&o.Interface, "interface", "", "Network interface to watch and advertise on (all if empty)")
	fs.UintVar(&o.Passcode, "passcode", 20202021, "Setup passcode")
	fs.UintVar(&o.Discriminator, "discriminator", 3840, "Discriminator (0-4095)")
	fs.StringVar(&o.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&o.Capture, "capture", "", "Protocol capture file (CBOR)")
	fs.DurationVar(&o.Simulate, "simulate", 0, "Toggle the light at this interval (0 disables)")
	fs.BoolVar(&o.FactoryReset, "factory-reset", false, "Erase persisted state before starting")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// commissioningFile is the commissioning section of the YAML file. The
// salt is hex encoded.
type commissioningFile struct {
	Passcode      uint32 `yaml:"passcode"`
	Discriminator uint16 `yaml:"discriminator"`
	Salt          string `yaml:"salt"`
	Iterations    int    `yaml:"iterations"`
}

// fileConfig is the YAML file layout.
type fileConfig struct {
	Stack         stack.Config               `yaml:"stack"`
	Commissioning commissioningFile          `yaml:"commissioning"`
	Advertiser    discovery.AdvertiserConfig `yaml:"advertiser"`
	Storage       string                     `yaml:"storage"`
	Backend       string                     `yaml:"backend"`
	Port          int                        `yaml:"port"`
	Interface     string                     `yaml:"interface"`
	Capture       string                     `yaml:"capture"`
}

// deviceConfig is the resolved configuration.
type deviceConfig struct {
	Stack         stack.Config
	Commissioning stack.CommissioningData
	Advertiser    discovery.AdvertiserConfig
	Storage       string
	Backend       string
	Port          int
	Interface     string
	Capture       string
}

func defaultFileConfig() fileConfig {
	cfg := stack.DefaultConfig()
	cfg.Device = stack.DeviceInfo{
		VendorID:   0xFFF1,
		ProductID:  0x8000,
		DeviceType: 0x0101,
		DeviceName: "Dimmable Light",
	}
	return fileConfig{
		Stack: cfg,
		Commissioning: commissioningFile{
			Passcode:      20202021,
			Discriminator: 3840,
			Iterations:    1000,
		},
		Advertiser: discovery.DefaultAdvertiserConfig(),
		Backend:    BackendFile,
		Storage:    "matter-device.nvs",
		Port:       DefaultPort,
	}
}

// loadConfig applies the YAML file over the defaults and explicit flags
// over the file.
func loadConfig(o *options) (*deviceConfig, error) {
	fc := defaultFileConfig()
	if o.ConfigFile != "" {
		data, err := os.ReadFile(o.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", o.ConfigFile, err)
		}
	}

	if o.ConfigFile == "" || o.set["storage"] {
		fc.Storage = o.Storage
	}
	if o.ConfigFile == "" || o.set["backend"] {
		fc.Backend = o.Backend
	}
	if o.ConfigFile == "" || o.set["port"] {
		fc.Port = o.Port
	}
	if o.set["interface"] {
		fc.Interface = o.Interface
	}
	if o.set["capture"] {
		fc.Capture = o.Capture
	}
	if o.set["passcode"] {
		fc.Commissioning.Passcode = uint32(o.Passcode)
	}
	if o.set["discriminator"] {
		if o.Discriminator > discovery.MaxDiscriminator {
			return nil, discovery.ErrInvalidDiscriminator
		}
		fc.Commissioning.Discriminator = uint16(o.Discriminator)
	}
	if fc.Advertiser.Interface == "" {
		fc.Advertiser.Interface = fc.Interface
	}

	cd := stack.CommissioningData{
		Passcode:      fc.Commissioning.Passcode,
		Discriminator: fc.Commissioning.Discriminator,
		Iterations:    fc.Commissioning.Iterations,
	}
	if fc.Commissioning.Salt == "" {
		cd.Salt = make([]byte, stack.MaxSaltLen)
		if _, err := rand.Read(cd.Salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
	} else {
		salt, err := hex.DecodeString(fc.Commissioning.Salt)
		if err != nil {
			return nil, fmt.Errorf("commissioning salt: %w", err)
		}
		cd.Salt = salt
	}

	dc := &deviceConfig{
		Stack:         fc.Stack,
		Commissioning: cd,
		Advertiser:    fc.Advertiser,
		Storage:       fc.Storage,
		Backend:       fc.Backend,
		Port:          fc.Port,
		Interface:     fc.Interface,
		Capture:       fc.Capture,
	}
	if err := dc.validate(); err != nil {
		return nil, err
	}
	return dc, nil
}

func (c *deviceConfig) validate() error {
	if err := c.Stack.Validate(); err != nil {
		return err
	}
	if err := c.Commissioning.Validate(); err != nil {
		return fmt.Errorf("commissioning: %w", err)
	}
	switch c.Backend {
	case BackendFile, BackendSQLite:
		if c.Storage == "" {
			return errors.New("storage path is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Backend)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level: %s", level)
}
