package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mash-protocol/matter-stack/pkg/discovery"
	"github.com/mash-protocol/matter-stack/pkg/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	opts, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, uint32(20202021), cfg.Commissioning.Passcode)
	assert.Equal(t, uint16(3840), cfg.Commissioning.Discriminator)
	assert.Len(t, cfg.Commissioning.Salt, stack.MaxSaltLen, "salt is generated")
	assert.Equal(t, stack.DefaultCommissioningTimeout, cfg.Stack.CommissioningTimeout)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
stack:
  device:
    vendor_id: 65522
    device_name: Porch Light
  commissioning_timeout: 5m
  debounce: 1s
commissioning:
  passcode: 34567890
  discriminator: 100
  salt: 000102030405060708090a0b0c0d0e0f
  iterations: 2000
backend: sqlite
storage: /tmp/device.db
port: 5541
capture: /tmp/capture.cbor
`)
	opts, err := parseFlags([]string{"-config", path}, io.Discard)
	require.NoError(t, err)

	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, uint16(65522), cfg.Stack.Device.VendorID)
	assert.Equal(t, "Porch Light", cfg.Stack.Device.DeviceName)
	assert.Equal(t, 5*time.Minute, cfg.Stack.CommissioningTimeout)
	assert.Equal(t, time.Second, cfg.Stack.Debounce)
	assert.Equal(t, stack.DefaultCommissioningAttempts, cfg.Stack.CommissioningAttempts)
	assert.Equal(t, uint32(34567890), cfg.Commissioning.Passcode)
	assert.Equal(t, uint16(100), cfg.Commissioning.Discriminator)
	assert.Equal(t, 2000, cfg.Commissioning.Iterations)
	assert.Len(t, cfg.Commissioning.Salt, 16)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "/tmp/device.db", cfg.Storage)
	assert.Equal(t, 5541, cfg.Port)
	assert.Equal(t, "/tmp/capture.cbor", cfg.Capture)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
commissioning:
  passcode: 34567890
backend: sqlite
storage: /tmp/device.db
port: 5541
interface: eth1
`)
	opts, err := parseFlags([]string{
		"-config", path,
		"-passcode", "11223344",
		"-port", "6000",
		"-backend", "memory",
		"-interface", "eth0",
	}, io.Discard)
	require.NoError(t, err)

	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, uint32(11223344), cfg.Commissioning.Passcode)
	assert.Equal(t, 6000, cfg.Port)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, "/tmp/device.db", cfg.Storage, "unset flags keep file values")
	assert.Equal(t, "eth0", cfg.Interface)
	assert.Equal(t, "eth0", cfg.Advertiser.Interface)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		args []string
	}{
		{name: "bad discriminator flag", args: []string{"-discriminator", "5000"}},
		{name: "trivial passcode", args: []string{"-passcode", "11111111"}},
		{name: "unknown backend", args: []string{"-backend", "tape"}},
		{name: "bad port", args: []string{"-port", "70000"}},
		{name: "bad salt", yaml: "commissioning:\n  salt: xyz\n"},
		{name: "short salt", yaml: "commissioning:\n  salt: \"0011\"\n"},
		{name: "bad timeout", yaml: "stack:\n  commissioning_timeout: 10s\n"},
		{name: "malformed yaml", yaml: "stack: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			if tt.yaml != "" {
				args = append([]string{"-config", writeConfig(t, tt.yaml)}, args...)
			}
			opts, err := parseFlags(args, io.Discard)
			require.NoError(t, err)
			_, err = loadConfig(opts)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts, err := parseFlags([]string{"-config", filepath.Join(t.TempDir(), "absent.yaml")}, io.Discard)
	require.NoError(t, err)
	_, err = loadConfig(opts)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDiscriminatorFlagRange(t *testing.T) {
	opts, err := parseFlags([]string{"-discriminator", "4096"}, io.Discard)
	require.NoError(t, err)
	_, err = loadConfig(opts)
	assert.ErrorIs(t, err, discovery.ErrInvalidDiscriminator)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseLevel("verbose")
	assert.Error(t, err)
}

func TestOpenPartition(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{BackendFile, BackendSQLite, BackendMemory} {
		t.Run(backend, func(t *testing.T) {
			part, closePart, err := openPartition(backend, filepath.Join(dir, backend))
			require.NoError(t, err)
			defer closePart()

			require.NoError(t, part.Set("matter", "k", []byte("v")))
			v, err := part.Get("matter", "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), v)
		})
	}

	_, _, err := openPartition("tape", dir)
	assert.Error(t, err)
}
