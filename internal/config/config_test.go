package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "media-volume-basic", cfg.Mode)
	assert.Equal(t, uint32(0x3C2), cfg.Frames.SteeringWheel)
	assert.Equal(t, 4*time.Second, cfg.Modes.Volume.Min())
	assert.Equal(t, 8*time.Second, cfg.Modes.Volume.Max())
	assert.Equal(t, 300*time.Millisecond, cfg.Modes.Volume.PulseGap())
	assert.Equal(t, 1200*time.Millisecond, cfg.Reliability.ReconnectDelay())
	assert.Equal(t, 10*time.Millisecond, cfg.Reliability.PollInterval())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted interval", func(c *Config) { c.Modes.Volume.IntervalMin = 9; c.Modes.Volume.IntervalMax = 4 }},
		{"zero interval", func(c *Config) { c.Modes.Speed.IntervalMin = 0 }},
		{"negative delay", func(c *Config) { c.Modes.Back.Delay = -0.1 }},
		{"zero clock steps", func(c *Config) { c.Modes.ClockTickSteps = 0 }},
		{"zero tickle interval", func(c *Config) { c.Modes.Advanced.TickleInterval = 0 }},
		{"bad gate", func(c *Config) { c.Modes.Advanced.Gate = "reverse" }},
		{"empty tap window", func(c *Config) { c.Modes.Advanced.DoubleTapMin = 0.75; c.Modes.Advanced.DoubleTapMax = 0.75 }},
		{"zero exception budget", func(c *Config) { c.Reliability.MaxExceptionCount = 0 }},
		{"zero reconnect attempts", func(c *Config) { c.Reliability.MaxReconnectAttempts = 0 }},
		{"zero poll interval", func(c *Config) { c.Reliability.PollIntervalMs = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: advanced
dry_run: true
bus:
  device: /dev/ttyUSB3
modes:
  advanced:
    tickle_interval: 7
    gate: drive
reliability:
  max_exception_count: 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "advanced", cfg.Mode)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "/dev/ttyUSB3", cfg.Bus.Device)
	assert.Equal(t, 7, cfg.Modes.Advanced.TickleInterval)
	assert.Equal(t, "drive", cfg.Modes.Advanced.Gate)
	assert.Equal(t, 3, cfg.Reliability.MaxExceptionCount)

	// Untouched keys keep their defaults.
	assert.Equal(t, 115200, cfg.Bus.BaudRate)
	assert.Equal(t, 8, cfg.Modes.ClockTickSteps)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Mode, cfg.Mode)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CANWAKE_DEVICE", "/dev/ttyACM7")
	t.Setenv("CANWAKE_MODE", "speed")
	t.Setenv("CANWAKE_LISTEN", ":9000")
	t.Setenv("CANWAKE_DRY_RUN", "true")
	t.Setenv("CANWAKE_BAUD", "921600")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM7", cfg.Bus.Device)
	assert.Equal(t, "speed", cfg.Mode)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 921600, cfg.Bus.BaudRate)
}
