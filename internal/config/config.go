package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the daemon needs: bus parameters, the frame
// identifiers treated as opaque protocol constants, per-mode timing, and
// reliability knobs for the supervisor.
type Config struct {
	Mode        string            `yaml:"mode" json:"mode"`
	DryRun      bool              `yaml:"dry_run" json:"dryRun"`
	Bus         BusConfig         `yaml:"bus" json:"bus"`
	Frames      FrameConfig       `yaml:"frames" json:"frames"`
	Modes       ModesConfig       `yaml:"modes" json:"modes"`
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`
	Server      ServerConfig      `yaml:"server" json:"server"`
}

type BusConfig struct {
	Device    string `yaml:"device" json:"device"`         // e.g. /dev/ttyACM0
	BaudRate  int    `yaml:"baud_rate" json:"baudRate"`    // serial link rate
	SpeedKbps int    `yaml:"speed_kbps" json:"speedKbps"`  // CAN bitrate
	Main      int    `yaml:"main" json:"main"`             // bus index for sends
	Vehicle   int    `yaml:"vehicle" json:"vehicle"`       // bus index for telemetry
}

// FrameConfig names the CAN identifiers the core listens to and emits on.
// The payloads are protocol constants owned by the engine.
type FrameConfig struct {
	SteeringWheel uint32 `yaml:"steering_wheel" json:"steeringWheel"`
	TeslaClock    uint32 `yaml:"tesla_clock" json:"teslaClock"`
	Gear          uint32 `yaml:"gear" json:"gear"`
}

type ModesConfig struct {
	Volume         IntervalConfig `yaml:"volume" json:"volume"`
	Speed          IntervalConfig `yaml:"speed" json:"speed"`
	Back           IntervalConfig `yaml:"back" json:"back"`
	ClockTickSteps int            `yaml:"clock_tick_steps" json:"clockTickSteps"`
	Advanced       AdvancedConfig `yaml:"advanced" json:"advanced"`
}

// IntervalConfig holds random-interval bounds and the intra-pulse delay,
// all in seconds.
type IntervalConfig struct {
	IntervalMin float64 `yaml:"interval_min" json:"intervalMin"`
	IntervalMax float64 `yaml:"interval_max" json:"intervalMax"`
	Delay       float64 `yaml:"delay" json:"delay"`
}

func (c IntervalConfig) Min() time.Duration      { return seconds(c.IntervalMin) }
func (c IntervalConfig) Max() time.Duration      { return seconds(c.IntervalMax) }
func (c IntervalConfig) PulseGap() time.Duration { return seconds(c.Delay) }

type AdvancedConfig struct {
	TickleInterval     int     `yaml:"tickle_interval" json:"tickleInterval"`
	Gate               string  `yaml:"gate" json:"gate"` // "park" or "drive"
	StartupSignalCount int     `yaml:"startup_signal_count" json:"startupSignalCount"`
	StartupSignalDelay float64 `yaml:"startup_signal_delay" json:"startupSignalDelay"`
	DoubleTapMin       float64 `yaml:"double_tap_min" json:"doubleTapMin"`
	DoubleTapMax       float64 `yaml:"double_tap_max" json:"doubleTapMax"`
}

func (c AdvancedConfig) StartupDelay() time.Duration { return seconds(c.StartupSignalDelay) }
func (c AdvancedConfig) TapMin() time.Duration       { return seconds(c.DoubleTapMin) }
func (c AdvancedConfig) TapMax() time.Duration       { return seconds(c.DoubleTapMax) }

type ReliabilityConfig struct {
	ReconnectDelaySec    float64 `yaml:"reconnect_delay" json:"reconnectDelay"`
	MaxExceptionCount    int     `yaml:"max_exception_count" json:"maxExceptionCount"`
	MaxReconnectAttempts int     `yaml:"max_reconnect_attempts" json:"maxReconnectAttempts"`
	PollIntervalMs       int     `yaml:"poll_interval_ms" json:"pollIntervalMs"`
}

func (c ReliabilityConfig) ReconnectDelay() time.Duration { return seconds(c.ReconnectDelaySec) }
func (c ReliabilityConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

type ServerConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Default returns a config mirroring the stock vehicle constants.
func Default() *Config {
	return &Config{
		Mode: "media-volume-basic",
		Bus: BusConfig{
			Device:    "/dev/ttyACM0",
			BaudRate:  115200,
			SpeedKbps: 500,
			Main:      0,
			Vehicle:   1,
		},
		Frames: FrameConfig{
			SteeringWheel: 0x3C2,
			TeslaClock:    0x528,
			Gear:          0x118,
		},
		Modes: ModesConfig{
			Volume:         IntervalConfig{IntervalMin: 4.0, IntervalMax: 8.0, Delay: 0.3},
			Speed:          IntervalConfig{IntervalMin: 4.0, IntervalMax: 8.0, Delay: 0.3},
			Back:           IntervalConfig{IntervalMin: 4.0, IntervalMax: 8.0},
			ClockTickSteps: 8,
			Advanced: AdvancedConfig{
				TickleInterval:     5,
				Gate:               "park",
				StartupSignalCount: 4,
				StartupSignalDelay: 0.5,
				DoubleTapMin:       0.20,
				DoubleTapMax:       0.75,
			},
		},
		Reliability: ReliabilityConfig{
			ReconnectDelaySec:    1.2,
			MaxExceptionCount:    5,
			MaxReconnectAttempts: 10,
			PollIntervalMs:       10,
		},
		Server: ServerConfig{
			Enabled:    false,
			ListenAddr: ":8099",
		},
	}
}

// Load reads YAML config from path, falling back to defaults when the
// file is absent, then applies environment overrides. A file that exists
// but does not parse is an error: a half-read config must never reach
// the run loop.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[config] no config at %s, using defaults", path)
		} else {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		log.Printf("[config] loaded from %s", path)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides reads environment variables and overrides config
// values. Supported: CANWAKE_DEVICE, CANWAKE_MODE, CANWAKE_LISTEN,
// CANWAKE_DRY_RUN, CANWAKE_BAUD.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CANWAKE_DEVICE"); v != "" {
		c.Bus.Device = v
	}
	if v := os.Getenv("CANWAKE_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("CANWAKE_LISTEN"); v != "" {
		c.Server.Enabled = true
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("CANWAKE_DRY_RUN"); v != "" {
		c.DryRun = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("CANWAKE_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Bus.BaudRate = n
		}
	}
}

// Validate rejects malformed timing and reliability parameters before the
// run loop can start. Mode name validation happens in the engine, which
// owns the registry.
func (c *Config) Validate() error {
	for name, iv := range map[string]IntervalConfig{
		"volume": c.Modes.Volume,
		"speed":  c.Modes.Speed,
		"back":   c.Modes.Back,
	} {
		if iv.IntervalMin <= 0 || iv.IntervalMax <= 0 {
			return fmt.Errorf("config: modes.%s intervals must be positive", name)
		}
		if iv.IntervalMin > iv.IntervalMax {
			return fmt.Errorf("config: modes.%s interval_min %.2f > interval_max %.2f",
				name, iv.IntervalMin, iv.IntervalMax)
		}
		if iv.Delay < 0 {
			return fmt.Errorf("config: modes.%s delay must not be negative", name)
		}
	}
	if c.Modes.ClockTickSteps <= 0 {
		return fmt.Errorf("config: modes.clock_tick_steps must be positive")
	}
	if c.Modes.Advanced.TickleInterval <= 0 {
		return fmt.Errorf("config: modes.advanced.tickle_interval must be positive")
	}
	if g := c.Modes.Advanced.Gate; g != "park" && g != "drive" {
		return fmt.Errorf("config: modes.advanced.gate must be %q or %q, got %q", "park", "drive", g)
	}
	if c.Modes.Advanced.DoubleTapMin >= c.Modes.Advanced.DoubleTapMax {
		return fmt.Errorf("config: modes.advanced double tap window is empty")
	}
	if c.Reliability.MaxExceptionCount <= 0 {
		return fmt.Errorf("config: reliability.max_exception_count must be positive")
	}
	if c.Reliability.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("config: reliability.max_reconnect_attempts must be positive")
	}
	if c.Reliability.ReconnectDelaySec < 0 {
		return fmt.Errorf("config: reliability.reconnect_delay must not be negative")
	}
	if c.Reliability.PollIntervalMs <= 0 {
		return fmt.Errorf("config: reliability.poll_interval_ms must be positive")
	}
	return nil
}
