package engine

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/tmorgan983/canwake/internal/config"
)

// Mode names accepted on the command line and the control API.
const (
	ModeMediaVolumeBasic = "media-volume-basic"
	ModeMediaVolume      = "media-volume"
	ModeSpeedBasic       = "speed-basic"
	ModeSpeed            = "speed"
	ModeMediaBack        = "media-back"
	ModeAdvanced         = "advanced"
)

// ErrUnknownMode is returned for a mode or sub-mode name that is not in
// the registry. It surfaces at startup or mode-select time, never from
// the run loop.
var ErrUnknownMode = errors.New("engine: unknown mode")

// ModeNames lists every selectable mode, in presentation order.
func ModeNames() []string {
	return []string{
		ModeMediaVolumeBasic, ModeMediaVolume,
		ModeSpeedBasic, ModeSpeed,
		ModeMediaBack, ModeAdvanced,
	}
}

// Mode is one immutable behavior policy: a timing policy plus the action
// it emits. The advanced engine holds one Mode per sub-mode.
type Mode struct {
	name   string
	policy TimingPolicy
	action Action
}

func (m *Mode) Name() string { return m.name }

// newMode builds a simple (non-advanced) mode from configuration.
func newMode(name string, cfg *config.Config, rng *rand.Rand) (*Mode, error) {
	bus := cfg.Bus.Main
	wheel := cfg.Frames.SteeringWheel

	switch name {
	case ModeMediaVolumeBasic:
		p, err := NewRandomInterval(cfg.Modes.Volume.Min(), cfg.Modes.Volume.Max(), rng)
		if err != nil {
			return nil, err
		}
		return &Mode{name: name, policy: p, action: volumePulse(bus, wheel, cfg.Modes.Volume.PulseGap())}, nil

	case ModeMediaVolume:
		p, err := NewTickSynced(0, cfg.Modes.ClockTickSteps)
		if err != nil {
			return nil, err
		}
		return &Mode{name: name, policy: p, action: volumeRaisePulse(bus, wheel, cfg.Modes.Volume.PulseGap())}, nil

	case ModeSpeedBasic:
		p, err := NewRandomInterval(cfg.Modes.Speed.Min(), cfg.Modes.Speed.Max(), rng)
		if err != nil {
			return nil, err
		}
		return &Mode{name: name, policy: p, action: speedPulse(bus, wheel, cfg.Modes.Speed.PulseGap())}, nil

	case ModeSpeed:
		p, err := NewTickSynced(0, cfg.Modes.ClockTickSteps)
		if err != nil {
			return nil, err
		}
		return &Mode{name: name, policy: p, action: speedPulse(bus, wheel, cfg.Modes.Speed.PulseGap())}, nil

	case ModeMediaBack:
		p, err := NewRandomInterval(cfg.Modes.Back.Min(), cfg.Modes.Back.Max(), rng)
		if err != nil {
			return nil, err
		}
		return &Mode{name: name, policy: p, action: mediaBackPress(bus, wheel)}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
}

// newSubModes builds the advanced mode's rotation. Each sub-mode gets its
// own tick-synced policy so switching never carries trigger state over.
func newSubModes(cfg *config.Config) ([]*Mode, error) {
	bus := cfg.Bus.Main
	wheel := cfg.Frames.SteeringWheel
	interval := cfg.Modes.Advanced.TickleInterval

	var modes []*Mode
	for _, spec := range []struct {
		name   string
		action Action
	}{
		{ModeMediaVolume, volumePulse(bus, wheel, cfg.Modes.Volume.PulseGap())},
		{ModeSpeed, speedPulse(bus, wheel, cfg.Modes.Speed.PulseGap())},
		{ModeMediaBack, mediaBackPress(bus, wheel)},
	} {
		p, err := NewTickSynced(0, interval)
		if err != nil {
			return nil, err
		}
		modes = append(modes, &Mode{name: spec.name, policy: p, action: spec.action})
	}
	return modes, nil
}
