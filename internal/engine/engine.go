package engine

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/tmorgan983/canwake/internal/config"
	"github.com/tmorgan983/canwake/internal/telemetry"
)

// Engine is the mode execution state machine. Given the current time and
// a telemetry snapshot, Tick decides whether to emit an action this
// cycle. It performs no I/O and never fails: malformed telemetry just
// degrades to stale-but-safe defaults.
//
// For the advanced mode the engine carries extra state: an active
// sub-mode rotation, an enabled flag toggled by driver gestures or the
// control API, a gear gate, and a one-shot startup announcement.
type Engine struct {
	mode     string
	simple   *Mode   // nil in advanced mode
	subModes []*Mode // nil outside advanced mode
	active   int

	enabled        bool
	gateOnPark     bool // true: gate while parked; false: gate while driving
	startupPending bool
	startup        Action

	lastFire time.Time
}

// New builds an engine for the configured mode. Unknown mode names are
// rejected here, before any run loop exists.
func New(cfg *config.Config, rng *rand.Rand) (*Engine, error) {
	e := &Engine{
		mode:       cfg.Mode,
		enabled:    true,
		gateOnPark: cfg.Modes.Advanced.Gate == "park",
	}

	if cfg.Mode == ModeAdvanced {
		subs, err := newSubModes(cfg)
		if err != nil {
			return nil, err
		}
		e.subModes = subs
		e.startupPending = true
		e.startup = startupPulse(cfg.Bus.Main, cfg.Frames.SteeringWheel,
			cfg.Modes.Advanced.StartupSignalCount, cfg.Modes.Advanced.StartupDelay())
		return e, nil
	}

	m, err := newMode(cfg.Mode, cfg, rng)
	if err != nil {
		return nil, err
	}
	e.simple = m
	return e, nil
}

// ModeName returns the selected mode.
func (e *Engine) ModeName() string { return e.mode }

// ActiveSubMode returns the advanced mode's active sub-mode name, or ""
// for simple modes.
func (e *Engine) ActiveSubMode() string {
	if e.subModes == nil {
		return ""
	}
	return e.subModes[e.active].name
}

// Enabled reports whether emission is currently enabled. Always true for
// simple modes.
func (e *Engine) Enabled() bool { return e.simple != nil || e.enabled }

// LastFire returns when the engine last emitted an action.
func (e *Engine) LastFire() time.Time { return e.lastFire }

// SetSubMode selects the advanced sub-mode by name. It is the control
// surface for the runtime mode switch; simple modes reject it.
func (e *Engine) SetSubMode(name string) error {
	if e.subModes == nil {
		return fmt.Errorf("engine: mode %q has no sub-modes", e.mode)
	}
	for i, m := range e.subModes {
		if m.name == name {
			if i != e.active {
				log.Printf("[engine] sub-mode %s -> %s", e.subModes[e.active].name, name)
			}
			e.active = i
			return nil
		}
	}
	return fmt.Errorf("%w: sub-mode %q", ErrUnknownMode, name)
}

// Apply reacts to a decoded steering wheel gesture. Only the advanced
// mode listens to gestures.
func (e *Engine) Apply(g telemetry.Gesture) {
	if e.subModes == nil || g == telemetry.GestureNone {
		return
	}
	switch g {
	case telemetry.GestureToggle:
		e.enabled = !e.enabled
		if e.enabled {
			log.Printf("[engine] gesture: emission enabled")
		} else {
			log.Printf("[engine] gesture: emission disabled")
		}
	case telemetry.GestureCycle:
		e.active = (e.active + 1) % len(e.subModes)
		log.Printf("[engine] gesture: sub-mode now %s", e.subModes[e.active].name)
	}
}

// Tick runs one evaluation cycle and returns the action to emit, or nil.
func (e *Engine) Tick(now time.Time, snap telemetry.Snapshot) *Action {
	if e.simple != nil {
		if e.simple.policy.Ready(now, snap) {
			e.lastFire = now
			a := e.simple.action
			return &a
		}
		return nil
	}

	m := e.subModes[e.active]

	if !e.enabled || e.gated(snap.Gear) {
		// Pause the active policy's clock so nothing accrues while gated.
		m.policy.Hold(now, snap)
		return nil
	}

	// Announce once the vehicle clock is first heard after boot.
	if e.startupPending && snap.ClockSynced {
		e.startupPending = false
		e.lastFire = now
		a := e.startup
		return &a
	}

	if m.policy.Ready(now, snap) {
		e.lastFire = now
		a := m.action
		return &a
	}
	return nil
}

// gated reports whether the current gear disallows emission. Unknown gear
// never gates: before the first gear frame the engine behaves like the
// simple modes rather than staying silent forever.
func (e *Engine) gated(g telemetry.Gear) bool {
	switch g {
	case telemetry.GearUnknown:
		return false
	case telemetry.GearPark:
		return e.gateOnPark
	case telemetry.GearDrive, telemetry.GearReverse:
		return !e.gateOnPark
	default: // neutral sits with the non-park side
		return !e.gateOnPark
	}
}
