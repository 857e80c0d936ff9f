package engine

import (
	"time"

	"github.com/tmorgan983/canwake/internal/can"
)

// Steering wheel button payloads. These are opaque vehicle protocol
// constants; the engine only decides when to put them on the wire.
var (
	msgVolDown   = []byte{0x29, 0x55, 0x3F, 0x00, 0x00, 0x00, 0x00, 0x00}
	msgVolUp     = []byte{0x29, 0x55, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}
	msgSpeedDown = []byte{0x29, 0x55, 0x00, 0x3F, 0x00, 0x00, 0x00, 0x00}
	msgSpeedUp   = []byte{0x29, 0x55, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	msgMediaBack = []byte{0x29, 0x95, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
)

// Action is one synthetic button event: the frames to emit, in order,
// with Gap between consecutive sends. Most actions are a down/up pulse so
// the net effect on the vehicle is zero.
type Action struct {
	Name   string
	Frames []can.Frame
	Gap    time.Duration
}

func volumePulse(bus int, wheelID uint32, gap time.Duration) Action {
	return Action{
		Name: "volume-pulse",
		Frames: []can.Frame{
			can.NewFrame(bus, wheelID, msgVolDown),
			can.NewFrame(bus, wheelID, msgVolUp),
		},
		Gap: gap,
	}
}

// volumeRaisePulse is the tick-synced variant: it nudges the volume up
// first and restores it after the gap, the reverse of volumePulse.
func volumeRaisePulse(bus int, wheelID uint32, gap time.Duration) Action {
	return Action{
		Name: "volume-pulse",
		Frames: []can.Frame{
			can.NewFrame(bus, wheelID, msgVolUp),
			can.NewFrame(bus, wheelID, msgVolDown),
		},
		Gap: gap,
	}
}

func speedPulse(bus int, wheelID uint32, gap time.Duration) Action {
	return Action{
		Name: "speed-pulse",
		Frames: []can.Frame{
			can.NewFrame(bus, wheelID, msgSpeedDown),
			can.NewFrame(bus, wheelID, msgSpeedUp),
		},
		Gap: gap,
	}
}

func mediaBackPress(bus int, wheelID uint32) Action {
	return Action{
		Name:   "media-back",
		Frames: []can.Frame{can.NewFrame(bus, wheelID, msgMediaBack)},
	}
}

// startupPulse announces the daemon after boot with a run of volume
// pulses, so the driver gets audible confirmation it is alive.
func startupPulse(bus int, wheelID uint32, count int, gap time.Duration) Action {
	frames := make([]can.Frame, 0, count)
	for i := 0; i < count/2; i++ {
		frames = append(frames,
			can.NewFrame(bus, wheelID, msgVolDown),
			can.NewFrame(bus, wheelID, msgVolUp),
		)
	}
	return Action{Name: "startup-announce", Frames: frames, Gap: gap}
}
