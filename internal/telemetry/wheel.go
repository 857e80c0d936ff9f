package telemetry

import (
	"bytes"
	"time"

	"github.com/tmorgan983/canwake/internal/can"
)

// Gesture is a driver input decoded from steering wheel button frames.
type Gesture int

const (
	GestureNone Gesture = iota
	// GestureToggle is a double-tap of play/pause: enable/disable emission.
	GestureToggle
	// GestureCycle is a double-tap of the left tilt: next sub-mode.
	GestureCycle
)

// Steering wheel payload prefixes as seen on the bus.
var (
	playPausePrefix = []byte{0x49, 0x55}
	leftTiltPrefix  = []byte{0x29, 0x95}
)

// WheelButtonTracker decodes steering wheel button frames the vehicle
// itself broadcasts and turns double-taps into gestures. A press pair
// whose spacing falls inside [tapMin, tapMax] is a double-tap; anything
// else is a single press and is ignored.
type WheelButtonTracker struct {
	id     uint32
	tapMin time.Duration
	tapMax time.Duration
	now    func() time.Time

	lastPlayPause time.Time
	lastLeftTilt  time.Time
}

// NewWheelButtonTracker builds a tracker for the given wheel frame
// identifier. now may be nil, in which case time.Now is used.
func NewWheelButtonTracker(id uint32, tapMin, tapMax time.Duration, now func() time.Time) *WheelButtonTracker {
	if now == nil {
		now = time.Now
	}
	return &WheelButtonTracker{id: id, tapMin: tapMin, tapMax: tapMax, now: now}
}

// Observe feeds one received frame and returns the gesture it completes,
// or GestureNone.
func (w *WheelButtonTracker) Observe(f can.Frame) Gesture {
	if f.ID != w.id || f.Len < 2 {
		return GestureNone
	}
	now := w.now()
	switch {
	case bytes.HasPrefix(f.Payload(), playPausePrefix):
		if w.doubleTap(now, w.lastPlayPause) {
			w.lastPlayPause = time.Time{} // consume so a triple tap isn't two doubles
			return GestureToggle
		}
		w.lastPlayPause = now
	case bytes.HasPrefix(f.Payload(), leftTiltPrefix):
		if w.doubleTap(now, w.lastLeftTilt) {
			w.lastLeftTilt = time.Time{}
			return GestureCycle
		}
		w.lastLeftTilt = now
	}
	return GestureNone
}

func (w *WheelButtonTracker) doubleTap(now, last time.Time) bool {
	if last.IsZero() {
		return false
	}
	d := now.Sub(last)
	return d > w.tapMin && d < w.tapMax
}
