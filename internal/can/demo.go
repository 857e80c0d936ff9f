package can

import (
	"log"
	"sync"
	"time"
)

// Demo simulates a vehicle bus for development and testing without
// hardware. It broadcasts a clock tick frame once per second and a gear
// frame every few ticks, alternating between parked and driving so the
// advanced mode's gating can be watched live.
type Demo struct {
	clockID uint32
	gearID  uint32
	bus     int

	mu       sync.Mutex
	opened   bool
	tick     uint8
	lastTick time.Time
	parked   bool
	queue    []Frame
	sent     int
}

// DemoConfig selects the frame identifiers the simulation emits.
type DemoConfig struct {
	ClockID uint32
	GearID  uint32
	Bus     int
}

func NewDemo(cfg DemoConfig) *Demo {
	return &Demo{clockID: cfg.ClockID, gearID: cfg.GearID, bus: cfg.Bus, parked: true}
}

func (d *Demo) Name() string { return "Demo (Simulated)" }

func (d *Demo) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	d.lastTick = time.Now()
	return nil
}

func (d *Demo) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}

func (d *Demo) Alive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

func (d *Demo) Send(f Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return ErrDeviceGone
	}
	d.sent++
	log.Printf("[demo] rx from host: %s", f)
	return nil
}

func (d *Demo) Poll() (Frame, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return Frame{}, false, ErrDeviceGone
	}

	if now := time.Now(); now.Sub(d.lastTick) >= time.Second {
		d.lastTick = now
		d.tick++
		var tf Frame
		tf.Bus = d.bus
		tf.ID = d.clockID
		tf.Len = 8
		tf.Data[0] = d.tick
		d.queue = append(d.queue, tf)

		// Flip gear every 20 simulated seconds.
		if d.tick%20 == 0 {
			d.parked = !d.parked
		}
		var gf Frame
		gf.Bus = d.bus
		gf.ID = d.gearID
		gf.Len = 8
		if d.parked {
			gf.Data[2] = 0x20
		} else {
			gf.Data[2] = 0x90
		}
		d.queue = append(d.queue, gf)
	}

	if len(d.queue) == 0 {
		return Frame{}, false, nil
	}
	f := d.queue[0]
	d.queue = d.queue[1:]
	return f, true, nil
}
