package telemetry

import (
	"log"

	"github.com/tmorgan983/canwake/internal/can"
)

// tickModulus is the range of the vehicle's rolling tick counter. The
// clock frame carries a seconds counter; only the low byte is stable
// across firmware revisions, so we track it as an 8-bit value.
const tickModulus = 256

// ClockTickTracker decodes the vehicle's periodic clock frames into a
// tick counter used as a shared time base for tick-synced modes.
//
// The raw counter wraps at tickModulus. A backwards jump of more than
// half the range is a wraparound; a smaller one is bus noise (duplicate
// or reordered frames) and is dropped with the previous value kept.
type ClockTickTracker struct {
	id     uint32
	synced bool
	raw    int // last counter value, 0..tickModulus-1
	count  int // monotonic ticks observed since sync
}

func NewClockTickTracker(id uint32) *ClockTickTracker {
	return &ClockTickTracker{id: id}
}

// Observe feeds one received frame. It returns true if the frame matched
// the clock identifier and the counter advanced.
func (c *ClockTickTracker) Observe(f can.Frame) bool {
	if f.ID != c.id || f.Len < 1 {
		return false
	}
	v := int(f.Data[0])

	if !c.synced {
		c.synced = true
		c.raw = v
		c.count = 0
		return true
	}

	delta := (v - c.raw + tickModulus) % tickModulus
	if delta == 0 {
		return false // duplicate frame
	}
	if delta > tickModulus/2 {
		// Forward distance over half the range means the counter went
		// backwards by a small amount. Keep the previous value.
		log.Printf("[clock] tick regression %d -> %d ignored", c.raw, v)
		return false
	}

	c.raw = v
	c.count += delta
	return true
}

// Synced reports whether any clock frame has been seen.
func (c *ClockTickTracker) Synced() bool { return c.synced }

// CurrentTick returns the last observed raw counter value.
func (c *ClockTickTracker) CurrentTick() int { return c.raw }

// Count returns the monotonic number of ticks observed since the first
// clock frame. Unlike CurrentTick it never wraps.
func (c *ClockTickTracker) Count() int { return c.count }

// TicksSince returns the forward distance from a previously snapshotted
// raw counter value to the current one, modulo the counter range. The
// result is never negative, including across wraparound.
func (c *ClockTickTracker) TicksSince(snapshotTick int) int {
	return (c.raw - snapshotTick%tickModulus + tickModulus) % tickModulus
}
