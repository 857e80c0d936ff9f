package telemetry

import "github.com/tmorgan983/canwake/internal/can"

// Gear is the vehicle transmission state broadcast on the bus.
type Gear int

const (
	GearUnknown Gear = iota
	GearPark
	GearDrive
	GearReverse
	GearNeutral
)

func (g Gear) String() string {
	switch g {
	case GearPark:
		return "park"
	case GearDrive:
		return "drive"
	case GearReverse:
		return "reverse"
	case GearNeutral:
		return "neutral"
	default:
		return "unknown"
	}
}

// GearStateTracker decodes periodic gear frames into a Gear value.
// It reports GearUnknown until the first valid frame, and keeps the last
// valid gear when a payload doesn't decode — a garbled frame must never
// flip the gating state.
type GearStateTracker struct {
	id   uint32
	gear Gear
}

func NewGearStateTracker(id uint32) *GearStateTracker {
	return &GearStateTracker{id: id, gear: GearUnknown}
}

// Observe feeds one received frame. Returns true if it matched the gear
// identifier and decoded to a known gear.
func (g *GearStateTracker) Observe(f can.Frame) bool {
	if f.ID != g.id || f.Len < 3 {
		return false
	}
	decoded := decodeGear(f.Data[2])
	if decoded == GearUnknown {
		return false
	}
	g.gear = decoded
	return true
}

// CurrentGear returns the last decoded gear.
func (g *GearStateTracker) CurrentGear() Gear { return g.gear }

// decodeGear maps the gear byte to a Gear. The low and high bands are
// park (observed on captures: idle counter values sit there); the bands
// between were mapped from logged drives. Values outside every band are
// treated as undecodable.
func decodeGear(v byte) Gear {
	switch {
	case v <= 50 || v >= 240:
		return GearPark
	case v >= 0x60 && v <= 0x6F:
		return GearReverse
	case v >= 0x70 && v <= 0x7F:
		return GearNeutral
	case v >= 0x80 && v <= 0xEF:
		return GearDrive
	default:
		return GearUnknown
	}
}
