package can

import (
	"errors"
	"fmt"
)

// Frame is one classical CAN message: identifier plus up to 8 data bytes.
// Bus is the adapter channel index the frame was seen on (or should be
// sent on); it is not part of the wire format.
type Frame struct {
	Bus  int
	ID   uint32 // 11-bit standard or 29-bit extended identifier
	Len  uint8  // 0..8
	Data [8]byte
}

const (
	maxStdID = 0x7FF
	maxExtID = 0x1FFFFFFF
)

var (
	ErrInvalidID  = errors.New("can: invalid identifier")
	ErrInvalidLen = errors.New("can: invalid data length")
)

// NewFrame builds a frame from a payload slice. Payloads longer than
// 8 bytes are rejected by Validate, not truncated silently.
func NewFrame(bus int, id uint32, data []byte) Frame {
	var f Frame
	f.Bus = bus
	f.ID = id
	if len(data) > 8 {
		f.Len = 9 // forces Validate to fail
		return f
	}
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f
}

// Extended reports whether the identifier needs the 29-bit format.
func (f Frame) Extended() bool { return f.ID > maxStdID }

// Validate returns an error if the frame cannot go on the wire.
func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrInvalidLen
	}
	if f.ID > maxExtID {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the live data bytes.
func (f Frame) Payload() []byte { return f.Data[:f.Len] }

func (f Frame) String() string {
	return fmt.Sprintf("bus%d 0x%03X [%d] % X", f.Bus, f.ID, f.Len, f.Data[:f.Len])
}
